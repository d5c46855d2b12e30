package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MockGateway simulates the exchange for paper trading and tests.
// State is set directly by the owner; orders and transfers are recorded,
// and transfers settle immediately against the held account states so a
// re-fetch observes the moved balance.
type MockGateway struct {
	mu     sync.RWMutex
	market Market
	creds  Credentials

	markPrice  float64
	markErr    error
	lastPrice  float64
	lastErr    error
	funding    float64
	fundingErr error
	history    []FundingRate
	historyErr error
	candles    []Candle
	candlesErr error

	meta     map[SubAccount]*PairMeta
	accounts map[SubAccount]*AccountState

	orderErr      error
	transferErr   error
	orderAttempts int
	orders        []OrderRequest
	transfers     []TransferRequest
}

// NewMockGateway creates a mock gateway with flat default market data
func NewMockGateway(market Market) *MockGateway {
	log.Info().
		Str("symbol", market.Symbol).
		Msg("Mock gateway initialized (paper trading mode)")

	now := time.Now()
	return &MockGateway{
		market:    market,
		markPrice: 50000,
		lastPrice: 50000,
		meta: map[SubAccount]*PairMeta{
			SubAccountSpot: {Symbol: market.Symbol, TickSize: 0.1, LotSize: 0.00001, FetchedAt: now},
			SubAccountPerp: {Symbol: market.Symbol, TickSize: 0.1, LotSize: 0.001, FetchedAt: now},
		},
		accounts: map[SubAccount]*AccountState{
			SubAccountSpot: {SubAccount: SubAccountSpot, QuoteAsset: market.QuoteAsset, FetchedAt: now},
			SubAccountPerp: {SubAccount: SubAccountPerp, QuoteAsset: market.QuoteAsset, FetchedAt: now},
		},
	}
}

// Name returns the exchange name
func (m *MockGateway) Name() string { return "mock" }

// Symbol returns the bound trading pair
func (m *MockGateway) Symbol() string { return m.market.Symbol }

// WithCredentials records the credentials and returns the same instance so
// tests observe all orders regardless of which agent placed them
func (m *MockGateway) WithCredentials(creds Credentials) Gateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = creds
	return m
}

// MarkPrice returns the configured mark price
func (m *MockGateway) MarkPrice(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.markErr != nil {
		return 0, m.markErr
	}
	return m.markPrice, nil
}

// LastTradePrice returns the configured last trade price
func (m *MockGateway) LastTradePrice(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastErr != nil {
		return 0, m.lastErr
	}
	return m.lastPrice, nil
}

// FundingRate returns the configured funding rate
func (m *MockGateway) FundingRate(ctx context.Context) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fundingErr != nil {
		return 0, m.fundingErr
	}
	return m.funding, nil
}

// FundingHistory returns the configured funding history
func (m *MockGateway) FundingHistory(ctx context.Context, limit int) ([]FundingRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	history := m.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]FundingRate, len(history))
	copy(out, history)
	return out, nil
}

// Candles returns the configured candles
func (m *MockGateway) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.candlesErr != nil {
		return nil, m.candlesErr
	}
	candles := m.candles
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// PairMeta returns the configured pair constraints
func (m *MockGateway) PairMeta(ctx context.Context, sub SubAccount) (*PairMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[sub]
	if !ok {
		return nil, fmt.Errorf("no pair meta for sub-account %s", sub)
	}
	out := *meta
	return &out, nil
}

// AccountState returns a copy of the configured account state
func (m *MockGateway) AccountState(ctx context.Context, sub SubAccount) (*AccountState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.accounts[sub]
	if !ok {
		return nil, fmt.Errorf("no account state for sub-account %s", sub)
	}
	out := *state
	out.Positions = make([]Position, len(state.Positions))
	copy(out.Positions, state.Positions)
	out.FetchedAt = time.Now()
	return &out, nil
}

// PlaceOrder records the order and acknowledges it
func (m *MockGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderAttempts++
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	m.orders = append(m.orders, req)

	log.Debug().
		Str("side", string(req.Side)).
		Float64("price", req.Price).
		Float64("size", req.Size).
		Bool("reduce_only", req.ReduceOnly).
		Msg("Mock order accepted")

	return &OrderAck{OrderID: uuid.New().String(), Status: "accepted"}, nil
}

// Transfer records the transfer and settles it against the account states
func (m *MockGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transferErr != nil {
		return nil, m.transferErr
	}

	from, to := SubAccountSpot, SubAccountPerp
	if req.Direction == TransferToSpot {
		from, to = SubAccountPerp, SubAccountSpot
	}
	src, dst := m.accounts[from], m.accounts[to]
	if src == nil || dst == nil {
		return nil, fmt.Errorf("transfer between unknown sub-accounts")
	}
	if src.AvailableBalance() < req.Amount {
		return nil, fmt.Errorf("insufficient balance: have %.8f, need %.8f", src.AvailableBalance(), req.Amount)
	}
	src.TotalBalance -= req.Amount
	dst.TotalBalance += req.Amount

	m.transfers = append(m.transfers, req)
	return &TransferAck{TxID: uuid.New().String()}, nil
}

// SetMarkPrice sets the mark and last trade price
func (m *MockGateway) SetMarkPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markPrice = price
	m.lastPrice = price
}

// SetMarkPriceError makes mark price lookups fail
func (m *MockGateway) SetMarkPriceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markErr = err
}

// SetLastTradePrice sets only the last trade price
func (m *MockGateway) SetLastTradePrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPrice = price
}

// SetLastTradePriceError makes last trade price lookups fail
func (m *MockGateway) SetLastTradePriceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

// SetFundingRate sets the live funding rate
func (m *MockGateway) SetFundingRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funding = rate
}

// SetFundingRateError makes live funding lookups fail
func (m *MockGateway) SetFundingRateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fundingErr = err
}

// SetFundingHistory sets the historical funding rates, newest last
func (m *MockGateway) SetFundingHistory(history []FundingRate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = history
}

// SetFundingHistoryError makes funding history lookups fail
func (m *MockGateway) SetFundingHistoryError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyErr = err
}

// SetCandles sets the candle history, newest last
func (m *MockGateway) SetCandles(candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = candles
}

// SetCandlesError makes candle lookups fail
func (m *MockGateway) SetCandlesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candlesErr = err
}

// SetPairMeta sets tick/lot constraints for a sub-account
func (m *MockGateway) SetPairMeta(sub SubAccount, meta PairMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[sub] = &meta
}

// SetAccountState sets the state returned for a sub-account
func (m *MockGateway) SetAccountState(sub SubAccount, state AccountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.SubAccount = sub
	m.accounts[sub] = &state
}

// SetOrderError makes order submissions fail
func (m *MockGateway) SetOrderError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderErr = err
}

// SetTransferError makes transfers fail
func (m *MockGateway) SetTransferError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferErr = err
}

// OrderAttempts returns how many order submissions were tried,
// including rejected ones
func (m *MockGateway) OrderAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderAttempts
}

// Orders returns all recorded order submissions
func (m *MockGateway) Orders() []OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

// Transfers returns all recorded transfers
func (m *MockGateway) Transfers() []TransferRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TransferRequest, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// ResetRecords clears recorded orders and transfers
func (m *MockGateway) ResetRecords() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderAttempts = 0
	m.orders = nil
	m.transfers = nil
}
