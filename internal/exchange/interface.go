package exchange

import "context"

// Gateway defines the exchange contract the engine consumes.
// Both MockGateway (paper trading) and BinanceGateway (live trading)
// implement this interface. A gateway is bound to a single trading pair;
// market-data reads work without credentials, account reads and writes
// require a gateway obtained from WithCredentials.
type Gateway interface {
	// Name returns the exchange name for logging and metrics
	Name() string

	// Symbol returns the trading pair this gateway is bound to
	Symbol() string

	// WithCredentials returns a gateway authorized for one agent's wallet
	WithCredentials(creds Credentials) Gateway

	// MarkPrice returns the current mark/mid price
	MarkPrice(ctx context.Context) (float64, error)

	// LastTradePrice returns the most recent trade price (fallback source)
	LastTradePrice(ctx context.Context) (float64, error)

	// FundingRate returns the current perpetual funding rate
	FundingRate(ctx context.Context) (float64, error)

	// FundingHistory returns recent historical funding rates, newest last
	FundingHistory(ctx context.Context, limit int) ([]FundingRate, error)

	// Candles returns recent completed candles, newest last
	Candles(ctx context.Context, interval string, limit int) ([]Candle, error)

	// PairMeta returns tick/lot constraints for the pair on a sub-account
	PairMeta(ctx context.Context, sub SubAccount) (*PairMeta, error)

	// AccountState returns balances and open positions for a sub-account
	AccountState(ctx context.Context, sub SubAccount) (*AccountState, error)

	// PlaceOrder submits an order and returns the exchange acknowledgment
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)

	// Transfer moves funds between the agent's sub-accounts
	Transfer(ctx context.Context, req TransferRequest) (*TransferAck, error)
}
