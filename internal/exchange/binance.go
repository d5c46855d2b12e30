package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/alphapilot/internal/config"
)

// BinanceGateway implements Gateway against Binance spot and USD-M futures.
// The futures wallet backs the "perp" sub-account, the spot wallet the
// "spot" sub-account; inter-account transfers map to spot<->futures
// transfers of the quote asset.
type BinanceGateway struct {
	market  Market
	creds   Credentials
	spot    *binance.Client
	fut     *futures.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	log     zerolog.Logger
}

// NewBinanceGateway creates an unauthenticated gateway for market data.
// Call WithCredentials to obtain a gateway that can read accounts and
// submit orders for one agent.
func NewBinanceGateway(market Market, cfg config.ExchangeConfig, log zerolog.Logger) *BinanceGateway {
	binance.UseTestnet = cfg.Testnet
	futures.UseTestnet = cfg.Testnet

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 8
	}

	return &BinanceGateway{
		market:  market,
		spot:    binance.NewClient("", ""),
		fut:     futures.NewClient("", ""),
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
		breaker: newGatewayBreaker("binance"),
		retry:   DefaultRetryConfig(),
		log:     log.With().Str("component", "binance_gateway").Str("symbol", market.Symbol).Logger(),
	}
}

// Name returns the exchange name
func (g *BinanceGateway) Name() string { return "binance" }

// Symbol returns the bound trading pair
func (g *BinanceGateway) Symbol() string { return g.market.Symbol }

// WithCredentials returns a gateway authorized for one agent's wallet.
// The rate limiter and circuit breaker are shared with the parent so the
// per-process request budget holds across agents.
func (g *BinanceGateway) WithCredentials(creds Credentials) Gateway {
	authed := *g
	authed.creds = creds
	authed.spot = binance.NewClient(creds.APIKey, creds.APISecret)
	authed.fut = futures.NewClient(creds.APIKey, creds.APISecret)
	return &authed
}

// call runs one gateway request through the rate limiter and breaker
func (g *BinanceGateway) call(ctx context.Context, op func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, op()
	})
	return err
}

// read runs a read-only request with transient-failure retry on top of call
func (g *BinanceGateway) read(ctx context.Context, op func() error) error {
	return WithRetry(ctx, g.retry, func() error {
		return g.call(ctx, op)
	})
}

// MarkPrice returns the futures mark price for the pair
func (g *BinanceGateway) MarkPrice(ctx context.Context) (float64, error) {
	var price float64
	err := g.read(ctx, func() error {
		premiums, err := g.fut.NewPremiumIndexService().Symbol(g.market.Symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(premiums) == 0 {
			return fmt.Errorf("no premium index for %s", g.market.Symbol)
		}
		price, err = strconv.ParseFloat(premiums[0].MarkPrice, 64)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark price: %w", err)
	}
	return price, nil
}

// LastTradePrice returns the spot last trade price for the pair
func (g *BinanceGateway) LastTradePrice(ctx context.Context) (float64, error) {
	var price float64
	err := g.read(ctx, func() error {
		prices, err := g.spot.NewListPricesService().Symbol(g.market.Symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			return fmt.Errorf("no ticker price for %s", g.market.Symbol)
		}
		price, err = strconv.ParseFloat(prices[0].Price, 64)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("last trade price: %w", err)
	}
	return price, nil
}

// FundingRate returns the live funding rate from the premium index
func (g *BinanceGateway) FundingRate(ctx context.Context) (float64, error) {
	var funding float64
	err := g.read(ctx, func() error {
		premiums, err := g.fut.NewPremiumIndexService().Symbol(g.market.Symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(premiums) == 0 {
			return fmt.Errorf("no premium index for %s", g.market.Symbol)
		}
		if premiums[0].LastFundingRate == "" {
			return fmt.Errorf("premium index carries no funding rate for %s", g.market.Symbol)
		}
		funding, err = strconv.ParseFloat(premiums[0].LastFundingRate, 64)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("funding rate: %w", err)
	}
	return funding, nil
}

// FundingHistory returns recent historical funding rates, newest last
func (g *BinanceGateway) FundingHistory(ctx context.Context, limit int) ([]FundingRate, error) {
	var rates []FundingRate
	err := g.read(ctx, func() error {
		history, err := g.fut.NewFundingRateService().Symbol(g.market.Symbol).Limit(limit).Do(ctx)
		if err != nil {
			return err
		}
		rates = make([]FundingRate, 0, len(history))
		for _, h := range history {
			r, err := strconv.ParseFloat(h.FundingRate, 64)
			if err != nil {
				return fmt.Errorf("parse funding rate %q: %w", h.FundingRate, err)
			}
			rates = append(rates, FundingRate{
				Symbol: h.Symbol,
				Rate:   r,
				Time:   time.UnixMilli(h.FundingTime),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("funding history: %w", err)
	}
	return rates, nil
}

// Candles returns recent completed futures candles, newest last. The
// klines endpoint includes the still-open bar as the final element, so
// one extra is fetched and the open bar dropped.
func (g *BinanceGateway) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	var candles []Candle
	err := g.read(ctx, func() error {
		klines, err := g.fut.NewKlinesService().
			Symbol(g.market.Symbol).
			Interval(interval).
			Limit(limit + 1).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(klines) > 0 {
			klines = klines[:len(klines)-1]
		}
		candles = make([]Candle, 0, len(klines))
		for _, k := range klines {
			c := Candle{OpenTime: time.UnixMilli(k.OpenTime)}
			for _, field := range []struct {
				src string
				dst *float64
			}{
				{k.Open, &c.Open},
				{k.High, &c.High},
				{k.Low, &c.Low},
				{k.Close, &c.Close},
			} {
				v, err := strconv.ParseFloat(field.src, 64)
				if err != nil {
					return fmt.Errorf("parse kline field %q: %w", field.src, err)
				}
				*field.dst = v
			}
			candles = append(candles, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}
	return candles, nil
}

// PairMeta returns tick/lot constraints from exchange info
func (g *BinanceGateway) PairMeta(ctx context.Context, sub SubAccount) (*PairMeta, error) {
	var meta *PairMeta
	err := g.read(ctx, func() error {
		var err error
		if sub == SubAccountPerp {
			meta, err = g.perpPairMeta(ctx)
		} else {
			meta, err = g.spotPairMeta(ctx)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pair meta (%s): %w", sub, err)
	}
	return meta, nil
}

func (g *BinanceGateway) perpPairMeta(ctx context.Context) (*PairMeta, error) {
	info, err := g.fut.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != g.market.Symbol {
			continue
		}
		priceFilter := s.PriceFilter()
		lotFilter := s.LotSizeFilter()
		if priceFilter == nil || lotFilter == nil {
			return nil, fmt.Errorf("missing filters for %s", g.market.Symbol)
		}
		tick, err := strconv.ParseFloat(priceFilter.TickSize, 64)
		if err != nil {
			return nil, fmt.Errorf("parse tick size: %w", err)
		}
		lot, err := strconv.ParseFloat(lotFilter.StepSize, 64)
		if err != nil {
			return nil, fmt.Errorf("parse step size: %w", err)
		}
		return &PairMeta{Symbol: s.Symbol, TickSize: tick, LotSize: lot, FetchedAt: time.Now()}, nil
	}
	return nil, fmt.Errorf("symbol %s not in futures exchange info", g.market.Symbol)
}

func (g *BinanceGateway) spotPairMeta(ctx context.Context) (*PairMeta, error) {
	info, err := g.spot.NewExchangeInfoService().Symbol(g.market.Symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range info.Symbols {
		if s.Symbol != g.market.Symbol {
			continue
		}
		priceFilter := s.PriceFilter()
		lotFilter := s.LotSizeFilter()
		if priceFilter == nil || lotFilter == nil {
			return nil, fmt.Errorf("missing filters for %s", g.market.Symbol)
		}
		tick, err := strconv.ParseFloat(priceFilter.TickSize, 64)
		if err != nil {
			return nil, fmt.Errorf("parse tick size: %w", err)
		}
		lot, err := strconv.ParseFloat(lotFilter.StepSize, 64)
		if err != nil {
			return nil, fmt.Errorf("parse step size: %w", err)
		}
		return &PairMeta{Symbol: s.Symbol, TickSize: tick, LotSize: lot, FetchedAt: time.Now()}, nil
	}
	return nil, fmt.Errorf("symbol %s not in spot exchange info", g.market.Symbol)
}

// AccountState returns balances and open positions for one sub-account
func (g *BinanceGateway) AccountState(ctx context.Context, sub SubAccount) (*AccountState, error) {
	if g.creds.IsZero() {
		return nil, fmt.Errorf("account state requires credentials")
	}

	var state *AccountState
	err := g.read(ctx, func() error {
		var err error
		if sub == SubAccountPerp {
			state, err = g.perpAccountState(ctx)
		} else {
			state, err = g.spotAccountState(ctx)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("account state (%s): %w", sub, err)
	}
	return state, nil
}

func (g *BinanceGateway) perpAccountState(ctx context.Context) (*AccountState, error) {
	balances, err := g.fut.NewGetBalanceService().Do(ctx)
	if err != nil {
		return nil, err
	}

	state := &AccountState{
		SubAccount: SubAccountPerp,
		QuoteAsset: g.market.QuoteAsset,
		FetchedAt:  time.Now(),
	}
	for _, b := range balances {
		if b.Asset != g.market.QuoteAsset {
			continue
		}
		total, err := strconv.ParseFloat(b.Balance, 64)
		if err != nil {
			return nil, fmt.Errorf("parse balance: %w", err)
		}
		avail, err := strconv.ParseFloat(b.AvailableBalance, 64)
		if err != nil {
			return nil, fmt.Errorf("parse available balance: %w", err)
		}
		state.TotalBalance = total
		held := total - avail
		if held < 0 {
			held = 0
		}
		state.HeldBalance = held
	}

	risks, err := g.fut.NewGetPositionRiskService().Symbol(g.market.Symbol).Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil {
			return nil, fmt.Errorf("parse position amount: %w", err)
		}
		if amt == 0 {
			continue
		}
		entry, err := strconv.ParseFloat(r.EntryPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("parse entry price: %w", err)
		}
		leverage, _ := strconv.ParseFloat(r.Leverage, 64)

		side := PositionSideLong
		size := amt
		if amt < 0 {
			side = PositionSideShort
			size = -amt
		}
		state.Positions = append(state.Positions, Position{
			Symbol:        r.Symbol,
			Side:          side,
			Size:          size,
			EntryNotional: entry * size,
			Leverage:      leverage,
		})
	}
	return state, nil
}

func (g *BinanceGateway) spotAccountState(ctx context.Context) (*AccountState, error) {
	account, err := g.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, err
	}

	state := &AccountState{
		SubAccount: SubAccountSpot,
		QuoteAsset: g.market.QuoteAsset,
		FetchedAt:  time.Now(),
	}
	var baseFree float64
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return nil, fmt.Errorf("parse free balance: %w", err)
		}
		locked, err := strconv.ParseFloat(b.Locked, 64)
		if err != nil {
			return nil, fmt.Errorf("parse locked balance: %w", err)
		}
		switch b.Asset {
		case g.market.QuoteAsset:
			state.TotalBalance = free + locked
			state.HeldBalance = locked
		case g.market.BaseAsset:
			baseFree = free
		}
	}

	if baseFree > 0 {
		entryNotional, err := g.spotEntryNotional(ctx, baseFree)
		if err != nil {
			// A missing cost basis blocks take-profit but not the rest of
			// the cycle; surface the holding with zero entry.
			g.log.Warn().Err(err).Msg("Failed to derive spot entry notional")
		}
		state.Positions = append(state.Positions, Position{
			Symbol:        g.market.Symbol,
			Side:          PositionSideLong,
			Size:          baseFree,
			EntryNotional: entryNotional,
		})
	}
	return state, nil
}

// spotEntryNotional derives the quote cost basis of the current holdings by
// walking recent fills newest to oldest until the held size is covered.
// Spot accounts report no entry price, unlike futures position risk.
func (g *BinanceGateway) spotEntryNotional(ctx context.Context, holding float64) (float64, error) {
	trades, err := g.spot.NewListTradesService().Symbol(g.market.Symbol).Limit(500).Do(ctx)
	if err != nil {
		return 0, err
	}

	remaining := holding
	var notional float64
	for i := len(trades) - 1; i >= 0 && remaining > 0; i-- {
		t := trades[i]
		if !t.IsBuyer {
			continue
		}
		qty, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			return 0, fmt.Errorf("parse trade quantity: %w", err)
		}
		quoteQty, err := strconv.ParseFloat(t.QuoteQuantity, 64)
		if err != nil {
			return 0, fmt.Errorf("parse trade quote quantity: %w", err)
		}
		if qty <= 0 {
			continue
		}
		if qty > remaining {
			notional += quoteQty * (remaining / qty)
			remaining = 0
		} else {
			notional += quoteQty
			remaining -= qty
		}
	}
	if remaining > 0 {
		return 0, fmt.Errorf("trade history covers only %.8f of %.8f held", holding-remaining, holding)
	}
	return notional, nil
}

// PlaceOrder submits a limit order to the spot or futures account.
// No retry: the caller treats a failed submission as a skipped action and
// the next cycle tries again.
func (g *BinanceGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if g.creds.IsZero() {
		return nil, fmt.Errorf("order placement requires credentials")
	}

	var ack *OrderAck
	err := g.call(ctx, func() error {
		var err error
		if req.SubAccount == SubAccountPerp {
			ack, err = g.placePerpOrder(ctx, req)
		} else {
			ack, err = g.placeSpotOrder(ctx, req)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	g.log.Info().
		Str("sub_account", string(req.SubAccount)).
		Str("side", string(req.Side)).
		Float64("price", req.Price).
		Float64("size", req.Size).
		Bool("reduce_only", req.ReduceOnly).
		Str("order_id", ack.OrderID).
		Msg("Order submitted")
	return ack, nil
}

func (g *BinanceGateway) placePerpOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	side := futures.SideTypeBuy
	if req.Side == OrderSideSell {
		side = futures.SideTypeSell
	}
	tif := futures.TimeInForceTypeGTC
	if req.TimeInForce == TimeInForceIOC {
		tif = futures.TimeInForceTypeIOC
	}

	svc := g.fut.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(tif).
		Quantity(formatFloat(req.Size)).
		Price(formatFloat(req.Price)).
		ReduceOnly(req.ReduceOnly)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	return &OrderAck{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  string(resp.Status),
	}, nil
}

func (g *BinanceGateway) placeSpotOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if req.ReduceOnly {
		// Spot has no reduce-only; selling more than the held base would be
		// rejected by the exchange, which is the protection we want.
		g.log.Debug().Msg("Dropping reduce-only flag for spot order")
	}

	side := binance.SideTypeBuy
	if req.Side == OrderSideSell {
		side = binance.SideTypeSell
	}
	tif := binance.TimeInForceTypeGTC
	if req.TimeInForce == TimeInForceIOC {
		tif = binance.TimeInForceTypeIOC
	}

	svc := g.spot.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(tif).
		Quantity(formatFloat(req.Size)).
		Price(formatFloat(req.Price))
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	return &OrderAck{
		OrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:  string(resp.Status),
	}, nil
}

// Transfer moves quote funds between the spot and futures wallets
func (g *BinanceGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferAck, error) {
	if g.creds.IsZero() {
		return nil, fmt.Errorf("transfer requires credentials")
	}

	transferType := binance.FuturesTransferTypeToFutures
	if req.Direction == TransferToSpot {
		transferType = binance.FuturesTransferTypeToMain
	}

	var ack *TransferAck
	err := g.call(ctx, func() error {
		resp, err := g.spot.NewFuturesTransferService().
			Asset(req.Asset).
			Amount(formatFloat(req.Amount)).
			Type(transferType).
			Do(ctx)
		if err != nil {
			return err
		}
		ack = &TransferAck{TxID: strconv.FormatInt(resp.TranID, 10)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	g.log.Info().
		Str("direction", string(req.Direction)).
		Str("asset", req.Asset).
		Float64("amount", req.Amount).
		Str("tx_id", ack.TxID).
		Msg("Transfer submitted")
	return ack, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
