package exchange

import (
	"context"
	"time"
)

// timeoutGateway wraps every gateway call in a per-call deadline so a
// hung network call fails that one step instead of stalling the whole
// engine cycle.
type timeoutGateway struct {
	inner   Gateway
	timeout time.Duration
}

// WithCallTimeout decorates a gateway with a per-call timeout. A zero
// or negative timeout returns the gateway unchanged.
func WithCallTimeout(gw Gateway, timeout time.Duration) Gateway {
	if timeout <= 0 {
		return gw
	}
	return &timeoutGateway{inner: gw, timeout: timeout}
}

func (t *timeoutGateway) Name() string   { return t.inner.Name() }
func (t *timeoutGateway) Symbol() string { return t.inner.Symbol() }

func (t *timeoutGateway) WithCredentials(creds Credentials) Gateway {
	return &timeoutGateway{inner: t.inner.WithCredentials(creds), timeout: t.timeout}
}

func (t *timeoutGateway) MarkPrice(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.MarkPrice(ctx)
}

func (t *timeoutGateway) LastTradePrice(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.LastTradePrice(ctx)
}

func (t *timeoutGateway) FundingRate(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.FundingRate(ctx)
}

func (t *timeoutGateway) FundingHistory(ctx context.Context, limit int) ([]FundingRate, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.FundingHistory(ctx, limit)
}

func (t *timeoutGateway) Candles(ctx context.Context, interval string, limit int) ([]Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Candles(ctx, interval, limit)
}

func (t *timeoutGateway) PairMeta(ctx context.Context, sub SubAccount) (*PairMeta, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.PairMeta(ctx, sub)
}

func (t *timeoutGateway) AccountState(ctx context.Context, sub SubAccount) (*AccountState, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.AccountState(ctx, sub)
}

func (t *timeoutGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.PlaceOrder(ctx, req)
}

func (t *timeoutGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferAck, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Transfer(ctx, req)
}
