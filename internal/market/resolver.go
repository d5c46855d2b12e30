package market

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
)

// priceSource is one attempt in the ordered price fallback chain
type priceSource struct {
	name  string
	fetch func(ctx context.Context) (float64, error)
}

// Resolver builds the per-cycle Snapshot from the exchange gateway.
// Source priority is data, not control flow: price sources are an
// ordered list tried in sequence, funding falls from the live rate to
// recent history to a neutral zero.
type Resolver struct {
	gateway exchange.Gateway
	cache   *SnapshotCache // optional
	cfg     config.EngineConfig
	log     zerolog.Logger

	metaMu    sync.Mutex
	spotMeta  *exchange.PairMeta
	perpMeta  *exchange.PairMeta
	metaUntil time.Time
}

// NewResolver creates a snapshot resolver. cache may be nil when Redis
// is disabled.
func NewResolver(gateway exchange.Gateway, cache *SnapshotCache, cfg config.EngineConfig) *Resolver {
	return &Resolver{
		gateway: gateway,
		cache:   cache,
		cfg:     cfg,
		log:     log.With().Str("component", "market").Str("symbol", gateway.Symbol()).Logger(),
	}
}

// Resolve returns a valid snapshot or an error. An error here abandons
// the whole cycle; no agent trades on a missing or malformed snapshot.
func (r *Resolver) Resolve(ctx context.Context) (*Snapshot, error) {
	now := time.Now()

	if r.cache != nil {
		if cached := r.cache.Get(ctx, r.gateway.Symbol()); cached != nil && cached.Fresh(now, r.cfg.SnapshotTTL) {
			if err := cached.Validate(); err == nil {
				return cached, nil
			}
			r.log.Warn().Msg("Discarding structurally invalid cached snapshot")
		}
	}

	price, source, err := r.resolvePrice(ctx)
	if err != nil {
		return nil, err
	}

	spotMeta, perpMeta, err := r.pairMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pair constraints: %w", err)
	}

	snap := &Snapshot{
		Symbol:      r.gateway.Symbol(),
		Price:       price,
		PriceSource: source,
		SpotMeta:    *spotMeta,
		PerpMeta:    *perpMeta,
		FundingRate: r.FundingSignal(ctx),
		Candles:     r.candles(ctx),
		CapturedAt:  now,
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Put(snap)
	}

	r.log.Debug().
		Float64("price", snap.Price).
		Str("price_source", snap.PriceSource).
		Float64("funding_rate", snap.FundingRate).
		Int("candles", len(snap.Candles)).
		Msg("Market snapshot resolved")
	return snap, nil
}

// resolvePrice tries each source in priority order. Every attempt logs
// independently; the first finite positive value wins.
func (r *Resolver) resolvePrice(ctx context.Context) (float64, string, error) {
	sources := []priceSource{
		{name: "mark_price", fetch: r.gateway.MarkPrice},
		{name: "last_trade", fetch: r.gateway.LastTradePrice},
	}

	var lastErr error
	for _, src := range sources {
		price, err := src.fetch(ctx)
		if err != nil {
			r.log.Warn().Err(err).Str("source", src.name).Msg("Price source failed")
			lastErr = err
			continue
		}
		if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			r.log.Warn().Float64("price", price).Str("source", src.name).Msg("Price source returned invalid value")
			lastErr = fmt.Errorf("source %s returned invalid price %v", src.name, price)
			continue
		}
		r.log.Debug().Float64("price", price).Str("source", src.name).Msg("Price resolved")
		return price, src.name, nil
	}
	return 0, "", fmt.Errorf("all price sources failed for %s: %w", r.gateway.Symbol(), lastErr)
}

// FundingSignal resolves the funding rate for the pair. The chain is
// live rate, then the most recent historical rate, then neutral zero.
// A funding failure never propagates: the conservative strategy simply
// sees a below-threshold signal and stands down.
func (r *Resolver) FundingSignal(ctx context.Context) float64 {
	rate, err := r.gateway.FundingRate(ctx)
	if err == nil && !math.IsNaN(rate) && !math.IsInf(rate, 0) {
		return rate
	}
	r.log.Warn().Err(err).Msg("Live funding rate unavailable, trying history")

	histSize := r.cfg.FundingHistSize
	if histSize <= 0 {
		histSize = 1
	}
	history, err := r.gateway.FundingHistory(ctx, histSize)
	if err == nil && len(history) > 0 {
		latest := history[len(history)-1].Rate
		if !math.IsNaN(latest) && !math.IsInf(latest, 0) {
			r.log.Debug().Float64("rate", latest).Msg("Funding rate derived from history")
			return latest
		}
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("Funding history unavailable, using neutral rate")
	} else {
		r.log.Warn().Msg("Funding history empty, using neutral rate")
	}
	return 0
}

// candles fetches the momentum lookback window. Candle failures degrade
// to an empty history; the momentum strategy treats too-short history
// as no-action.
func (r *Resolver) candles(ctx context.Context) []exchange.Candle {
	lookback := r.cfg.CandleLookback
	if lookback <= 0 {
		lookback = 2
	}
	candles, err := r.gateway.Candles(ctx, r.cfg.CandleInterval, lookback)
	if err != nil {
		r.log.Warn().Err(err).Str("interval", r.cfg.CandleInterval).Msg("Candle history unavailable")
		return nil
	}
	return candles
}

// pairMeta returns tick/lot constraints for both sub-accounts, cached
// in-process for the metadata TTL. Constraints change rarely; fetching
// them every cycle wastes request budget.
func (r *Resolver) pairMeta(ctx context.Context) (*exchange.PairMeta, *exchange.PairMeta, error) {
	r.metaMu.Lock()
	defer r.metaMu.Unlock()

	now := time.Now()
	if r.spotMeta != nil && r.perpMeta != nil && now.Before(r.metaUntil) {
		return r.spotMeta, r.perpMeta, nil
	}

	spotMeta, spotErr := r.gateway.PairMeta(ctx, exchange.SubAccountSpot)
	perpMeta, perpErr := r.gateway.PairMeta(ctx, exchange.SubAccountPerp)
	if spotErr != nil || perpErr != nil {
		// Stale constraints beat no constraints
		if r.spotMeta != nil && r.perpMeta != nil {
			r.log.Warn().AnErr("spot_err", spotErr).AnErr("perp_err", perpErr).
				Msg("Pair metadata refresh failed, reusing stale constraints")
			return r.spotMeta, r.perpMeta, nil
		}
		if spotErr != nil {
			return nil, nil, spotErr
		}
		return nil, nil, perpErr
	}

	ttl := r.cfg.MetadataTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	r.spotMeta = spotMeta
	r.perpMeta = perpMeta
	r.metaUntil = now.Add(ttl)
	r.log.Debug().
		Float64("spot_tick", spotMeta.TickSize).
		Float64("spot_lot", spotMeta.LotSize).
		Float64("perp_tick", perpMeta.TickSize).
		Float64("perp_lot", perpMeta.LotSize).
		Dur("ttl", ttl).
		Msg("Pair metadata refreshed")
	return spotMeta, perpMeta, nil
}
