package taxrate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/obs"
)

// ErrExhausted is returned when no tier, including the fallback, produced a usable rate.
var ErrExhausted = errors.New("taxrate: every inference tier failed")

// Resolution is the outcome of one inference run.
type Resolution struct {
	Rate       decimal.Decimal `json:"rate"`
	Tier       string          `json:"tier"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

// Resolver evaluates tiers in order and returns the first usable rate.
type Resolver struct {
	Catalog    Catalog
	Tiers      []Tier
	SampleSize int
	Now        func() time.Time
	Logger     zerolog.Logger
}

// NewResolver builds the standard chain: explicit records, price pairs,
// inclusive prices, store locale and finally the fallback constant.
func NewResolver(catalog Catalog, cfg Config, logger zerolog.Logger) *Resolver {
	return &Resolver{
		Catalog:    catalog,
		SampleSize: cfg.SampleSize,
		Logger:     logger,
		Tiers: []Tier{
			ExplicitTier{},
			PricePairTier{Config: cfg},
			InclusiveTier{Config: cfg},
			LocaleTier{Config: cfg},
			FallbackTier{Rate: cfg.Fallback},
		},
	}
}

// Resolve runs the chain sequentially. Tier failures are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	size := r.SampleSize
	if size <= 0 {
		size = 10
	}
	probe := &Probe{Catalog: r.Catalog, Size: size}
	for _, tier := range r.Tiers {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		rate, ok, err := tier.Resolve(ctx, probe)
		switch {
		case err != nil:
			r.Logger.Debug().Err(err).Str("tier", tier.Name()).Msg("tax_tier_failed")
			continue
		case !ok:
			r.Logger.Debug().Str("tier", tier.Name()).Msg("tax_tier_no_match")
			continue
		case !validRate(rate):
			r.Logger.Debug().Str("tier", tier.Name()).Str("rate", rate.String()).Msg("tax_tier_out_of_range")
			continue
		}
		if obs.TaxRateResolutions != nil {
			obs.TaxRateResolutions.WithLabelValues(tier.Name()).Inc()
		}
		r.Logger.Info().Str("tier", tier.Name()).Str("rate", rate.String()).Msg("tax_rate_resolved")
		return Resolution{Rate: rate, Tier: tier.Name(), ResolvedAt: r.now()}, nil
	}
	return Resolution{}, ErrExhausted
}

func (r *Resolver) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
