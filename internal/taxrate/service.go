package taxrate

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/obs"
)

// Service exposes the store-wide effective tax rate.
type Service struct {
	Resolver *Resolver
	Cache    *Cache
	Logger   zerolog.Logger
}

// EffectiveRate returns the cached rate, running inference on a miss. Only
// ErrExhausted (or context cancellation) is returned as an error.
func (s *Service) EffectiveRate(ctx context.Context) (Resolution, error) {
	if s == nil || s.Resolver == nil {
		return Resolution{}, errors.New("taxrate service not configured")
	}
	if s.Cache == nil {
		return s.Resolver.Resolve(ctx)
	}
	res, hit, err := s.Cache.GetOrCompute(ctx, s.Resolver.Resolve)
	if obs.TaxRateCache != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		obs.TaxRateCache.WithLabelValues(result).Inc()
	}
	if err != nil {
		s.Logger.Error().Err(err).Msg("tax_rate_unresolved")
		return Resolution{}, err
	}
	return res, nil
}

// Invalidate forces the next EffectiveRate call to recompute.
func (s *Service) Invalidate(ctx context.Context) error {
	if s == nil || s.Cache == nil {
		return nil
	}
	s.Logger.Info().Msg("tax_rate_cache_invalidated")
	return s.Cache.Invalidate(ctx)
}
