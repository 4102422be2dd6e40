package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Finder looks a coupon up by normalised code. Unknown codes yield ErrNotFound.
type Finder interface {
	FindCoupon(ctx context.Context, code string) (Record, error)
}

// UsageRecorder counts a redemption against a coupon.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, code string) error
}

// Chain consults finders in order and returns the first match. When nothing
// matches, ErrNotFound is returned unless a finder failed, in which case the
// last failure is returned so callers can tell an outage from a bad code.
type Chain []Finder

// FindCoupon implements Finder.
func (c Chain) FindCoupon(ctx context.Context, code string) (Record, error) {
	var lastErr error
	for _, f := range c {
		if f == nil {
			continue
		}
		rec, err := f.FindCoupon(ctx, code)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return Record{}, lastErr
	}
	return Record{}, ErrNotFound
}

// Service resolves coupon codes into validated pricing coupons.
type Service struct {
	Finder Finder
	Usage  UsageRecorder
	Now    func() time.Time
	Logger zerolog.Logger
}

// Lookup returns the validated coupon record for code.
func (s *Service) Lookup(ctx context.Context, code string) (Record, error) {
	if s == nil || s.Finder == nil {
		return Record{}, errors.New("coupon service not configured")
	}
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Record{}, ErrNotFound
	}
	rec, err := s.Finder.FindCoupon(ctx, normalized)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.Logger.Warn().Err(err).Str("code", normalized).Msg("coupon_lookup_failed")
		}
		return Record{}, err
	}
	if err := rec.Validate(s.now()); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Resolve looks code up and converts it for the pricing engine.
func (s *Service) Resolve(ctx context.Context, code string) (Record, *pricing.Coupon, error) {
	rec, err := s.Lookup(ctx, code)
	if err != nil {
		return Record{}, nil, err
	}
	c, err := rec.ToPricing()
	if err != nil {
		return Record{}, nil, err
	}
	return rec, c, nil
}

// Redeem records one use of code. Coupons unknown to the recorder are ignored.
func (s *Service) Redeem(ctx context.Context, code string) error {
	if s == nil || s.Usage == nil || code == "" {
		return nil
	}
	if err := s.Usage.RecordUsage(ctx, NormalizeCode(code)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
