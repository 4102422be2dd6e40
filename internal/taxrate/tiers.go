package taxrate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricePair is a sampled catalog product reduced to the fields inference needs.
type PricePair struct {
	Name           string
	RegularPrice   decimal.Decimal
	EffectivePrice decimal.Decimal
	Taxable        bool
}

// RateRecord is an explicit tax rate published by the upstream store.
type RateRecord struct {
	Rate  string
	Class string
}

// Catalog exposes the upstream signals used to infer a tax rate.
type Catalog interface {
	SampleTaxableProducts(ctx context.Context, n int) ([]PricePair, error)
	ExplicitTaxRates(ctx context.Context) ([]RateRecord, error)
	StoreLocale(ctx context.Context) (string, error)
}

// Config tunes the inference heuristics.
type Config struct {
	CandidateRates    []decimal.Decimal
	SampleSize        int
	ToleranceFloor    decimal.Decimal
	TolerancePercent  decimal.Decimal
	EqualityTolerance decimal.Decimal
	InclusiveSample   int
	InclusiveDefault  decimal.Decimal
	RegionDefaults    map[string]decimal.Decimal
	Fallback          decimal.Decimal
}

// DefaultConfig mirrors common tiered GST schedules.
func DefaultConfig() Config {
	return Config{
		CandidateRates:    []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(12), decimal.NewFromInt(18), decimal.NewFromInt(28)},
		SampleSize:        10,
		ToleranceFloor:    decimal.RequireFromString("0.50"),
		TolerancePercent:  decimal.NewFromInt(1),
		EqualityTolerance: decimal.RequireFromString("0.01"),
		InclusiveSample:   5,
		InclusiveDefault:  decimal.NewFromInt(18),
		RegionDefaults:    map[string]decimal.Decimal{"IN": decimal.NewFromInt(18)},
		Fallback:          decimal.NewFromInt(18),
	}
}

func (c Config) tolerance(regular decimal.Decimal) decimal.Decimal {
	return decimal.Max(c.ToleranceFloor, regular.Mul(c.TolerancePercent).Div(hundred))
}

// Tier is one strategy in the ordered inference chain. A tier that cannot
// decide returns ok=false; err carries the reason for logging only.
type Tier interface {
	Name() string
	Resolve(ctx context.Context, p *Probe) (rate decimal.Decimal, ok bool, err error)
}

// Probe gives tiers access to the catalog and memoises the product sample so
// that it is fetched at most once per resolution.
type Probe struct {
	Catalog Catalog
	Size    int

	sampled bool
	sample  []PricePair
	err     error
}

// Sample returns the taxable products with usable prices.
func (p *Probe) Sample(ctx context.Context) ([]PricePair, error) {
	if p.sampled {
		return p.sample, p.err
	}
	p.sampled = true
	if p.Catalog == nil {
		p.err = errors.New("catalog not configured")
		return nil, p.err
	}
	raw, err := p.Catalog.SampleTaxableProducts(ctx, p.Size)
	if err != nil {
		p.err = fmt.Errorf("sample products: %w", err)
		return nil, p.err
	}
	usable := make([]PricePair, 0, len(raw))
	for _, pp := range raw {
		if !pp.Taxable || !pp.RegularPrice.IsPositive() || !pp.EffectivePrice.IsPositive() {
			continue
		}
		usable = append(usable, pp)
	}
	p.sample = usable
	return p.sample, nil
}

// ExplicitTier reads the store's published tax rates.
type ExplicitTier struct{}

// Name implements Tier.
func (ExplicitTier) Name() string { return "explicit" }

// Resolve picks the standard (or unclassed) record, else the first one.
func (ExplicitTier) Resolve(ctx context.Context, p *Probe) (decimal.Decimal, bool, error) {
	if p.Catalog == nil {
		return decimal.Zero, false, errors.New("catalog not configured")
	}
	records, err := p.Catalog.ExplicitTaxRates(ctx)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("fetch tax rates: %w", err)
	}
	if len(records) == 0 {
		return decimal.Zero, false, nil
	}
	chosen := records[0]
	for _, rec := range records {
		class := strings.ToLower(strings.TrimSpace(rec.Class))
		if class == "" || class == "standard" {
			chosen = rec
			break
		}
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(chosen.Rate))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse rate %q: %w", chosen.Rate, err)
	}
	return rate, true, nil
}

// PricePairTier reverse-engineers the rate from regular/effective price pairs.
type PricePairTier struct {
	Config Config
}

// Name implements Tier.
func (PricePairTier) Name() string { return "price_pairs" }

// Resolve returns the lowest candidate rate that explains any sampled product
// as either grossed up or netted down by that rate.
func (t PricePairTier) Resolve(ctx context.Context, p *Probe) (decimal.Decimal, bool, error) {
	sample, err := p.Sample(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	one := decimal.NewFromInt(1)
	rates := slices.Clone(t.Config.CandidateRates)
	slices.SortFunc(rates, decimal.Decimal.Cmp)
	for _, rate := range rates {
		factor := one.Add(rate.Div(hundred))
		for _, pp := range sample {
			tol := t.Config.tolerance(pp.RegularPrice)
			grossed := pp.RegularPrice.Mul(factor)
			if pp.EffectivePrice.Sub(grossed).Abs().LessThanOrEqual(tol) {
				return rate, true, nil
			}
			netted := pp.RegularPrice.Div(factor)
			if pp.EffectivePrice.Sub(netted).Abs().LessThanOrEqual(tol) {
				return rate, true, nil
			}
		}
	}
	return decimal.Zero, false, nil
}

// InclusiveTier assumes tax-inclusive catalog prices when regular and
// effective prices agree across the sample.
type InclusiveTier struct {
	Config Config
}

// Name implements Tier.
func (InclusiveTier) Name() string { return "inclusive" }

// Resolve implements Tier.
func (t InclusiveTier) Resolve(ctx context.Context, p *Probe) (decimal.Decimal, bool, error) {
	sample, err := p.Sample(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	if len(sample) == 0 {
		return decimal.Zero, false, nil
	}
	limit := t.Config.InclusiveSample
	if limit <= 0 || limit > len(sample) {
		limit = len(sample)
	}
	for _, pp := range sample[:limit] {
		if pp.EffectivePrice.Sub(pp.RegularPrice).Abs().GreaterThan(t.Config.EqualityTolerance) {
			return decimal.Zero, false, nil
		}
	}
	return t.Config.InclusiveDefault, true, nil
}

// LocaleTier maps the store's default country to a regional rate.
type LocaleTier struct {
	Config Config
}

// Name implements Tier.
func (LocaleTier) Name() string { return "locale" }

// Resolve implements Tier.
func (t LocaleTier) Resolve(ctx context.Context, p *Probe) (decimal.Decimal, bool, error) {
	if p.Catalog == nil {
		return decimal.Zero, false, errors.New("catalog not configured")
	}
	locale, err := p.Catalog.StoreLocale(ctx)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("fetch store locale: %w", err)
	}
	country := strings.ToUpper(strings.TrimSpace(locale))
	if idx := strings.IndexByte(country, ':'); idx >= 0 {
		country = country[:idx]
	}
	if country == "" {
		return decimal.Zero, false, nil
	}
	rate, found := t.Config.RegionDefaults[country]
	return rate, found, nil
}

// FallbackTier always answers with the configured constant.
type FallbackTier struct {
	Rate decimal.Decimal
}

// Name implements Tier.
func (FallbackTier) Name() string { return "fallback" }

// Resolve implements Tier.
func (t FallbackTier) Resolve(context.Context, *Probe) (decimal.Decimal, bool, error) {
	if !validRate(t.Rate) {
		return decimal.Zero, false, fmt.Errorf("fallback rate %s out of range", t.Rate)
	}
	return t.Rate, true, nil
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}
