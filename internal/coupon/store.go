package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrDuplicate is returned when a coupon code already exists locally.
var ErrDuplicate = errors.New("coupon code already exists")

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps locally issued coupons in Postgres.
type PGStore struct {
	DB DB
}

const selectCoupon = `
SELECT code, discount_type, amount::text, minimum_amount::text, maximum_amount::text,
       usage_limit, used_count, expires_at, enabled
FROM coupons
WHERE upper(code) = $1`

// FindCoupon implements Finder.
func (s PGStore) FindCoupon(ctx context.Context, code string) (Record, error) {
	var (
		rec              Record
		amount           string
		minimum, maximum *string
		usageLimit       *int32
		usedCount        int32
		expiresAt        *time.Time
	)
	err := s.DB.QueryRow(ctx, selectCoupon, NormalizeCode(code)).Scan(
		&rec.Code, &rec.DiscountType, &amount, &minimum, &maximum,
		&usageLimit, &usedCount, &expiresAt, &rec.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("select coupon: %w", err)
	}
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return Record{}, fmt.Errorf("coupon %s amount: %w", rec.Code, err)
	}
	if rec.Minimum, err = optionalDecimal(minimum); err != nil {
		return Record{}, fmt.Errorf("coupon %s minimum: %w", rec.Code, err)
	}
	if rec.Maximum, err = optionalDecimal(maximum); err != nil {
		return Record{}, fmt.Errorf("coupon %s maximum: %w", rec.Code, err)
	}
	if usageLimit != nil {
		limit := int(*usageLimit)
		rec.UsageLimit = &limit
	}
	rec.UsedCount = int(usedCount)
	rec.ExpiresAt = expiresAt
	rec.Source = "local"
	return rec, nil
}

// Create inserts a local coupon.
func (s PGStore) Create(ctx context.Context, rec Record) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO coupons (code, discount_type, amount, minimum_amount, maximum_amount, usage_limit, expires_at, enabled)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)`,
		NormalizeCode(rec.Code), rec.DiscountType, rec.Amount.String(),
		decimalText(rec.Minimum), decimalText(rec.Maximum), rec.UsageLimit, rec.ExpiresAt, rec.Enabled,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

// RecordUsage implements UsageRecorder.
func (s PGStore) RecordUsage(ctx context.Context, code string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE upper(code) = $1`, NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("update coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func optionalDecimal(v *string) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalText(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
