package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps orders in Postgres with line items as JSONB.
type PGStore struct {
	DB DB
}

const orderColumns = `id, order_number, status, currency, total::text, subtotal::text, tax_total::text,
       discount_total::text, tax_rate::text, coalesce(coupon_code, ''), customer_name, cashier_name,
       payment_method, line_items, created_at, synced, remote_id`

// Create inserts o and sets its ID and CreatedAt.
func (s PGStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}
	var coupon *string
	if o.CouponCode != "" {
		coupon = &o.CouponCode
	}
	err = s.DB.QueryRow(ctx, `
INSERT INTO orders (order_number, status, currency, total, subtotal, tax_total, discount_total, tax_rate,
                    coupon_code, customer_name, cashier_name, payment_method, line_items, created_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14)
RETURNING id, created_at`,
		o.Number, o.Status, o.Currency, o.Total, o.Subtotal, o.TaxTotal, o.DiscountTotal, o.TaxRate,
		coupon, o.CustomerName, o.CashierName, o.PaymentMethod, items, createdAt(o.CreatedAt),
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// FindByNumber implements Store.
func (s PGStore) FindByNumber(ctx context.Context, number string) (Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, NormalizeNumber(number)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("select order: %w", err)
	}
	return o, nil
}

// List returns the newest orders first.
func (s PGStore) List(ctx context.Context, limit, offset int) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return collect(rows)
}

// ListUnsynced returns the oldest orders not yet pushed upstream.
func (s PGStore) ListUnsynced(ctx context.Context, limit int) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE NOT synced ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsynced orders: %w", err)
	}
	return collect(rows)
}

// MarkSynced records the upstream id of a pushed order.
func (s PGStore) MarkSynced(ctx context.Context, id int64, remoteID int64) error {
	tag, err := s.DB.Exec(ctx, `UPDATE orders SET synced = TRUE, remote_id = $2, synced_at = now() WHERE id = $1`, id, remoteID)
	if err != nil {
		return fmt.Errorf("mark order synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o     Order
		items []byte
	)
	err := row.Scan(&o.ID, &o.Number, &o.Status, &o.Currency, &o.Total, &o.Subtotal, &o.TaxTotal,
		&o.DiscountTotal, &o.TaxRate, &o.CouponCode, &o.CustomerName, &o.CashierName,
		&o.PaymentMethod, &items, &o.CreatedAt, &o.Synced, &o.RemoteID)
	if err != nil {
		return Order{}, err
	}
	if err := json.Unmarshal(items, &o.LineItems); err != nil {
		return Order{}, fmt.Errorf("decode line items of %s: %w", o.Number, err)
	}
	return o, nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
