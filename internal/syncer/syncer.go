package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/order"
)

// ErrBusy is returned when another process is already syncing.
var ErrBusy = errors.New("order sync already running")

const lockKey = "order-sync"

// Pusher creates an order upstream and returns its remote id.
type Pusher interface {
	PushOrder(ctx context.Context, o order.Order) (int64, error)
}

// Locker serialises sync runs across processes.
type Locker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Orders is the order store surface the syncer needs.
type Orders interface {
	ListUnsynced(ctx context.Context, limit int) ([]order.Order, error)
	MarkSynced(ctx context.Context, id int64, remoteID int64) error
}

// Report summarises one run.
type Report struct {
	Attempted int      `json:"attempted"`
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Syncer pushes locally completed orders to WooCommerce.
type Syncer struct {
	Orders    Orders
	Pusher    Pusher
	Locker    Locker
	LockTTL   time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

// RunOnce pushes one batch of unsynced orders. A failed push leaves the order
// unsynced for the next run and does not stop the batch.
func (s *Syncer) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	run := func(ctx context.Context) error {
		var err error
		report, err = s.push(ctx)
		return err
	}
	if s.Locker == nil {
		err := run(ctx)
		return report, err
	}
	err := s.Locker.TryWithLock(ctx, lockKey, s.LockTTL, run)
	if errors.Is(err, lock.ErrNotAcquired) {
		return Report{}, ErrBusy
	}
	return report, err
}

func (s *Syncer) push(ctx context.Context) (Report, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 25
	}
	pending, err := s.Orders.ListUnsynced(ctx, batch)
	if err != nil {
		return Report{}, fmt.Errorf("list unsynced orders: %w", err)
	}
	report := Report{Attempted: len(pending)}
	for _, o := range pending {
		if ctx.Err() != nil {
			return report, context.Cause(ctx)
		}
		log := s.Logger.With().Str("order", o.Number).Logger()
		remoteID, err := s.Pusher.PushOrder(ctx, o)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", o.Number, err))
			recordSync("error")
			log.Warn().Err(err).Msg("order push failed")
			continue
		}
		if err := s.Orders.MarkSynced(ctx, o.ID, remoteID); err != nil {
			// Already pushed upstream; the next run will push it again.
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: mark synced: %v", o.Number, err))
			recordSync("mark_failed")
			log.Error().Err(err).Int64("remote_id", remoteID).Msg("order pushed but not marked synced")
			continue
		}
		report.Synced++
		recordSync("success")
		log.Info().Int64("remote_id", remoteID).Msg("order synced")
	}
	return report, nil
}

// Loop runs RunOnce every interval until ctx is cancelled.
func (s *Syncer) Loop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := s.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrBusy):
			s.Logger.Debug().Msg("order sync skipped, another worker holds the lock")
		case err != nil && ctx.Err() == nil:
			s.Logger.Error().Err(err).Msg("order sync run failed")
		case report.Attempted > 0:
			s.Logger.Info().Int("synced", report.Synced).Int("failed", report.Failed).Msg("order sync run")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func recordSync(result string) {
	if obs.OrderSyncTotal != nil {
		obs.OrderSyncTotal.WithLabelValues(result).Inc()
	}
}
