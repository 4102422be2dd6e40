package syncer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/order"
)

type memoryOrders struct {
	pending []order.Order
	synced  map[int64]int64
	markErr error
}

func (m *memoryOrders) ListUnsynced(_ context.Context, limit int) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.pending {
		if _, done := m.synced[o.ID]; done {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryOrders) MarkSynced(_ context.Context, id, remoteID int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.synced[id] = remoteID
	return nil
}

type fakePusher struct {
	fail   map[string]bool
	pushed []string
}

func (p *fakePusher) PushOrder(_ context.Context, o order.Order) (int64, error) {
	if p.fail[o.Number] {
		return 0, errors.New("upstream 500")
	}
	p.pushed = append(p.pushed, o.Number)
	return 1000 + o.ID, nil
}

func newOrders(n int) *memoryOrders {
	m := &memoryOrders{synced: map[int64]int64{}}
	for i := 1; i <= n; i++ {
		m.pending = append(m.pending, order.Order{ID: int64(i), Number: order.NumberFor(time.UnixMilli(int64(i)))})
	}
	return m
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, Prefix: "pos:lock:"}
}

func TestRunOncePushesBatch(t *testing.T) {
	orders := newOrders(3)
	pusher := &fakePusher{}
	s := &Syncer{Orders: orders, Pusher: pusher, Locker: newLocker(t), BatchSize: 2}

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Attempted: 2, Synced: 2}, report)
	require.Equal(t, map[int64]int64{1: 1001, 2: 1002}, orders.synced)

	report, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced)
	require.Len(t, orders.synced, 3)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	obs.MustRegisterDomainMetrics("pos", prometheus.NewRegistry())
	before := testutil.ToFloat64(obs.OrderSyncTotal.WithLabelValues("error"))

	orders := newOrders(3)
	pusher := &fakePusher{fail: map[string]bool{"POS-2": true}}
	s := &Syncer{Orders: orders, Pusher: pusher}

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Attempted)
	require.Equal(t, 2, report.Synced)
	require.Equal(t, 1, report.Failed)
	require.Contains(t, report.Errors[0], "POS-2")
	require.NotContains(t, orders.synced, int64(2))
	require.Equal(t, before+1, testutil.ToFloat64(obs.OrderSyncTotal.WithLabelValues("error")))
}

func TestRunOnceMarkFailure(t *testing.T) {
	orders := newOrders(1)
	orders.markErr = errors.New("db down")
	s := &Syncer{Orders: orders, Pusher: &fakePusher{}}

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
}

func TestRunOnceBusy(t *testing.T) {
	locker := newLocker(t)
	s := &Syncer{Orders: newOrders(1), Pusher: &fakePusher{}, Locker: locker}

	err := locker.TryWithLock(context.Background(), lockKey, time.Minute, func(ctx context.Context) error {
		_, err := s.RunOnce(ctx)
		return err
	})
	require.ErrorIs(t, err, ErrBusy)
}

func TestLoopStopsOnCancel(t *testing.T) {
	orders := newOrders(1)
	s := &Syncer{Orders: orders, Pusher: &fakePusher{}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Loop(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, orders.synced, 1)
}

func TestTriggerHandler(t *testing.T) {
	h := &Handler{Syncer: &Syncer{Orders: newOrders(2), Pusher: &fakePusher{}}}
	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/woocommerce", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"synced":2`)

	locker := newLocker(t)
	h.Syncer.Locker = locker
	err := locker.TryWithLock(context.Background(), lockKey, time.Minute, func(context.Context) error {
		rec = httptest.NewRecorder()
		h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/woocommerce", nil))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, rec.Code)
}
