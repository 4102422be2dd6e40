package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets a single probe through after the cool-off.
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// BreakerConfig configures NewBreakerFromConfig. Zero values pick defaults:
// one request, a 0.5 ratio and a 30s cool-off.
type BreakerConfig struct {
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Now          func() time.Time
}

// Breaker trips when the failure ratio over the most recent outcomes
// reaches the configured threshold.
type Breaker struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	state   State
	window  outcomeWindow
	since   time.Time
	probing bool
	log     *zerolog.Logger
}

// NewBreaker builds an anonymous breaker.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	return NewBreakerFromConfig(BreakerConfig{MinRequests: minRequests, FailureRatio: failureRatio, OpenFor: openFor})
}

func NewBreakerFromConfig(cfg BreakerConfig) *Breaker {
	if cfg.MinRequests < 1 {
		cfg.MinRequests = 1
	}
	switch {
	case cfg.FailureRatio <= 0:
		cfg.FailureRatio = 0.5
	case cfg.FailureRatio > 1:
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	b := &Breaker{cfg: cfg, window: newOutcomeWindow(2 * cfg.MinRequests)}
	b.publish()
	return b
}

// WithTarget relabels the breaker for metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	if target != "" {
		b.cfg.Target = target
	}
	b.mu.Unlock()
	b.publish()
	return b
}

// WithLogger sets the logger used when the request context carries none.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	b.log = &logger
	b.mu.Unlock()
	return b
}

func (b *Breaker) Target() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.Target
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose cool-off
// has elapsed moves to half-open and admits exactly one probe; a probe
// that never reports is replaced after another cool-off.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	switch b.state {
	case Closed:
		return true
	case Open:
		if now.Sub(b.since) < b.cfg.OpenFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen, now)
	case HalfOpen:
		if b.probing && now.Sub(b.since) < b.cfg.OpenFor {
			return false
		}
		b.since = now
	}
	b.probing = true
	return true
}

// Report feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	if b.state == HalfOpen {
		b.probing = false
		if success {
			b.window.reset()
			b.moveLocked(ctx, Closed, now)
		} else {
			b.moveLocked(ctx, Open, now)
		}
		return
	}
	if b.state == Open {
		return
	}

	b.window.add(success)
	total, failed := b.window.counts()
	if total < b.cfg.MinRequests {
		return
	}
	if float64(failed)/float64(total) >= b.cfg.FailureRatio {
		b.window.reset()
		b.moveLocked(ctx, Open, now)
	}
}

func (b *Breaker) moveLocked(ctx context.Context, next State, now time.Time) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.since = now
	target := b.cfg.Target

	BreakerState.WithLabelValues(target).Set(float64(next))
	BreakerTransitions.WithLabelValues(target, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}

	evt := b.loggerLocked(ctx).Info().
		Str("target", target).
		Str("from", prev.String()).
		Str("to", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publish() {
	b.mu.Lock()
	target, state := b.cfg.Target, b.state
	b.mu.Unlock()
	BreakerState.WithLabelValues(target).Set(float64(state))
}

func (b *Breaker) loggerLocked(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.log != nil {
		return b.log
	}
	nop := zerolog.Nop()
	return &nop
}

// outcomeWindow is a ring of the most recent call outcomes.
type outcomeWindow struct {
	failed []bool
	next   int
	filled int
}

func newOutcomeWindow(size int) outcomeWindow {
	return outcomeWindow{failed: make([]bool, size)}
}

func (w *outcomeWindow) add(success bool) {
	w.failed[w.next] = !success
	w.next = (w.next + 1) % len(w.failed)
	if w.filled < len(w.failed) {
		w.filled++
	}
}

func (w *outcomeWindow) counts() (total, failed int) {
	for i := 0; i < w.filled; i++ {
		if w.failed[i] {
			failed++
		}
	}
	return w.filled, failed
}

func (w *outcomeWindow) reset() {
	clear(w.failed)
	w.next, w.filled = 0, 0
}
