package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a lookup because the
// carrier has been failing.
var ErrOpenCircuit = errors.New("resilience: carrier circuit open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all lookups and tracks failures.
	Closed State = iota
	// Open rejects lookups until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to determine carrier recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes when the breaker opens and for how long.
type BreakerConfig struct {
	// Carrier is the telemetry label for the protected dependency.
	Carrier string
	// MinRequests is the number of observed lookups before the ratio applies.
	MinRequests int
	// FailureRatio opens the breaker once failures/total meets it.
	FailureRatio float64
	// OpenFor is the cool-off before a half-open probe is admitted.
	OpenFor time.Duration
	Log     zerolog.Logger
}

// Breaker is a failure-ratio circuit breaker guarding the carrier site. A
// carrier that times out or serves a changed page on most lookups gets a
// cool-off instead of a browser session per doomed request.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker constructs a breaker from cfg, applying defaults for zero values.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Carrier == "" {
		cfg.Carrier = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	b := &Breaker{cfg: cfg, state: Closed}
	b.recordStateLocked()
	return b
}

// Allow reports whether a lookup is permitted in the current state. When open
// it only permits one after the cool-off and moves into half-open to sample
// the carrier.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) >= b.cfg.OpenFor {
			b.changeStateLocked(ctx, HalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// Report records a lookup outcome and transitions the state machine when the
// configured thresholds are exceeded.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}

	total := b.failures + b.successes
	if total < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.cfg.FailureRatio {
		b.changeStateLocked(ctx, Open)
	} else if total > b.cfg.MinRequests*2 {
		// keep the window rolling instead of growing counters forever
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// CurrentState returns the breaker state at the time of the call.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == Open {
		b.openedAt = time.Now()
	} else {
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.recordStateLocked()
	b.recordTransition(ctx, prev, next)
}

func (b *Breaker) recordStateLocked() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.cfg.Carrier).Set(stateGaugeValue(b.state))
	}
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.cfg.Carrier, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Carrier).Inc()
	}
	evt := b.cfg.Log.Info().
		Str("carrier", b.cfg.Carrier).
		Str("from_state", from.String()).
		Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("carrier breaker transition")
}

func stateGaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}
