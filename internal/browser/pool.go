package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parceltrack/backend-track/internal/obs"
)

// Pool bounds the number of concurrently live browser sessions. Admission
// waits at most QueueTimeout before failing with ErrPoolExhausted, so an
// overloaded service degrades with a fast rejection instead of piling up
// browser processes.
type Pool struct {
	engine       Engine
	slots        chan struct{}
	queueTimeout time.Duration
	log          zerolog.Logger
	inUse        atomic.Int64
}

// NewPool constructs a pool of at most size concurrent sessions on top of engine.
func NewPool(engine Engine, size int, queueTimeout time.Duration, log zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueTimeout <= 0 {
		queueTimeout = 5 * time.Second
	}
	return &Pool{
		engine:       engine,
		slots:        make(chan struct{}, size),
		queueTimeout: queueTimeout,
		log:          log,
	}
}

// Acquire reserves a slot and opens a fresh session. The returned lease must
// be released on every exit path of the caller. A caller-cancelled admission
// returns the context error; a full pool past the queue timeout returns
// ErrPoolExhausted; a failed browser start returns ErrSessionFailed.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()
	timer := time.NewTimer(p.queueTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		if obs.SessionsRejected != nil {
			obs.SessionsRejected.Inc()
		}
		return nil, ErrPoolExhausted
	}
	if obs.SessionWait != nil {
		obs.SessionWait.Observe(obs.DurationMillis(time.Since(start)))
	}

	sess, err := p.engine.NewSession(ctx)
	if err != nil {
		<-p.slots
		if obs.SessionFailures != nil {
			obs.SessionFailures.Inc()
		}
		p.log.Error().Err(err).Str("engine", p.engine.Name()).Msg("browser session start failed")
		return nil, fmt.Errorf("%w: %v", ErrSessionFailed, err)
	}

	p.inUse.Add(1)
	if obs.SessionsInUse != nil {
		obs.SessionsInUse.Inc()
	}
	lease := &Lease{
		ID:      uuid.NewString(),
		pool:    p,
		session: sess,
	}
	p.log.Debug().Str("lease_id", lease.ID).Str("engine", p.engine.Name()).Msg("browser session acquired")
	return lease, nil
}

// InUse reports the number of sessions currently held. Returning to zero
// between requests is the release invariant the tests assert.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Capacity reports the configured maximum concurrent session count.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

// Engine exposes the underlying engine, used by readiness probes.
func (p *Pool) Engine() Engine {
	return p.engine
}

// Lease is a held session slot. Release is idempotent.
type Lease struct {
	ID      string
	pool    *Pool
	session Session
	once    sync.Once
}

// Session returns the browser session owned by this lease.
func (l *Lease) Session() Session {
	return l.session
}

// Release closes the session and returns the slot to the pool. It runs at
// most once no matter how many code paths defer it.
func (l *Lease) Release() {
	l.once.Do(func() {
		if err := l.session.Close(); err != nil {
			l.pool.log.Error().Err(err).Str("lease_id", l.ID).Msg("browser session close failed")
		}
		l.pool.inUse.Add(-1)
		if obs.SessionsInUse != nil {
			obs.SessionsInUse.Dec()
		}
		<-l.pool.slots
		l.pool.log.Debug().Str("lease_id", l.ID).Msg("browser session released")
	})
}
