// Package renewal refreshes the access token shortly before it expires.
package renewal

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/clock"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Gateway is the part of the auth gateway renewal needs.
type Gateway interface {
	Refresh(ctx context.Context) (string, error)
	FetchCurrentUser(ctx context.Context) (*users.Profile, error)
}

// Delay returns how long to wait before renewing a token expiring at expiry:
// ratio of the remaining lifetime, or margin before expiry, whichever comes
// first, and never negative.
func Delay(expiry, now time.Time, ratio float64, margin time.Duration) time.Duration {
	remaining := expiry.Sub(now)
	if remaining <= 0 {
		return 0
	}
	d := time.Duration(float64(remaining) * ratio)
	if beforeMargin := remaining - margin; beforeMargin < d {
		d = beforeMargin
	}
	if d < 0 {
		d = 0
	}
	return d
}

type pendingRenewal struct {
	fireAt     time.Time
	generation uint64
	token      string
	timer      clock.Timer
}

// Scheduler keeps at most one renewal armed for the token in the store.
type Scheduler struct {
	store   *session.Store
	gateway Gateway
	clock   clock.Clock
	logger  zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	ratio   float64
	margin  time.Duration

	mu          sync.Mutex
	started     bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	seen        bool
	lastGen     uint64
	pending     *pendingRenewal
	inflight    sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTimeout bounds each renewal exchange.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithRatio sets the share of the remaining lifetime to wait before renewing.
func WithRatio(r float64) Option {
	return func(s *Scheduler) { s.ratio = r }
}

// WithMargin sets the minimum lead time before expiry.
func WithMargin(d time.Duration) Option {
	return func(s *Scheduler) { s.margin = d }
}

func New(store *session.Store, gw Gateway, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		gateway: gw,
		clock:   clock.Real(),
		logger:  log.Logger,
		timeout: config.DefaultHTTPTimeout,
		ratio:   config.DefaultRenewalRatio,
		margin:  config.DefaultRenewalMargin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the store and schedules a renewal for the current token.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.seen = false
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.unsubscribe = s.store.Subscribe(s.onChange)
	s.mu.Unlock()

	s.onChange(s.store.Read())
}

// Stop cancels the pending renewal and waits for one in flight to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.unsubscribe()
	s.cancelPendingLocked()
	s.cancel()
	s.mu.Unlock()

	s.inflight.Wait()
}

// Pending returns the fire time of the armed renewal, if any.
func (s *Scheduler) Pending() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return time.Time{}, false
	}
	return s.pending.fireAt, true
}

func (s *Scheduler) onChange(snap session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if s.seen && snap.Generation <= s.lastGen {
		return
	}
	s.seen = true
	s.lastGen = snap.Generation

	// A user-only update keeps the renewal for the same token.
	if s.pending != nil && s.pending.token == snap.AccessToken {
		return
	}
	s.cancelPendingLocked()

	if snap.AccessToken == "" {
		return
	}
	expiry, err := token.Expiry(snap.AccessToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("access token expiry unreadable, renewal not scheduled")
		return
	}
	now := s.clock.Now()
	if !expiry.After(now) {
		s.logger.Warn().Time("expiry", expiry).Msg("access token already expired, renewal not scheduled")
		return
	}

	delay := Delay(expiry, now, s.ratio, s.margin)
	p := &pendingRenewal{
		fireAt:     now.Add(delay),
		generation: snap.Generation,
		token:      snap.AccessToken,
	}
	p.timer = s.clock.AfterFunc(delay, func() { s.fire(p) })
	s.pending = p
	s.metrics.RecordRenewalScheduled()

	s.logger.Debug().Time("expiry", expiry).Dur("in", delay).Msg("renewal scheduled")
}

func (s *Scheduler) cancelPendingLocked() {
	if s.pending == nil {
		return
	}
	s.pending.timer.Stop()
	s.pending = nil
}

func (s *Scheduler) fire(p *pendingRenewal) {
	s.mu.Lock()
	if !s.started || s.pending != p {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.inflight.Add(1)
	parent := s.ctx
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	// held is the token this renewal is responsible for in the store.
	held := p.token
	accessToken, err := s.gateway.Refresh(ctx)
	var user *users.Profile
	if err == nil {
		held = accessToken
		user, err = s.gateway.FetchCurrentUser(ctx)
	}
	if err != nil {
		if parent.Err() != nil {
			// Stopped while renewing; the session is no longer ours to clear.
			return
		}
		s.metrics.RecordRenewal(false)
		if s.store.ClearIf(held) {
			s.logger.Warn().Err(err).Msg("renewal failed, session cleared")
		} else {
			s.logger.Debug().Err(err).Msg("renewal failed for a session that already ended")
		}
		return
	}

	if !s.store.CompareAndSetAuth(accessToken, accessToken, user) {
		s.logger.Debug().Msg("session changed while renewing, user not attached")
		return
	}
	s.metrics.RecordRenewal(true)
}
