// Package restore turns a refresh credential held by the backend into an
// active session when the console starts.
package restore

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome of a restoration attempt.
type Outcome string

const (
	OutcomeAlreadyAuthenticated Outcome = "already_authenticated"
	OutcomeRestored             Outcome = "restored"
	OutcomeAnonymous            Outcome = "anonymous"
)

// Gateway is the part of the auth gateway restoration needs.
type Gateway interface {
	Refresh(ctx context.Context) (string, error)
	FetchCurrentUser(ctx context.Context) (*users.Profile, error)
}

// Restorer runs restoration at most once.
type Restorer struct {
	store   *session.Store
	gateway Gateway
	logger  zerolog.Logger
	metrics *metrics.Metrics

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

type Option func(*Restorer)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Restorer) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Restorer) { r.metrics = m }
}

func New(store *session.Store, gw Gateway, opts ...Option) *Restorer {
	r := &Restorer{
		store:   store,
		gateway: gw,
		logger:  log.Logger,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run restores the session. Only the first call does any work; concurrent and
// later callers get the first call's outcome. Failures are not errors: they
// leave the console anonymous.
func (r *Restorer) Run(ctx context.Context) Outcome {
	r.once.Do(func() {
		defer close(r.done)
		r.outcome = r.restore(ctx)
		r.metrics.RecordRestoration(string(r.outcome))
	})
	return r.outcome
}

// Done is closed once restoration has finished, whatever the outcome.
func (r *Restorer) Done() <-chan struct{} {
	return r.done
}

// Restoring reports whether restoration has not finished yet. It is true
// before Run is first called.
func (r *Restorer) Restoring() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Restorer) restore(ctx context.Context) Outcome {
	if r.store.Read().Authenticated() {
		return OutcomeAlreadyAuthenticated
	}

	accessToken, err := r.gateway.Refresh(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("no session to restore")
		return OutcomeAnonymous
	}

	user, err := r.gateway.FetchCurrentUser(ctx)
	if err != nil {
		r.logger.Debug().Err(err).Msg("restored token has no usable user")
		// Refresh already stored a token; drop it rather than keep a session without a principal.
		r.store.ClearIf(accessToken)
		return OutcomeAnonymous
	}

	if !r.store.CompareAndSetAuth(accessToken, accessToken, user) && !r.store.Read().Authenticated() {
		r.logger.Debug().Msg("session ended while restoring")
		return OutcomeAnonymous
	}
	r.logger.Info().Str("user", user.Email).Msg("session restored")
	return OutcomeRestored
}
