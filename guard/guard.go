// Package guard decides whether the current session may enter a protected
// area of the console, and sends the user to the right login page if not.
package guard

import (
	"context"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/jrsteele09/go-admin-session/route"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Decision is the state of a guard evaluation.
type Decision string

const (
	DecisionChecking Decision = "checking"
	DecisionAllowed  Decision = "allowed"
	DecisionDenied   Decision = "denied"
)

// Requirement is what a principal must satisfy once authenticated.
type Requirement int

const (
	// RequireAuthenticated admits any principal.
	RequireAuthenticated Requirement = iota
	// RequirePlatformAdmin admits platform administrators only.
	RequirePlatformAdmin
)

// EvaluateAccess applies requirement to user. It has no side effects.
func EvaluateAccess(user *users.Profile, requirement Requirement) Decision {
	if user == nil {
		return DecisionDenied
	}
	if requirement == RequirePlatformAdmin && !user.IsPlatformAdmin() {
		return DecisionDenied
	}
	return DecisionAllowed
}

// Gateway is the part of the auth gateway guards need.
type Gateway interface {
	Refresh(ctx context.Context) (string, error)
	FetchCurrentUser(ctx context.Context) (*users.Profile, error)
}

// Guard variants
const (
	VariantTenant   = "tenant"
	VariantPlatform = "platform"
)

// Guard gates one protected area.
type Guard struct {
	variant     string
	requirement Requirement
	loginRoute  string
	store       *session.Store
	gateway     Gateway
	navigator   route.Navigator
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	mu    sync.Mutex
	state Decision
}

type Option func(*Guard)

func WithLoginRoute(r string) Option {
	return func(g *Guard) { g.loginRoute = r }
}

func WithNavigator(n route.Navigator) Option {
	return func(g *Guard) { g.navigator = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// NewTenantGuard admits any authenticated principal.
func NewTenantGuard(store *session.Store, gw Gateway, opts ...Option) *Guard {
	return newGuard(VariantTenant, RequireAuthenticated, config.DefaultTenantLoginRoute, store, gw, opts)
}

// NewPlatformGuard admits platform administrators only.
func NewPlatformGuard(store *session.Store, gw Gateway, opts ...Option) *Guard {
	return newGuard(VariantPlatform, RequirePlatformAdmin, config.DefaultPlatformLoginRoute, store, gw, opts)
}

func newGuard(variant string, requirement Requirement, loginRoute string, store *session.Store, gw Gateway, opts []Option) *Guard {
	g := &Guard{
		variant:     variant,
		requirement: requirement,
		loginRoute:  loginRoute,
		store:       store,
		gateway:     gw,
		logger:      log.Logger,
		state:       DecisionChecking,
	}
	g.navigator = route.LogNavigator{Logger: g.logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Variant() string {
	return g.variant
}

func (g *Guard) LoginRoute() string {
	return g.loginRoute
}

// State returns the outcome of the latest evaluation, or DecisionChecking
// while one is running.
func (g *Guard) State() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Evaluate authenticates the session if needed and applies the guard's
// requirement. It never navigates.
func (g *Guard) Evaluate(ctx context.Context) Decision {
	g.setState(DecisionChecking)

	decision := DecisionDenied
	user, err := g.principal(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Str("guard", g.variant).Msg("no authenticated principal")
	} else {
		decision = EvaluateAccess(user, g.requirement)
	}

	g.setState(decision)
	g.metrics.RecordGuardDecision(g.variant, string(decision))
	return decision
}

// Check evaluates the guard and sends the user to the login route when denied.
func (g *Guard) Check(ctx context.Context) Decision {
	decision := g.Evaluate(ctx)
	if decision == DecisionDenied {
		g.navigator.Navigate(ctx, g.loginRoute)
	}
	return decision
}

// Watch checks the guard now and again whenever the session token or user
// changes, until ctx ends.
func (g *Guard) Watch(ctx context.Context) {
	changed := make(chan struct{}, 1)
	unsubscribe := g.store.Subscribe(func(session.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	last := g.checkAndRead(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			snap := g.store.Read()
			if snap.AccessToken == last.AccessToken && snap.User == last.User {
				continue
			}
			last = g.checkAndRead(ctx)
		}
	}
}

func (g *Guard) checkAndRead(ctx context.Context) session.Snapshot {
	g.Check(ctx)
	return g.store.Read()
}

func (g *Guard) principal(ctx context.Context) (*users.Profile, error) {
	snap := g.store.Read()
	if !snap.Authenticated() {
		accessToken, err := g.gateway.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		user, err := g.gateway.FetchCurrentUser(ctx)
		if err != nil {
			// A token without a usable principal is not a session.
			g.store.ClearIf(accessToken)
			return nil, err
		}
		if !g.store.CompareAndSetAuth(accessToken, accessToken, user) && !g.store.Read().Authenticated() {
			return nil, errors.ErrNotAuthenticated
		}
		return user, nil
	}

	if snap.User != nil {
		return snap.User, nil
	}
	user, err := g.gateway.FetchCurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	// Only attach the user to the token it was fetched with.
	g.store.CompareAndSetAuth(snap.AccessToken, snap.AccessToken, user)
	return user, nil
}

func (g *Guard) setState(d Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = d
}

// Middleware admits requests the guard allows and redirects the rest to the
// guard's login route with 303 See Other.
func Middleware(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Evaluate(r.Context()) != DecisionAllowed {
				http.Redirect(w, r, g.loginRoute, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
