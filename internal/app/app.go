// Package app wires the session core together the way the console boots it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-admin-session/gateway"
	"github.com/jrsteele09/go-admin-session/guard"
	"github.com/jrsteele09/go-admin-session/interceptor"
	"github.com/jrsteele09/go-admin-session/internal/clock"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/jrsteele09/go-admin-session/renewal"
	"github.com/jrsteele09/go-admin-session/restore"
	"github.com/jrsteele09/go-admin-session/route"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App owns one console session and every component acting on it.
type App struct {
	Config        config.Config
	Store         *session.Store
	Gateway       *gateway.Gateway
	Restorer      *restore.Restorer
	Scheduler     *renewal.Scheduler
	TenantGuard   *guard.Guard
	PlatformGuard *guard.Guard
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry

	// Client sends authenticated console calls through the 401 interceptor.
	Client *http.Client

	logger zerolog.Logger
}

type options struct {
	logger     zerolog.Logger
	navigator  route.Navigator
	clock      clock.Clock
	httpClient *http.Client
	registry   *prometheus.Registry
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNavigator sets what performs redirects to the login routes.
func WithNavigator(n route.Navigator) Option {
	return func(o *options) { o.navigator = n }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient sets the client used for identity backend calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRegistry sets the registry metrics are registered on.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// New validates cfg and builds the session core.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("[app New] %w", err)
	}

	o := options{
		logger:   log.Logger,
		clock:    clock.Real(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.navigator == nil {
		o.navigator = route.LogNavigator{Logger: o.logger}
	}

	a := &App{
		Config:   cfg,
		Store:    session.NewStore(),
		Metrics:  metrics.New(cfg.GetMetricsEnabled(), o.registry),
		Registry: o.registry,
		logger:   o.logger,
	}

	var mirror session.Mirror = session.NopMirror{}
	if path := cfg.GetTokenMirrorPath(); path != "" {
		mirror = session.NewFileMirror(path)
	}

	gwOpts := []gateway.Option{
		gateway.WithTimeout(cfg.GetHTTPTimeout()),
		gateway.WithMirror(mirror),
		gateway.WithLogger(o.logger),
		gateway.WithMetrics(a.Metrics),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	gw, err := gateway.New(cfg.GetIdentityBaseURL(), a.Store, gwOpts...)
	if err != nil {
		return nil, fmt.Errorf("[app New] %w", err)
	}
	a.Gateway = gw

	a.Restorer = restore.New(a.Store, gw,
		restore.WithLogger(o.logger),
		restore.WithMetrics(a.Metrics),
	)
	a.Scheduler = renewal.New(a.Store, gw,
		renewal.WithClock(o.clock),
		renewal.WithLogger(o.logger),
		renewal.WithMetrics(a.Metrics),
		renewal.WithTimeout(cfg.GetHTTPTimeout()),
		renewal.WithRatio(cfg.GetRenewalRatio()),
		renewal.WithMargin(cfg.GetRenewalMargin()),
	)
	a.TenantGuard = guard.NewTenantGuard(a.Store, gw,
		guard.WithLoginRoute(cfg.GetTenantLoginRoute()),
		guard.WithNavigator(o.navigator),
		guard.WithLogger(o.logger),
		guard.WithMetrics(a.Metrics),
	)
	a.PlatformGuard = guard.NewPlatformGuard(a.Store, gw,
		guard.WithLoginRoute(cfg.GetPlatformLoginRoute()),
		guard.WithNavigator(o.navigator),
		guard.WithLogger(o.logger),
		guard.WithMetrics(a.Metrics),
	)
	a.Client = interceptor.NewClient(a.Store, gw,
		interceptor.WithLoginRoute(cfg.GetTenantLoginRoute()),
		interceptor.WithNavigator(o.navigator),
		interceptor.WithTimeout(cfg.GetHTTPTimeout()),
		interceptor.WithLogger(o.logger),
		interceptor.WithMetrics(a.Metrics),
	)
	return a, nil
}

// Start restores the session and begins proactive renewal.
func (a *App) Start(ctx context.Context) restore.Outcome {
	outcome := a.Restorer.Run(ctx)
	a.logger.Debug().Str("outcome", string(outcome)).Msg("restoration complete")
	a.Scheduler.Start()
	return outcome
}

// Close stops renewal, waiting for a renewal in flight until ctx ends.
func (a *App) Close(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		a.Scheduler.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app close: %w", ctx.Err())
	}
}
