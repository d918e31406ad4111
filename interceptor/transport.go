// Package interceptor authenticates outbound console calls with the stored
// access token and repairs the session once when the backend answers 401.
package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/jrsteele09/go-admin-session/oauth2"
	"github.com/jrsteele09/go-admin-session/route"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Gateway is the part of the auth gateway the interceptor needs.
type Gateway interface {
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context)
}

// Transport is an http.RoundTripper that attaches the bearer token, and on a
// 401 refreshes once and retries once. If the refresh fails the session is
// logged out and the user is sent to the login route.
type Transport struct {
	base       http.RoundTripper
	store      *session.Store
	gateway    Gateway
	navigator  route.Navigator
	loginRoute string
	timeout    time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	// endMu serializes ending the session after a failed refresh.
	endMu sync.Mutex
}

var _ http.RoundTripper = (*Transport)(nil)

type Option func(*Transport)

// WithBase sets the transport requests are sent with. Defaults to http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

func WithNavigator(n route.Navigator) Option {
	return func(t *Transport) { t.navigator = n }
}

// WithLoginRoute sets where the user is sent when the session cannot be repaired.
func WithLoginRoute(r string) Option {
	return func(t *Transport) { t.loginRoute = r }
}

// WithTimeout sets the timeout of clients built by NewClient.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

func New(store *session.Store, gw Gateway, opts ...Option) *Transport {
	t := &Transport{
		base:       http.DefaultTransport,
		store:      store,
		gateway:    gw,
		loginRoute: config.DefaultTenantLoginRoute,
		timeout:    config.DefaultHTTPTimeout,
		logger:     log.Logger,
	}
	t.navigator = route.LogNavigator{Logger: t.logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient returns an http.Client sending through a new Transport.
func NewClient(store *session.Store, gw Gateway, opts ...Option) *http.Client {
	t := New(store, gw, opts...)
	return &http.Client{Transport: t, Timeout: t.timeout}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	sent := t.store.Read()
	first, err := t.authorize(req, getBody, sent.AccessToken)
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	drain(resp)

	ctx := req.Context()
	accessToken, err := t.gateway.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
		}
		t.endSession(context.WithoutCancel(ctx), sent.Generation, req, err)
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthorized, err)
	}

	retry, err := t.authorize(req, getBody, accessToken)
	if err != nil {
		return nil, err
	}
	resp, err = t.base.RoundTrip(retry)
	t.metrics.RecordInterceptorRetry(err == nil && resp.StatusCode != http.StatusUnauthorized)
	return resp, err
}

// endSession logs out and redirects once per failed refresh. Requests that
// shared the refresh find the session already changed and leave it alone.
func (t *Transport) endSession(ctx context.Context, generation uint64, req *http.Request, cause error) {
	t.endMu.Lock()
	defer t.endMu.Unlock()

	if t.store.Read().Generation != generation {
		t.logger.Debug().Err(cause).Str("url", req.URL.Redacted()).Msg("session already changed, not logging out again")
		return
	}
	t.logger.Warn().Err(cause).Str("url", req.URL.Redacted()).Msg("session could not be repaired, logging out")
	t.gateway.Logout(ctx)
	t.navigator.Navigate(ctx, t.loginRoute)
}

// authorize clones req with a fresh body and the bearer token attached.
func (t *Transport) authorize(req *http.Request, getBody func() (io.ReadCloser, error), accessToken string) (*http.Request, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}
	if accessToken != "" {
		oauth2.BearerToken(accessToken).SetAuthHeader(out)
	}
	return out, nil
}

// replayableBody returns a function producing a fresh copy of req's body, or
// nil when the request has none.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
