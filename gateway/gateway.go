// Package gateway issues the console's HTTP exchanges with the identity
// backend: login, current user lookup, refresh, logout and impersonation.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/jrsteele09/go-admin-session/oauth2"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Identity backend routes
const (
	PathLogin          = "/auth/login"
	PathCurrentUser    = "/users/me"
	PathToken          = "/oauth2-secure/token"
	PathLogout         = "/auth/logout"
	PathImpersonations = "/api/admin/impersonations"

	HeaderCSRF = "X-CSRF-Token"
)

const maxBodySize = 1 << 20

var validate = validator.New()

// LoginResult is a successful login. User is nil when the backend did not embed one.
type LoginResult struct {
	AccessToken string
	User        *users.Profile
}

// Impersonation is a short-lived token scoped to a tenant.
type Impersonation struct {
	ID          string
	AccessToken string
	ExpiresAt   time.Time
}

// Gateway talks to the identity backend on behalf of one session store.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	mirror     session.Mirror
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	nowFunc    func() time.Time

	refreshGroup singleflight.Group

	mu        sync.Mutex
	csrfToken string

	// epoch increases whenever a session ends or a new one starts. A refresh
	// only writes if the epoch it started under is still current.
	epochMu sync.Mutex
	epoch   uint64
}

type Option func(*Gateway)

// WithHTTPClient replaces the default client. The client needs a cookie jar
// for the refresh credential to survive between calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithTimeout sets the timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.httpClient.Timeout = d }
}

func WithMirror(m session.Mirror) Option {
	return func(g *Gateway) { g.mirror = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithNowFunc(now func() time.Time) Option {
	return func(g *Gateway) { g.nowFunc = now }
}

// New creates a gateway for the backend at baseURL writing into store.
func New(baseURL string, store *session.Store, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[gateway New] invalid base URL %q", baseURL)
	}
	if store == nil {
		return nil, fmt.Errorf("[gateway New] store is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("[gateway New] failed to create cookie jar: %w", err)
	}

	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Jar: jar, Timeout: config.DefaultHTTPTimeout},
		store:      store,
		mirror:     session.NopMirror{},
		logger:     log.Logger,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient.Jar == nil {
		g.logger.Warn().Msg("gateway HTTP client has no cookie jar, refresh will not work")
	}
	return g, nil
}

// HTTPClient returns the client used for identity calls.
func (g *Gateway) HTTPClient() *http.Client {
	return g.httpClient
}

// Login exchanges credentials for an access token and stores it. tenantID
// scopes the login to a tenant and may be empty for platform logins.
func (g *Gateway) Login(ctx context.Context, email, password, tenantID string) (*LoginResult, error) {
	body, err := json.Marshal(oauth2.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	query := url.Values{}
	if tenantID != "" {
		query.Set("tenantId", tenantID)
	}
	req, err := g.newRequest(ctx, http.MethodPost, PathLogin, query, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.metrics.RecordLogin(false)
		return nil, fmt.Errorf("login: %w", err)
	}
	defer closeBody(resp)

	if !isSuccess(resp) {
		g.metrics.RecordLogin(false)
		return nil, errors.NewBackendError(errors.ErrInvalidCredentials, resp.StatusCode, errorText(resp), "invalid email or password")
	}

	var lr oauth2.LoginResponse
	if err := decodeJSON(resp, &lr); err != nil {
		g.metrics.RecordLogin(false)
		return nil, fmt.Errorf("login: %w", err)
	}
	if lr.AccessToken == "" {
		g.metrics.RecordLogin(false)
		return nil, fmt.Errorf("login: response has no access_token")
	}

	g.setCSRF("")
	g.epochMu.Lock()
	g.epoch++
	// A nil user replaces the previous principal too.
	g.store.Replace(lr.AccessToken, lr.User)
	g.saveMirror(lr.AccessToken)
	g.epochMu.Unlock()
	g.metrics.RecordLogin(true)

	g.logger.Info().Str("email", email).Str("tenant", tenantID).Msg("logged in")
	return &LoginResult{AccessToken: lr.AccessToken, User: lr.User}, nil
}

// FetchCurrentUser looks up the principal behind the stored access token.
func (g *Gateway) FetchCurrentUser(ctx context.Context) (*users.Profile, error) {
	snap := g.store.Read()
	if !snap.Authenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	req, err := g.newRequest(ctx, http.MethodGet, PathCurrentUser, nil, nil)
	if err != nil {
		return nil, err
	}
	oauth2.BearerToken(snap.AccessToken).SetAuthHeader(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	defer closeBody(resp)

	if !isSuccess(resp) {
		return nil, errors.NewBackendError(errors.ErrUnauthorized, resp.StatusCode, errorText(resp), "session is no longer valid")
	}

	var profile users.Profile
	if err := decodeJSON(resp, &profile); err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	return &profile, nil
}

// Refresh trades the refresh cookie for a new access token, stores it and
// returns it. Concurrent callers share a single exchange. A caller whose ctx
// ends stops waiting, but the shared exchange runs to completion. A token that
// arrives after Logout or Login ended the session it was requested for is
// discarded and the refresh fails.
func (g *Gateway) Refresh(ctx context.Context) (string, error) {
	ch := g.refreshGroup.DoChan("refresh", func() (any, error) {
		return g.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			g.metrics.RecordRefreshCoalesced()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", errors.ErrRefreshFailed, ctx.Err())
	}
}

func (g *Gateway) refresh(ctx context.Context) (string, error) {
	epoch := g.currentEpoch()

	form := url.Values{"grant_type": {oauth2.GrantTypeRefreshToken}}
	req, err := g.newRequest(ctx, http.MethodPost, PathToken, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if csrf := g.getCSRF(); csrf != "" {
		req.Header.Set(HeaderCSRF, csrf)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.metrics.RecordRefresh(false)
		return "", fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	defer closeBody(resp)

	if !isSuccess(resp) {
		g.metrics.RecordRefresh(false)
		g.logger.Debug().Int("status", resp.StatusCode).Msg("refresh rejected")
		return "", errors.NewBackendError(errors.ErrRefreshFailed, resp.StatusCode, errorText(resp), "session could not be refreshed")
	}

	var tr oauth2.TokenResponse
	if err := decodeJSON(resp, &tr); err != nil {
		g.metrics.RecordRefresh(false)
		return "", fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	if tr.AccessToken == "" {
		g.metrics.RecordRefresh(false)
		return "", fmt.Errorf("%w: response has no access_token", errors.ErrRefreshFailed)
	}

	tok := tr.Token(g.nowFunc())
	g.epochMu.Lock()
	if g.epoch != epoch {
		g.epochMu.Unlock()
		g.metrics.RecordRefresh(false)
		g.logger.Debug().Msg("session ended while refreshing, new token discarded")
		return "", fmt.Errorf("%w: session ended while refreshing", errors.ErrRefreshFailed)
	}
	if tr.CSRFToken != "" {
		g.setCSRF(tr.CSRFToken)
	}
	g.store.SetAuth(tok.AccessToken, nil)
	g.saveMirror(tok.AccessToken)
	g.epochMu.Unlock()
	g.metrics.RecordRefresh(true)

	g.logger.Debug().Time("expiry_hint", tok.Expiry).Msg("access token refreshed")
	return tok.AccessToken, nil
}

// Logout revokes the session server-side on a best-effort basis, then clears
// the store and the token mirror whatever the outcome.
func (g *Gateway) Logout(ctx context.Context) {
	snap := g.store.Read()

	req, err := g.newRequest(ctx, http.MethodPost, PathLogout, nil, nil)
	if err == nil {
		if snap.Authenticated() {
			oauth2.BearerToken(snap.AccessToken).SetAuthHeader(req)
		}
		if csrf := g.getCSRF(); csrf != "" {
			req.Header.Set(HeaderCSRF, csrf)
		}

		resp, doErr := g.httpClient.Do(req)
		switch {
		case doErr != nil:
			g.logger.Warn().Err(doErr).Msg("Logout: revocation request failed")
		case !isSuccess(resp):
			g.logger.Warn().Int("status", resp.StatusCode).Msg("Logout: revocation rejected")
			closeBody(resp)
		default:
			closeBody(resp)
		}
	} else {
		g.logger.Warn().Err(err).Msg("Logout: failed to build revocation request")
	}

	g.epochMu.Lock()
	g.epoch++
	g.setCSRF("")
	g.store.Clear()
	if err := g.mirror.Clear(); err != nil {
		g.logger.Warn().Err(err).Msg("Logout: failed to clear token mirror")
	}
	g.epochMu.Unlock()
	g.metrics.RecordLogout()
	g.logger.Info().Msg("logged out")
}

// Impersonate asks for a short-lived token acting within tenantID. reason is
// recorded by the backend for audit and is mandatory. The current session is
// not modified.
func (g *Gateway) Impersonate(ctx context.Context, tenantID, reason string) (*Impersonation, error) {
	snap := g.store.Read()
	if !snap.Authenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	ir := oauth2.ImpersonationRequest{TenantID: tenantID, Reason: strings.TrimSpace(reason)}
	if err := validate.Struct(ir); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrInvalidRequest, err)
	}
	body, err := json.Marshal(ir)
	if err != nil {
		return nil, fmt.Errorf("impersonate: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, PathImpersonations, nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	oauth2.BearerToken(snap.AccessToken).SetAuthHeader(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("impersonate: %w", err)
	}
	defer closeBody(resp)

	if !isSuccess(resp) {
		return nil, errors.NewBackendError(errors.ErrImpersonationDenied, resp.StatusCode, errorText(resp), "impersonation was denied")
	}

	var ir2 oauth2.ImpersonationResponse
	if err := decodeJSON(resp, &ir2); err != nil {
		return nil, fmt.Errorf("impersonate: %w", err)
	}

	g.logger.Info().Str("tenant", tenantID).Str("impersonation_id", ir2.ImpersonationID).Msg("impersonation granted")
	return &Impersonation{
		ID:          ir2.ImpersonationID,
		AccessToken: ir2.AccessToken,
		ExpiresAt:   g.nowFunc().Add(time.Duration(ir2.ExpiresIn) * time.Second),
	}, nil
}

func (g *Gateway) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (g *Gateway) currentEpoch() uint64 {
	g.epochMu.Lock()
	defer g.epochMu.Unlock()
	return g.epoch
}

func (g *Gateway) saveMirror(accessToken string) {
	if err := g.mirror.Save(accessToken); err != nil {
		g.logger.Warn().Err(err).Msg("failed to mirror access token")
	}
}

func (g *Gateway) getCSRF() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.csrfToken
}

func (g *Gateway) setCSRF(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.csrfToken = token
}

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func decodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorText extracts the backend message from an error response, if any.
func errorText(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil || len(data) == 0 {
		return ""
	}
	var er oauth2.ErrorResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return ""
	}
	return er.Text()
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
}
