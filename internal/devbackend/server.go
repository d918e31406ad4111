// Package devbackend is a development identity backend serving the login,
// current user, refresh, logout and impersonation routes the console calls.
// It keeps everything in memory and is meant for local runs and tests.
package devbackend

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/tenants"
	tenantrepofakes "github.com/jrsteele09/go-admin-session/tenants/repofakes"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/keys"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-admin-session/token/refresh/repofake"
	"github.com/jrsteele09/go-admin-session/users"
	fakeuserrepo "github.com/jrsteele09/go-admin-session/users/repofake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// RefreshCookieName is the HTTP-only cookie carrying the refresh credential.
	RefreshCookieName = "refresh_token"

	defaultIssuer = "adminctl-devbackend"
)

// Server is an in-memory identity backend.
type Server struct {
	router    chi.Router
	users     users.UserRepo
	tenants   tenants.Repo
	refresh   *refresh.Manager
	creator   *token.Creator
	revoked   *token.Denylist
	lifetimes config.OAuthConfig
	logger    zerolog.Logger
	issuer    string
	embedUser bool

	allowedOrigins []string
	loginLimit     int

	mu         sync.Mutex
	calls      map[string]int
	issued     map[string]time.Time // jti to exp of every access token handed out
	tokenDelay time.Duration
}

type Option func(*Server)

// WithOAuthConfig sets the token lifetimes.
func WithOAuthConfig(cfg config.OAuthConfig) Option {
	return func(s *Server) { s.lifetimes = cfg }
}

// WithAccessTokenExpiry overrides the access token lifetime only.
func WithAccessTokenExpiry(d time.Duration) Option {
	return func(s *Server) { s.lifetimes = accessExpiryOverride{OAuthConfig: s.lifetimes, expiry: d} }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithIssuer(issuer string) Option {
	return func(s *Server) { s.issuer = issuer }
}

// WithLoginUser controls whether the login response embeds the user profile.
func WithLoginUser(embed bool) Option {
	return func(s *Server) { s.embedUser = embed }
}

// WithAllowedOrigins enables credentialed CORS for browser consoles served
// from origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithLoginRateLimit caps login attempts per client IP per minute. Zero
// disables the limit.
func WithLoginRateLimit(perMinute int) Option {
	return func(s *Server) { s.loginLimit = perMinute }
}

type accessExpiryOverride struct {
	config.OAuthConfig
	expiry time.Duration
}

func (o accessExpiryOverride) GetDefaultAccessTokenExpiry() time.Duration {
	return o.expiry
}

// New creates a backend with a freshly generated RS256 signing key.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		users:     fakeuserrepo.NewFakeUserRepo(),
		tenants:   tenantrepofakes.NewFakeTenantRepo(),
		revoked:   token.NewDenylist(),
		lifetimes: config.OAuth{},
		logger:    log.Logger,
		issuer:    defaultIssuer,
		embedUser: true,
		calls:     make(map[string]int),
		issued:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	keyPair, err := keys.GenerateRSAKeyPair("dev-1", 2048)
	if err != nil {
		return nil, fmt.Errorf("[devbackend New] failed to generate signing key: %w", err)
	}
	s.creator = token.NewCreator(keys.NewKeyPairSigner(keyPair), s.issuer)
	s.refresh = refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), s.lifetimes)
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SeedUser stores u with password hashed.
func (s *Server) SeedUser(u *users.User, password string) error {
	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = hash
	if err := s.users.Upsert(u); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}

func (s *Server) SeedTenant(t *tenants.Tenant) error {
	return s.tenants.Upsert(t)
}

// RevokeAccessTokens invalidates every access token issued so far. Refresh
// credentials stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.issued {
		s.revoked.Revoke(jti, exp)
	}
}

// RevokeAll invalidates every access token and every refresh credential.
func (s *Server) RevokeAll() {
	s.RevokeAccessTokens()

	all, err := s.users.List(0, 0)
	if err != nil {
		s.logger.Warn().Err(err).Msg("RevokeAll: failed to list users")
		return
	}
	for _, u := range all {
		if err := s.refresh.DeleteByUserID(u.ID); err != nil {
			s.logger.Warn().Err(err).Str("user", u.ID).Msg("RevokeAll: failed to delete refresh token")
		}
	}
}

// SetTokenDelay makes the token endpoint wait d before answering.
func (s *Server) SetTokenDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenDelay = d
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) countCall(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
}

func (s *Server) getTokenDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenDelay
}

func (s *Server) issueAccessToken(user *users.User, tenantID string, expiry time.Duration, extra map[string]any) (string, error) {
	raw, err := s.creator.CreateAccessToken(user, tenantID, expiry, extra)
	if err != nil {
		return "", err
	}
	claims, err := token.Parse(raw)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.issued[claims.ID] = claims.ExpiresAt
	s.mu.Unlock()
	return raw, nil
}
