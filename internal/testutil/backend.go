package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-admin-session/internal/devbackend"
	"github.com/jrsteele09/go-admin-session/tenants"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Seeded accounts
const (
	TenantID = "acme"

	AdminEmail    = "admin@example.com"
	AdminPassword = "admin-password"

	MemberEmail    = "alice@acme.test"
	MemberPassword = "alice-password"
)

// Backend is a running development identity backend with seeded accounts.
type Backend struct {
	*devbackend.Server
	HTTP *httptest.Server
}

// URL is the base URL the gateway should use.
func (b *Backend) URL() string {
	return b.HTTP.URL
}

// NewBackend starts a development identity backend seeded with one tenant,
// one platform administrator and one tenant member. It is closed on cleanup.
func NewBackend(t testing.TB, opts ...devbackend.Option) *Backend {
	t.Helper()

	opts = append([]devbackend.Option{devbackend.WithLogger(zerolog.Nop())}, opts...)
	srv, err := devbackend.New(opts...)
	require.NoError(t, err)

	require.NoError(t, srv.SeedTenant(&tenants.Tenant{ID: TenantID, Name: "Acme", Domain: "acme.localhost"}))
	require.NoError(t, srv.SeedUser(&users.User{
		Email:       AdminEmail,
		FirstName:   "Platform",
		LastName:    "Admin",
		SystemRoles: []users.RoleType{users.RoleSuperAdmin},
	}, AdminPassword))
	require.NoError(t, srv.SeedUser(&users.User{
		Email:     MemberEmail,
		FirstName: "Alice",
		Tenants: []users.TenantMembership{
			{TenantID: TenantID, Roles: []users.RoleType{users.RoleTenantUser}},
		},
	}, MemberPassword))

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &Backend{Server: srv, HTTP: ts}
}
