package token_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-admin-session/internal/testutil"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/keys"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/stretchr/testify/require"
)

func TestExpiry(t *testing.T) {
	exp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("reads exp", func(t *testing.T) {
		got, err := token.Expiry(testutil.UnsignedToken(t, "user-1", exp))
		require.NoError(t, err)
		require.True(t, exp.Equal(got))
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := token.Expiry("not-a-jwt")
		require.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := token.Expiry("  ")
		require.Error(t, err)
	})

	t.Run("missing exp", func(t *testing.T) {
		raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "x"}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = token.Expiry(raw)
		require.ErrorIs(t, err, token.ErrNoExpiry)
	})
}

func TestCreator(t *testing.T) {
	kp, err := keys.GenerateRSAKeyPair("test-key", 2048)
	require.NoError(t, err)
	creator := token.NewCreator(keys.NewKeyPairSigner(kp), "https://id.test")

	user := &users.User{
		ID:          "user-1",
		Email:       "root@x.com",
		SystemRoles: []users.RoleType{users.RoleSuperAdmin},
	}

	t.Run("round trip", func(t *testing.T) {
		raw, err := creator.CreateAccessToken(user, "tenant-a", 15*time.Minute, map[string]any{"impersonation_id": "imp-1"})
		require.NoError(t, err)

		claims, err := creator.Verify(raw)
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)
		require.Equal(t, "tenant-a", claims.TenantID)
		require.Equal(t, "imp-1", claims.ImpersonationID)
		require.Equal(t, []string{"super_admin"}, claims.Roles)
		require.NotEmpty(t, claims.ID)
		require.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt, 5*time.Second)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		original := token.NowTimeFunc
		token.NowTimeFunc = func() time.Time { return time.Now().Add(-time.Hour) }
		raw, err := creator.CreateAccessToken(user, "", time.Minute, nil)
		token.NowTimeFunc = original
		require.NoError(t, err)

		_, err = creator.Verify(raw)
		require.Error(t, err)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		_, err := creator.Verify(testutil.UnsignedToken(t, "user-1", time.Now().Add(time.Hour)))
		require.Error(t, err)
	})

	t.Run("token from another key rejected", func(t *testing.T) {
		other, err := keys.GenerateRSAKeyPair("other", 2048)
		require.NoError(t, err)
		raw, err := token.NewCreator(keys.NewKeyPairSigner(other), "x").CreateAccessToken(user, "", time.Minute, nil)
		require.NoError(t, err)

		_, err = creator.Verify(raw)
		require.Error(t, err)
	})
}

func TestDenylist(t *testing.T) {
	list := token.NewDenylist()
	list.Revoke("live", time.Now().Add(time.Hour))
	list.Revoke("stale", time.Now().Add(-time.Hour))

	require.True(t, list.Denied("live"))
	require.False(t, list.Denied("stale"), "expired entries no longer matter")
	require.False(t, list.Denied("unknown"))
	require.Equal(t, 1, list.Len())
}
