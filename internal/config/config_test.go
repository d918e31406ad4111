package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentityBaseURL(t *testing.T) {
	t.Run("explicit url wins", func(t *testing.T) {
		got := config.ResolveIdentityBaseURL("DEV", "https://id.example.com/", "http://localhost:3000", "/identity")
		require.Equal(t, "https://id.example.com", got)
	})

	t.Run("dev uses same-origin proxy", func(t *testing.T) {
		got := config.ResolveIdentityBaseURL("DEV", "", "http://localhost:3000/", "/identity/")
		require.Equal(t, "http://localhost:3000/identity", got)
	})

	t.Run("deployed without url is unset", func(t *testing.T) {
		got := config.ResolveIdentityBaseURL("PROD", "", "http://localhost:3000", "/identity")
		require.Empty(t, got)
	})
}

func TestDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("IDENTITY_BASE_URL", "")
	t.Setenv("RENEWAL_RATIO", "")
	t.Setenv("RENEWAL_MARGIN", "")
	t.Setenv("HTTP_TIMEOUT", "")

	c := config.New()
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:3000/identity", c.GetIdentityBaseURL())
	require.Equal(t, config.DefaultRenewalRatio, c.GetRenewalRatio())
	require.Equal(t, config.DefaultRenewalMargin, c.GetRenewalMargin())
	require.Equal(t, config.DefaultHTTPTimeout, c.GetHTTPTimeout())
	require.Equal(t, "/login", c.GetTenantLoginRoute())
	require.Equal(t, "/platform/login", c.GetPlatformLoginRoute())
	require.NoError(t, config.Validate(c))
}

func TestOverrides(t *testing.T) {
	t.Setenv("RENEWAL_RATIO", "0.5")
	t.Setenv("RENEWAL_MARGIN", "2m")
	t.Setenv("PORT", "9090")

	c := config.New()
	require.Equal(t, 0.5, c.GetRenewalRatio())
	require.Equal(t, 2*time.Minute, c.GetRenewalMargin())
	require.Equal(t, ":9090", c.GetPort())

	t.Setenv("RENEWAL_RATIO", "1.5")
	require.Equal(t, config.DefaultRenewalRatio, c.GetRenewalRatio())
}

func TestValidate(t *testing.T) {
	t.Run("deployed env needs a base url", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("IDENTITY_BASE_URL", "")
		require.Error(t, config.Validate(config.New()))
	})

	t.Run("login routes must be absolute paths", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("IDENTITY_BASE_URL", "https://id.example.com")
		t.Setenv("TENANT_LOGIN_ROUTE", "login")
		require.Error(t, config.Validate(config.New()))
	})
}

func TestDevBackend(t *testing.T) {
	t.Setenv("APP_ORIGIN", "http://console.test/")
	t.Setenv("DEV_ALLOWED_ORIGINS", "")
	t.Setenv("DEV_LOGIN_RATE_LIMIT", "")

	c := config.DevBackend{}
	require.Equal(t, []string{"http://console.test"}, c.GetAllowedOrigins())
	require.Equal(t, 30, c.GetLoginRateLimit())

	t.Setenv("DEV_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("DEV_LOGIN_RATE_LIMIT", "-1")
	require.Equal(t, []string{"http://a.test", "http://b.test"}, c.GetAllowedOrigins())
	require.Equal(t, 30, c.GetLoginRateLimit())
}
