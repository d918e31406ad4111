package devbackend_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/go-admin-session/internal/devbackend"
	"github.com/jrsteele09/go-admin-session/internal/testutil"
	"github.com/jrsteele09/go-admin-session/oauth2"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	backend *testutil.Backend
	client  *http.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testFixture{
		backend: testutil.NewBackend(t),
		client:  &http.Client{Jar: jar},
	}
}

func (f *testFixture) login(t *testing.T, email, password, tenantID string) (*http.Response, oauth2.LoginResponse) {
	t.Helper()
	body, err := json.Marshal(oauth2.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)

	target := f.backend.URL() + devbackend.RouteLogin
	if tenantID != "" {
		target += "?tenantId=" + url.QueryEscape(tenantID)
	}
	resp, err := f.client.Post(target, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var lr oauth2.LoginResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	}
	return resp, lr
}

func (f *testFixture) refresh(t *testing.T, csrf string) (*http.Response, oauth2.TokenResponse) {
	t.Helper()
	form := url.Values{"grant_type": {oauth2.GrantTypeRefreshToken}}
	req, err := http.NewRequest(http.MethodPost, f.backend.URL()+devbackend.RouteToken, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var tr oauth2.TokenResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	}
	return resp, tr
}

func (f *testFixture) me(t *testing.T, accessToken string) (int, *users.Profile) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.backend.URL()+devbackend.RouteCurrentUser, nil)
	require.NoError(t, err)
	oauth2.BearerToken(accessToken).SetAuthHeader(req)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	var p users.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return resp.StatusCode, &p
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, lr := f.login(t, testutil.AdminEmail, testutil.AdminPassword, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, lr.AccessToken)
		require.NotNil(t, lr.User)
		require.Equal(t, users.AccessAdmin, lr.User.PlatformAccess)

		var refreshCookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == devbackend.RefreshCookieName {
				refreshCookie = c
			}
		}
		require.NotNil(t, refreshCookie)
		require.True(t, refreshCookie.HttpOnly)

		claims, err := token.Parse(lr.AccessToken)
		require.NoError(t, err)
		require.NotEmpty(t, claims.ID)
		require.Contains(t, claims.Roles, string(users.RoleSuperAdmin))
	})

	t.Run("wrong password", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, _ := f.login(t, testutil.AdminEmail, "nope", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("tenant scoped", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, lr := f.login(t, testutil.MemberEmail, testutil.MemberPassword, testutil.TenantID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, users.AccessNone, lr.User.PlatformAccess)

		claims, err := token.Parse(lr.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testutil.TenantID, claims.TenantID)
		require.Equal(t, []string{string(users.RoleTenantUser)}, claims.Roles)
	})

	t.Run("non member tenant", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, _ := f.login(t, testutil.MemberEmail, testutil.MemberPassword, "globex")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestTokenRotation(t *testing.T) {
	f := setupTestFixture(t)
	_, lr := f.login(t, testutil.MemberEmail, testutil.MemberPassword, "")

	resp, first := f.refresh(t, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, first.AccessToken)
	require.NotEqual(t, lr.AccessToken, first.AccessToken)
	require.NotEmpty(t, first.CSRFToken)
	require.Equal(t, "bearer", first.TokenType)

	t.Run("csrf mismatch", func(t *testing.T) {
		resp, _ := f.refresh(t, "wrong")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("matching csrf rotates again", func(t *testing.T) {
		resp, second := f.refresh(t, first.CSRFToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEqual(t, first.CSRFToken, second.CSRFToken)
	})

	t.Run("no cookie", func(t *testing.T) {
		anon := setupTestFixture(t)
		resp, _ := anon.refresh(t, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestCurrentUserAndRevocation(t *testing.T) {
	f := setupTestFixture(t)
	_, lr := f.login(t, testutil.MemberEmail, testutil.MemberPassword, "")

	status, profile := f.me(t, lr.AccessToken)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, testutil.MemberEmail, profile.Email)
	require.Equal(t, "Alice", profile.Name)

	status, _ = f.me(t, "garbage")
	require.Equal(t, http.StatusUnauthorized, status)

	f.backend.RevokeAccessTokens()
	status, _ = f.me(t, lr.AccessToken)
	require.Equal(t, http.StatusUnauthorized, status)

	resp, tr := f.refresh(t, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "refresh survives access token revocation")
	status, _ = f.me(t, tr.AccessToken)
	require.Equal(t, http.StatusOK, status)

	f.backend.RevokeAll()
	resp, _ = f.refresh(t, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 1, f.backend.Calls(devbackend.RouteLogin))
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	_, lr := f.login(t, testutil.MemberEmail, testutil.MemberPassword, "")

	req, err := http.NewRequest(http.MethodPost, f.backend.URL()+devbackend.RouteLogout, nil)
	require.NoError(t, err)
	oauth2.BearerToken(lr.AccessToken).SetAuthHeader(req)
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	status, _ := f.me(t, lr.AccessToken)
	require.Equal(t, http.StatusUnauthorized, status)

	refreshResp, _ := f.refresh(t, "")
	require.Equal(t, http.StatusUnauthorized, refreshResp.StatusCode)
}

func TestImpersonate(t *testing.T) {
	impersonate := func(t *testing.T, f *testFixture, accessToken string, body oauth2.ImpersonationRequest) (*http.Response, oauth2.ImpersonationResponse) {
		t.Helper()
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, f.backend.URL()+devbackend.RouteImpersonations, bytes.NewReader(data))
		require.NoError(t, err)
		oauth2.BearerToken(accessToken).SetAuthHeader(req)
		resp, err := f.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var ir oauth2.ImpersonationResponse
		if resp.StatusCode == http.StatusCreated {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&ir))
		}
		return resp, ir
	}

	t.Run("platform admin", func(t *testing.T) {
		f := setupTestFixture(t)
		_, lr := f.login(t, testutil.AdminEmail, testutil.AdminPassword, "")

		resp, ir := impersonate(t, f, lr.AccessToken, oauth2.ImpersonationRequest{TenantID: testutil.TenantID, Reason: "support ticket 42"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NotEmpty(t, ir.ImpersonationID)
		require.Equal(t, 300, ir.ExpiresIn)

		claims, err := token.Parse(ir.AccessToken)
		require.NoError(t, err)
		require.Equal(t, ir.ImpersonationID, claims.ImpersonationID)
		require.Equal(t, testutil.TenantID, claims.TenantID)
	})

	t.Run("tenant member is refused", func(t *testing.T) {
		f := setupTestFixture(t)
		_, lr := f.login(t, testutil.MemberEmail, testutil.MemberPassword, "")
		resp, _ := impersonate(t, f, lr.AccessToken, oauth2.ImpersonationRequest{TenantID: testutil.TenantID, Reason: "x"})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		f := setupTestFixture(t)
		_, lr := f.login(t, testutil.AdminEmail, testutil.AdminPassword, "")
		resp, _ := impersonate(t, f, lr.AccessToken, oauth2.ImpersonationRequest{TenantID: "globex", Reason: "x"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestWriteRoutes(t *testing.T) {
	f := setupTestFixture(t)
	var buf bytes.Buffer
	require.NoError(t, f.backend.WriteRoutes(&buf))
	require.Contains(t, buf.String(), devbackend.RouteToken)
	require.Contains(t, buf.String(), devbackend.RouteTenant)
}

func TestCORS(t *testing.T) {
	backend := testutil.NewBackend(t, devbackend.WithAllowedOrigins("http://console.test"))

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, backend.URL()+devbackend.RouteToken, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "X-CSRF-Token")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	t.Run("allowed origin", func(t *testing.T) {
		resp := preflight("http://console.test")
		require.Equal(t, "http://console.test", resp.Header.Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origin", func(t *testing.T) {
		resp := preflight("http://evil.test")
		require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestLoginRateLimit(t *testing.T) {
	f := &testFixture{
		backend: testutil.NewBackend(t, devbackend.WithLoginRateLimit(2)),
		client:  &http.Client{},
	}

	for i := 0; i < 2; i++ {
		resp, _ := f.login(t, testutil.MemberEmail, "wrong", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, _ := f.login(t, testutil.MemberEmail, testutil.MemberPassword, "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
