package interceptor_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-admin-session/gateway"
	"github.com/jrsteele09/go-admin-session/interceptor"
	"github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/internal/testutil"
	"github.com/jrsteele09/go-admin-session/route"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu           sync.Mutex
	store        *session.Store
	refreshCalls int
	logoutCalls  int
	nextToken    string
	refreshErr   error

	// When release is set, Refresh reports on arrived and waits for release.
	arrived chan struct{}
	release chan struct{}
}

func (g *fakeGateway) Refresh(context.Context) (string, error) {
	if g.release != nil {
		g.arrived <- struct{}{}
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshCalls++
	if g.refreshErr != nil {
		return "", g.refreshErr
	}
	g.store.SetAuth(g.nextToken, nil)
	return g.nextToken, nil
}

func (g *fakeGateway) Logout(context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logoutCalls++
	g.store.Clear()
}

func TestRoundTrip_NeverLoops(t *testing.T) {
	var (
		mu    sync.Mutex
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "still no")
	}))
	defer srv.Close()

	store := session.NewStore()
	store.SetAuth("old", nil)
	gw := &fakeGateway{store: store, nextToken: "new"}
	nav := &route.Recorder{}
	client := interceptor.NewClient(store, gw, interceptor.WithNavigator(nav), interceptor.WithLogger(zerolog.Nop()))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "still no", string(body))

	require.Equal(t, 1, gw.refreshCalls)
	require.Equal(t, []string{"Bearer old", "Bearer new"}, auths)
	require.Zero(t, gw.logoutCalls)
	require.Empty(t, nav.Routes())
}

func TestRoundTrip_SharedRefreshFailure(t *testing.T) {
	const callers = 5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := session.NewStore()
	store.SetAuth("expired", nil)
	gw := &fakeGateway{
		store:      store,
		refreshErr: errors.ErrRefreshFailed,
		arrived:    make(chan struct{}, callers),
		release:    make(chan struct{}),
	}
	nav := &route.Recorder{}
	client := interceptor.NewClient(store, gw, interceptor.WithNavigator(nav), interceptor.WithLogger(zerolog.Nop()))

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL)
			if resp != nil {
				resp.Body.Close()
			}
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		<-gw.arrived
	}
	close(gw.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	}
	require.Equal(t, callers, gw.refreshCalls)
	require.Equal(t, 1, gw.logoutCalls)
	require.Equal(t, []string{"/login"}, nav.Routes())
	require.False(t, store.Read().Authenticated())

	t.Run("a later failure ends the session again", func(t *testing.T) {
		gw.release = nil
		resp, err := client.Get(srv.URL)
		require.Nil(t, resp)
		require.ErrorIs(t, err, errors.ErrUnauthorized)
		require.Equal(t, 2, gw.logoutCalls)
		require.Equal(t, []string{"/login", "/login"}, nav.Routes())
	})
}

func TestRoundTrip_ReplaysBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := session.NewStore()
	store.SetAuth("old", nil)
	gw := &fakeGateway{store: store, nextToken: "new"}
	client := interceptor.NewClient(store, gw, interceptor.WithLogger(zerolog.Nop()))

	// A reader without GetBody forces the transport to buffer it.
	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader(`{"name":"acme"}`)))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, []string{`{"name":"acme"}`, `{"name":"acme"}`}, bodies)
}

func TestRoundTrip_PassesThroughOtherStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	store := session.NewStore()
	store.SetAuth("tok", nil)
	gw := &fakeGateway{store: store}
	client := interceptor.NewClient(store, gw, interceptor.WithLogger(zerolog.Nop()))

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, gw.refreshCalls)
}

type backendFixture struct {
	backend *testutil.Backend
	store   *session.Store
	gw      *gateway.Gateway
	nav     *route.Recorder
	client  *http.Client
}

func setupBackendFixture(t *testing.T) *backendFixture {
	t.Helper()
	f := &backendFixture{
		backend: testutil.NewBackend(t),
		store:   session.NewStore(),
		nav:     &route.Recorder{},
	}
	gw, err := gateway.New(f.backend.URL(), f.store, gateway.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	f.gw = gw
	f.client = interceptor.NewClient(f.store, gw,
		interceptor.WithNavigator(f.nav),
		interceptor.WithLoginRoute("/login"),
		interceptor.WithLogger(zerolog.Nop()),
	)

	_, err = gw.Login(context.Background(), testutil.MemberEmail, testutil.MemberPassword, testutil.TenantID)
	require.NoError(t, err)
	return f
}

func (f *backendFixture) getTenant(t *testing.T) (*http.Response, error) {
	t.Helper()
	return f.client.Get(f.backend.URL() + "/api/tenants/" + testutil.TenantID)
}

func TestRoundTrip_AgainstBackend(t *testing.T) {
	t.Run("token attached", func(t *testing.T) {
		f := setupBackendFixture(t)
		resp, err := f.getTenant(t)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Zero(t, f.backend.Calls(gateway.PathToken))
	})

	t.Run("revoked access token is repaired", func(t *testing.T) {
		f := setupBackendFixture(t)
		before := f.store.Read().AccessToken
		f.backend.RevokeAccessTokens()

		resp, err := f.getTenant(t)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, f.backend.Calls(gateway.PathToken))
		require.NotEqual(t, before, f.store.Read().AccessToken)
		require.Equal(t, testutil.MemberEmail, f.store.Read().User.Email)
	})

	t.Run("failed refresh logs out and redirects once", func(t *testing.T) {
		f := setupBackendFixture(t)
		f.backend.RevokeAll()

		resp, err := f.getTenant(t)
		require.Nil(t, resp)
		require.ErrorIs(t, err, errors.ErrUnauthorized)
		require.ErrorIs(t, err, errors.ErrRefreshFailed)

		snap := f.store.Read()
		require.Empty(t, snap.AccessToken)
		require.Nil(t, snap.User)
		require.Equal(t, []string{"/login"}, f.nav.Routes())
		require.Equal(t, 1, f.backend.Calls(gateway.PathToken))
		require.Equal(t, 1, f.backend.Calls(gateway.PathLogout))
	})
}
