package restore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/go-admin-session/gateway"
	"github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/internal/testutil"
	"github.com/jrsteele09/go-admin-session/restore"
	"github.com/jrsteele09/go-admin-session/session"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu           sync.Mutex
	refreshCalls int
	userCalls    int
	token        string
	refreshErr   error
	user         *users.Profile
	userErr      error
	store        *session.Store
}

func (g *fakeGateway) Refresh(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshCalls++
	if g.refreshErr != nil {
		return "", g.refreshErr
	}
	g.store.SetAuth(g.token, nil)
	return g.token, nil
}

func (g *fakeGateway) FetchCurrentUser(context.Context) (*users.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userCalls++
	return g.user, g.userErr
}

func TestRun(t *testing.T) {
	t.Run("existing token is left alone", func(t *testing.T) {
		store := session.NewStore()
		user := &users.Profile{ID: "u1"}
		store.SetAuth("abc", user)
		before := store.Read()

		gw := &fakeGateway{store: store}
		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))

		require.Equal(t, restore.OutcomeAlreadyAuthenticated, r.Run(context.Background()))
		require.Zero(t, gw.refreshCalls)
		require.Zero(t, gw.userCalls)
		require.Equal(t, before, store.Read())
		require.False(t, r.Restoring())
	})

	t.Run("refresh and user lookup succeed", func(t *testing.T) {
		store := session.NewStore()
		user := &users.Profile{ID: "u1", Email: "a@b.c"}
		gw := &fakeGateway{store: store, token: "abc", user: user}
		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))
		require.True(t, r.Restoring())

		require.Equal(t, restore.OutcomeRestored, r.Run(context.Background()))
		snap := store.Read()
		require.Equal(t, "abc", snap.AccessToken)
		require.Equal(t, user, snap.User)

		select {
		case <-r.Done():
		default:
			t.Fatal("done not closed")
		}
	})

	t.Run("refresh rejected", func(t *testing.T) {
		store := session.NewStore()
		gw := &fakeGateway{store: store, refreshErr: errors.ErrRefreshFailed}
		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))

		require.Equal(t, restore.OutcomeAnonymous, r.Run(context.Background()))
		require.False(t, store.Read().Authenticated())
		require.Nil(t, store.Read().User)
		require.Zero(t, gw.userCalls)
		require.False(t, r.Restoring())
	})

	t.Run("user lookup fails after refresh", func(t *testing.T) {
		store := session.NewStore()
		gw := &fakeGateway{store: store, token: "abc", userErr: errors.ErrUnauthorized}
		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))

		require.Equal(t, restore.OutcomeAnonymous, r.Run(context.Background()))
		require.False(t, store.Read().Authenticated())
	})

	t.Run("runs once", func(t *testing.T) {
		store := session.NewStore()
		gw := &fakeGateway{store: store, token: "abc", user: &users.Profile{ID: "u1"}}
		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))

		var wg sync.WaitGroup
		outcomes := make([]restore.Outcome, 4)
		for i := range outcomes {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = r.Run(context.Background())
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, gw.refreshCalls)
		for _, o := range outcomes {
			require.Equal(t, restore.OutcomeRestored, o)
		}
		require.Equal(t, restore.OutcomeRestored, r.Run(context.Background()))
	})
}

func TestRun_AgainstBackend(t *testing.T) {
	backend := testutil.NewBackend(t)

	t.Run("valid refresh credential", func(t *testing.T) {
		store := session.NewStore()
		gw, err := gateway.New(backend.URL(), store, gateway.WithLogger(zerolog.Nop()))
		require.NoError(t, err)

		// Log in, then forget the token to simulate a page reload that keeps the cookie.
		_, err = gw.Login(context.Background(), testutil.MemberEmail, testutil.MemberPassword, "")
		require.NoError(t, err)
		store.Clear()

		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))
		require.Equal(t, restore.OutcomeRestored, r.Run(context.Background()))
		snap := store.Read()
		require.True(t, snap.Authenticated())
		require.Equal(t, testutil.MemberEmail, snap.User.Email)
	})

	t.Run("no refresh credential", func(t *testing.T) {
		store := session.NewStore()
		gw, err := gateway.New(backend.URL(), store, gateway.WithLogger(zerolog.Nop()))
		require.NoError(t, err)

		r := restore.New(store, gw, restore.WithLogger(zerolog.Nop()))
		require.Equal(t, restore.OutcomeAnonymous, r.Run(context.Background()))
		require.False(t, store.Read().Authenticated())
		require.Nil(t, store.Read().User)
		require.False(t, r.Restoring())
	})
}
