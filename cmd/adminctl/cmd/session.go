package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jrsteele09/go-admin-session/gateway"
	"github.com/jrsteele09/go-admin-session/internal/app"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/restore"
	"github.com/jrsteele09/go-admin-session/users"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	passwordEnvVar  = "ADMINCTL_PASSWORD"
	shutdownTimeout = 5 * time.Second
)

var (
	loginEmail    string
	loginPassword string
	loginTenant   string
)

func addLoginFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&loginEmail, "email", "", "email to log in with when no session can be restored")
	cmd.Flags().StringVar(&loginPassword, "password", "", "password (default $"+passwordEnvVar+")")
	cmd.Flags().StringVar(&loginTenant, "tenant", "", "tenant to log in to")
}

// openSession boots the session core and logs in unless a session was restored.
func openSession(ctx context.Context) (*app.App, error) {
	a, err := app.New(config.New())
	if err != nil {
		return nil, err
	}

	if outcome := a.Start(ctx); outcome != restore.OutcomeAnonymous {
		return a, nil
	}

	if loginEmail == "" {
		closeSession(a, false)
		return nil, fmt.Errorf("no session to restore: --email is required")
	}
	password := loginPassword
	if password == "" {
		password = os.Getenv(passwordEnvVar)
	}
	if _, err := a.Gateway.Login(ctx, loginEmail, password, loginTenant); err != nil {
		closeSession(a, false)
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return a, nil
}

// closeSession stops renewal and optionally logs out.
func closeSession(a *app.App, logout bool) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if logout {
		a.Gateway.Logout(ctx)
	}
	if err := a.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("session did not stop cleanly")
	}
}

// fetchCurrentUser asks for the current user through the 401 interceptor.
func fetchCurrentUser(ctx context.Context, a *app.App) (*users.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Config.GetIdentityBaseURL()+gateway.PathCurrentUser, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("current user: unexpected status %d", resp.StatusCode)
	}
	var profile users.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return &profile, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
