package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/app"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	keepaliveInterval    time.Duration
	keepaliveMetricsAddr string
)

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Hold a session open and keep it renewed",
	Long: `Log in, then keep the session alive until interrupted. The access token is
renewed ahead of expiry and the current user is polled every interval through
the 401 interceptor. On SIGINT or SIGTERM the session is logged out.

Examples:
  adminctl keepalive --email alice@acme.test --tenant acme --interval 1m
  METRICS_ENABLED=true adminctl keepalive --email alice@acme.test --metrics-addr :9102`,
	RunE: runKeepalive,
}

func init() {
	addLoginFlags(keepaliveCmd)
	keepaliveCmd.Flags().DurationVar(&keepaliveInterval, "interval", time.Minute, "how often to poll the current user")
	keepaliveCmd.Flags().StringVar(&keepaliveMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.AddCommand(keepaliveCmd)
}

func runKeepalive(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(a, true)
	displayAppname(a.Config.GetAppName())

	go a.TenantGuard.Watch(ctx)

	if keepaliveMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: keepaliveMetricsAddr, Handler: mux}
		go func() {
			log.Info().Str("addr", server.Addr).Msg("serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		if err := poll(ctx, a); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping keepalive")
			return nil
		case <-ticker.C:
		}
	}
}

// poll logs the current user. It fails only once the session has ended.
func poll(ctx context.Context, a *app.App) error {
	profile, err := fetchCurrentUser(ctx, a)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			return fmt.Errorf("session ended: %w", err)
		}
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("current user lookup failed")
		}
		return nil
	}
	ev := log.Info().Str("email", profile.Email)
	if fireAt, ok := a.Scheduler.Pending(); ok {
		ev = ev.Time("renews_at", fireAt)
	}
	ev.Msg("session alive")
	return nil
}
