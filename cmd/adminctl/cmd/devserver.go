package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/internal/devbackend"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	devserverPort        string
	devserverTokenExpiry time.Duration
)

var errPanicRecovered = errors.New("panic recovered")

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run the in-memory development identity backend",
	Long: `Run an in-memory identity backend serving login, current user, token
refresh, logout and impersonation. A system tenant and a platform administrator
are seeded at start; the administrator password is generated and printed
unless DEV_ADMIN_PASSWORD is set.

Examples:
  adminctl devserver --port 8081
  DEV_ADMIN_PASSWORD=admin adminctl devserver --access-token-expiry 2m`,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devserverPort, "port", "", "port to listen on (overrides PORT)")
	devserverCmd.Flags().DurationVar(&devserverTokenExpiry, "access-token-expiry", 0, "access token lifetime (overrides ACCESS_TOKEN_EXPIRY)")
	rootCmd.AddCommand(devserverCmd)
}

func runDevserver(cmd *cobra.Command, args []string) error {
	for {
		err := serveDevBackend()
		if !errors.Is(err, errPanicRecovered) {
			return err
		}
		log.Error().Err(err).Msg("restarting dev backend")
		time.Sleep(1 * time.Second)
	}
}

func serveDevBackend() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errPanicRecovered
		}
	}()

	c := config.New()
	displayAppname("Dev Identity")

	opts := []devbackend.Option{
		devbackend.WithOAuthConfig(c),
		devbackend.WithAllowedOrigins(c.GetAllowedOrigins()...),
		devbackend.WithLoginRateLimit(c.GetLoginRateLimit()),
	}
	if devserverTokenExpiry > 0 {
		opts = append(opts, devbackend.WithAccessTokenExpiry(devserverTokenExpiry))
	}
	backend, err := devbackend.New(opts...)
	if err != nil {
		return err
	}
	seeded, err := backend.Bootstrap(c)
	if err != nil {
		return err
	}
	if seeded.GeneratedPassword != "" {
		fmt.Println("Platform administrator credentials:")
		fmt.Printf("   Tenant ID:   %s\n", seeded.TenantID)
		fmt.Printf("   Email:       %s\n", seeded.AdminEmail)
		fmt.Printf("   Password:    %s\n\n", seeded.GeneratedPassword)
	}
	if c.GetEnv() == "DEV" {
		if err := backend.WriteRoutes(os.Stdout); err != nil {
			log.Warn().Err(err).Msg("failed to list routes")
		}
	}

	addr := c.GetPort()
	if devserverPort != "" {
		addr = ":" + devserverPort
	}
	server := &http.Server{Addr: addr, Handler: backend}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(server) }()
	if err := waitForStopSignal(serveErr); err != nil {
		return err
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("dev backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

// waitForStopSignal blocks until SIGINT, SIGTERM or the server failing.
func waitForStopSignal(serveErr <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case <-stop:
		return nil
	case err := <-serveErr:
		return err
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("dev backend stopped")
	return nil
}
