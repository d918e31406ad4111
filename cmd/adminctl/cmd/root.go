// Package cmd provides the adminctl commands.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	baseURL  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "adminctl",
	Short: "adminctl - admin console session client",
	Long: `adminctl drives an admin console session against an identity backend.

It logs in, restores the session from the refresh cookie, renews the access
token before it expires and retries console calls that come back 401.

Configuration is read from the environment, optionally loaded from a .env file.
  IDENTITY_BASE_URL   identity backend base URL (required outside DEV)
  RENEWAL_RATIO       fraction of the token lifetime to wait before renewing
  RENEWAL_MARGIN      minimum time before expiry to renew
  HTTP_TIMEOUT        timeout for identity backend calls
  TOKEN_MIRROR_PATH   file mirroring the current access token
  METRICS_ENABLED     record prometheus metrics

Commands:
  whoami       Log in and print the current user
  impersonate  Start a support session in a tenant
  keepalive    Hold a session open and keep it renewed
  devserver    Run the in-memory development identity backend`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initEnvironment()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of environment variables to load")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "identity backend base URL (overrides IDENTITY_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

func initEnvironment() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if baseURL != "" {
		if err := os.Setenv("IDENTITY_BASE_URL", baseURL); err != nil {
			return fmt.Errorf("failed to set base url: %w", err)
		}
	}

	level := logLevel
	if level == "" {
		level = config.EnvVars{}.GetLogLevel()
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
