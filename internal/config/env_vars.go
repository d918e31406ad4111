package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar            = "PORT"
	appNameVar            = "APP_NAME"
	identityBaseURLVar    = "IDENTITY_BASE_URL"
	appOriginVar          = "APP_ORIGIN"
	identityProxyPathVar  = "IDENTITY_PROXY_PATH"
	logLevelVar           = "LOG_LEVEL"
	tokenMirrorPathVar    = "TOKEN_MIRROR_PATH"
	metricsEnabledVar     = "METRICS_ENABLED"
	devEnv                = "DEV"
	defaultAppOrigin      = "http://localhost:3000"
	defaultIdentityPrefix = "/identity"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Admin Console")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return devEnv
	}
	return env
}

// GetIdentityBaseURL returns the identity backend base URL. An explicit
// IDENTITY_BASE_URL always wins. In development the backend is reached through
// the console's same-origin proxy so the refresh cookie is first-party;
// deployed environments must set the absolute URL.
func (e EnvVars) GetIdentityBaseURL() string {
	return ResolveIdentityBaseURL(
		e.GetEnv(),
		os.Getenv(identityBaseURLVar),
		GetEnv(appOriginVar, defaultAppOrigin),
		GetEnv(identityProxyPathVar, defaultIdentityPrefix),
	)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetTokenMirrorPath is where a best-effort copy of the access token is kept
// for secondary consumers. Empty disables the mirror.
func (EnvVars) GetTokenMirrorPath() string {
	return GetEnv(tokenMirrorPathVar, "")
}

func (EnvVars) GetMetricsEnabled() bool {
	enabled, err := strconv.ParseBool(GetEnv(metricsEnabledVar, "false"))
	return err == nil && enabled
}

// ResolveIdentityBaseURL picks the identity backend URL for env.
func ResolveIdentityBaseURL(env, explicitURL, appOrigin, proxyPath string) string {
	if explicitURL != "" {
		return strings.TrimRight(explicitURL, "/")
	}
	if env != devEnv {
		return ""
	}
	return strings.TrimRight(appOrigin, "/") + "/" + strings.Trim(proxyPath, "/")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration reads a time.Duration ("90s", "15m") from envVar.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
