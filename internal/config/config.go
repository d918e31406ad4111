package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	RouteConfig
	OAuthConfig
	DevBackendConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetIdentityBaseURL() string
	GetLogLevel() string
	GetTokenMirrorPath() string
	GetMetricsEnabled() bool
}

// SessionConfig tunes the client-side session lifecycle.
type SessionConfig interface {
	GetHTTPTimeout() time.Duration
	GetRenewalRatio() float64
	GetRenewalMargin() time.Duration
}

// RouteConfig names the login entry points guards redirect to.
type RouteConfig interface {
	GetTenantLoginRoute() string
	GetPlatformLoginRoute() string
}

type mainConfig struct {
	EnvVars
	Session
	Routes
	OAuth
	DevBackend
}

func New() Config {
	return mainConfig{}
}
