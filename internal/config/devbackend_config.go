package config

import (
	"strconv"
	"strings"
)

// DevBackendConfig seeds the development identity backend.
type DevBackendConfig interface {
	GetSystemTenantID() string
	GetSystemTenantName() string
	GetSystemTenantDomain() string
	GetSystemAdminEmail() string
	GetSystemAdminPassword() string
	GetAllowedOrigins() []string
	GetLoginRateLimit() int
}

type DevBackend struct{}

var _ DevBackendConfig = DevBackend{}

func (DevBackend) GetSystemTenantID() string {
	return GetEnv("DEV_TENANT_ID", "system")
}

func (DevBackend) GetSystemTenantName() string {
	return GetEnv("DEV_TENANT_NAME", "System")
}

func (DevBackend) GetSystemTenantDomain() string {
	return GetEnv("DEV_TENANT_DOMAIN", "localhost")
}

func (DevBackend) GetSystemAdminEmail() string {
	return GetEnv("DEV_ADMIN_EMAIL", "admin@localhost")
}

// GetSystemAdminPassword is empty unless set, in which case one is generated.
func (DevBackend) GetSystemAdminPassword() string {
	return GetEnv("DEV_ADMIN_PASSWORD", "")
}

// GetAllowedOrigins lists the browser origins allowed to call the dev backend
// with credentials. It defaults to the console origin.
func (DevBackend) GetAllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(GetEnv("DEV_ALLOWED_ORIGINS", GetEnv(appOriginVar, defaultAppOrigin)), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	return origins
}

// GetLoginRateLimit is the number of login attempts allowed per client IP per minute.
func (DevBackend) GetLoginRateLimit() int {
	limit, err := strconv.Atoi(GetEnv("DEV_LOGIN_RATE_LIMIT", "30"))
	if err != nil || limit < 0 {
		return 30
	}
	return limit
}
