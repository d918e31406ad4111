package devbackend

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/config"
	"github.com/jrsteele09/go-admin-session/tenants"
	"github.com/jrsteele09/go-admin-session/users"
)

// Bootstrapped describes what Bootstrap seeded.
type Bootstrapped struct {
	TenantID   string
	AdminEmail string
	// GeneratedPassword is set only when no admin password was configured.
	GeneratedPassword string
}

// Bootstrap seeds the system tenant and a platform administrator. An existing
// administrator with the configured email is left alone.
func (s *Server) Bootstrap(cfg config.DevBackendConfig) (*Bootstrapped, error) {
	result := &Bootstrapped{
		TenantID:   cfg.GetSystemTenantID(),
		AdminEmail: cfg.GetSystemAdminEmail(),
	}

	if _, err := s.tenants.Get(result.TenantID); err != nil {
		systemTenant := &tenants.Tenant{
			ID:     result.TenantID,
			Name:   cfg.GetSystemTenantName(),
			Domain: cfg.GetSystemTenantDomain(),
		}
		if err := s.tenants.Upsert(systemTenant); err != nil {
			return nil, fmt.Errorf("[devbackend Bootstrap] failed to create system tenant: %w", err)
		}
	}

	if existing, err := s.users.GetByEmail(result.AdminEmail); err == nil && existing != nil && existing.IsSuperAdmin() {
		return result, nil
	}

	password := cfg.GetSystemAdminPassword()
	if password == "" {
		generated, err := generatePassword()
		if err != nil {
			return nil, fmt.Errorf("[devbackend Bootstrap] %w", err)
		}
		password = generated
		result.GeneratedPassword = generated
	}

	admin := &users.User{
		Email:       result.AdminEmail,
		FirstName:   "System",
		LastName:    "Administrator",
		SystemRoles: []users.RoleType{users.RoleSuperAdmin},
		Tenants: []users.TenantMembership{
			{TenantID: result.TenantID, Roles: []users.RoleType{users.RoleTenantAdmin}, JoinedAt: time.Now()},
		},
	}
	if err := s.SeedUser(admin, password); err != nil {
		return nil, fmt.Errorf("[devbackend Bootstrap] failed to create super admin: %w", err)
	}

	s.logger.Info().
		Str("tenant", result.TenantID).
		Str("email", result.AdminEmail).
		Msg("seeded platform administrator")
	return result, nil
}

func generatePassword() (string, error) {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.URLEncoding.EncodeToString(passwordBytes), nil
}
