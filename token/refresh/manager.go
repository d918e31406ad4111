package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/config"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	ErrUnknownToken = errors.New("unknown refresh token")
	ErrExpiredToken = errors.New("refresh token expired")
	ErrCSRFMismatch = errors.New("csrf token mismatch")
)

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo   Repo
	config config.OAuthConfig
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg config.OAuthConfig) *Manager {
	return &Manager{
		repo:   repo,
		config: cfg,
	}
}

// Create generates a new refresh token for userID, replacing any existing one
// (single refresh token per user).
func (m *Manager) Create(userID, tenantID string) (*StoredRefreshToken, error) {
	if err := m.DeleteByUserID(userID); err != nil {
		return nil, err
	}

	tokenStr, err := randomHex(m.config.GetRefreshTokenLength())
	if err != nil {
		return nil, err
	}
	csrf, err := randomHex(16)
	if err != nil {
		return nil, err
	}

	rt := &StoredRefreshToken{
		Token:     tokenStr,
		CSRFToken: csrf,
		UserID:    userID,
		TenantID:  tenantID,
		Iat:       NowTimeFunc(),
	}
	if err := m.repo.Upsert(rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return rt, nil
}

// Rotate validates token and replaces it with a fresh one. csrf is checked
// only when the caller sent one.
func (m *Manager) Rotate(token, csrf string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil || rt == nil {
		return nil, ErrUnknownToken
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, ErrExpiredToken
	}
	if csrf != "" && csrf != rt.CSRFToken {
		return nil, ErrCSRFMismatch
	}
	return m.Create(rt.UserID, rt.TenantID)
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// DeleteByUserID removes the refresh token held by userID, if any.
func (m *Manager) DeleteByUserID(userID string) error {
	existing, err := m.repo.GetByUserID(userID)
	if err != nil || existing == nil {
		return nil
	}
	if err := m.repo.Delete(existing.Token); err != nil {
		return fmt.Errorf("failed to delete existing refresh token: %w", err)
	}
	return nil
}

// IsExpired checks if a refresh token has outlived the configured lifetime
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return NowTimeFunc().Sub(rt.Iat) > m.config.GetDefaultRefreshTokenExpiry()
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
