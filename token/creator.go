package token

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-session/token/keys"
	"github.com/jrsteele09/go-admin-session/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator signs access tokens for the development identity backend.
type Creator struct {
	signer keys.Signer
	issuer string
}

// NewCreator creates a new JWT creator
func NewCreator(signer keys.Signer, issuer string) *Creator {
	return &Creator{
		signer: signer,
		issuer: issuer,
	}
}

// CreateAccessToken signs an access token for user scoped to tenantID that
// expires after expiry. extra claims are merged last.
func (c *Creator) CreateAccessToken(user *users.User, tenantID string, expiry time.Duration, extra map[string]any) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"iss":    c.issuer,
		"sub":    user.ID,
		"email":  user.Email,
		"tenant": tenantID,
		"roles":  user.CombinedRoles(tenantID),
		"iat":    now.Unix(),
		"exp":    now.Add(expiry).Unix(),
		"jti":    uuid.New().String(), // Unique token ID for revocation
	}
	for k, v := range extra {
		claims[k] = v
	}

	signedToken, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signedToken, nil
}

// Verify checks a token issued by this creator.
func (c *Creator) Verify(raw string) (*Claims, error) {
	return Verify(raw, c.signer.GetVerificationKey, NowTimeFunc)
}
