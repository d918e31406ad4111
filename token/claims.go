package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-admin-session/internal/utils"
)

// ErrNoExpiry is returned for tokens that carry no exp claim.
var ErrNoExpiry = errors.New("token has no exp claim")

// Claims are the access token claims the console and the dev backend care about.
type Claims struct {
	ID              string    // jti, used for revocation
	Subject         string    // User ID
	TenantID        string    // Tenant the token is scoped to, empty for platform tokens
	Roles           []string  // System roles followed by tenant roles
	ImpersonationID string    // Set on impersonation tokens only
	IssuedAt        time.Time // iat
	ExpiresAt       time.Time // exp
}

// Parse decodes a JWT without verifying its signature. Clients use it to read
// the expiry of a token they already trust; it is not an authorization check.
func Parse(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty token")
	}
	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}
	return fromMapClaims(mapClaims)
}

// Expiry returns the exp claim of raw.
func Expiry(raw string) (time.Time, error) {
	claims, err := Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt, nil
}

// Verify checks the signature and time claims of raw using keyFunc, with now
// as the reference time.
func Verify(raw string, keyFunc jwtlib.Keyfunc, now func() time.Time) (*Claims, error) {
	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithTimeFunc(now),
		jwtlib.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(raw, jwtlib.MapClaims{}, keyFunc)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims from token")
	}
	return fromMapClaims(mapClaims)
}

func fromMapClaims(mc jwtlib.MapClaims) (*Claims, error) {
	c := &Claims{}
	c.ID, _ = mc["jti"].(string)
	c.Subject, _ = mc["sub"].(string)
	c.TenantID, _ = mc["tenant"].(string)
	c.ImpersonationID, _ = mc["impersonation_id"].(string)
	if roles, ok := mc["roles"].([]any); ok {
		c.Roles = utils.ToStringSlice(roles)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("malformed exp claim: %w", err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}
	iat, err := mc.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("malformed iat claim: %w", err)
	}
	if iat != nil {
		c.IssuedAt = iat.Time
	}
	return c, nil
}
