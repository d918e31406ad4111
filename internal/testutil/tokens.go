// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// UnsignedToken returns an alg=none JWT expiring at exp. Clients only decode
// the expiry, so signatures are irrelevant to them.
func UnsignedToken(t testing.TB, subject string, exp time.Time) string {
	t.Helper()

	claims := jwtlib.MapClaims{
		"sub": subject,
		"exp": exp.Unix(),
		"iat": exp.Add(-15 * time.Minute).Unix(),
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return raw
}
