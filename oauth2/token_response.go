package oauth2

import (
	"time"

	xoauth2 "golang.org/x/oauth2"
)

// GrantTypeRefreshToken is the only grant the console sends to the token endpoint.
const GrantTypeRefreshToken = "refresh_token"

// TokenResponse is the body of POST /oauth2-secure/token.
// The refresh credential itself never appears here; it travels in an
// HTTP-only cookie.
type TokenResponse struct {
	// AccessToken is the JWT used as "Authorization: Bearer <access_token>".
	AccessToken string `json:"access_token"`

	// TokenType is "bearer" when present.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. A hint only, the
	// JWT's exp claim is authoritative.
	ExpiresIn int `json:"expires_in,omitempty"`

	// CSRFToken is echoed back as X-CSRF-Token on the next refresh and logout.
	CSRFToken string `json:"csrf_token,omitempty"`
}

// Token converts the response into an x/oauth2 token, using now to resolve ExpiresIn.
func (r *TokenResponse) Token(now time.Time) *xoauth2.Token {
	t := &xoauth2.Token{
		AccessToken: r.AccessToken,
		TokenType:   r.TokenType,
	}
	if t.TokenType == "" {
		t.TokenType = "Bearer"
	}
	if r.ExpiresIn > 0 {
		t.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return t
}

// BearerToken wraps a raw access token so it can be attached with SetAuthHeader.
func BearerToken(accessToken string) *xoauth2.Token {
	return &xoauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
}
