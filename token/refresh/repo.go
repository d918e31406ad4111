package refresh

import (
	"time"
)

// StoredRefreshToken is the server-side record behind the refresh cookie.
// The client only ever holds Token (inside an HTTP-only cookie) and CSRFToken.
type StoredRefreshToken struct {
	Token     string    // The random token string (cookie value)
	CSRFToken string    // Returned in the token response, echoed back as X-CSRF-Token
	UserID    string    // Server-side metadata
	TenantID  string    // Tenant the session was opened for
	Iat       time.Time // Issued at time
}

// Repo manages server-side storage of refresh token metadata keyed by the token string.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}
