package oauth2

import "github.com/jrsteele09/go-admin-session/users"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by POST /auth/login. User is optional.
type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	User        *users.Profile `json:"user,omitempty"`
}

// ImpersonationRequest is the body of POST /api/admin/impersonations.
type ImpersonationRequest struct {
	TenantID string `json:"tenantId" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

// ImpersonationResponse is returned for a granted impersonation.
type ImpersonationResponse struct {
	AccessToken     string `json:"access_token"`
	ImpersonationID string `json:"impersonation_id"`
	ExpiresIn       int    `json:"expires_in"`
}

// ErrorResponse is the error body shape used by the identity backend.
// Different endpoints fill different fields.
type ErrorResponse struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Text returns the most specific human-readable message available.
func (e ErrorResponse) Text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	default:
		return e.Error
	}
}
