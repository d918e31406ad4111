package devbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-session/oauth2"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	"github.com/jrsteele09/go-admin-session/users"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	headerCSRF      = "X-CSRF-Token"
)

var errMissingBearer = errors.New("missing bearer token")

// Login authenticates email and password, optionally scoped by ?tenantId=.
func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req oauth2.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Malformed login body", http.StatusBadRequest)
			return
		}

		user, err := s.users.GetByEmail(strings.TrimSpace(req.Email))
		if err != nil || user.Blocked || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			writeJSONMessage(w, "invalid_credentials", "Invalid email or password", http.StatusUnauthorized)
			return
		}

		tenantID := r.URL.Query().Get("tenantId")
		if tenantID != "" {
			if _, err := s.tenants.Get(tenantID); err != nil || !user.HasTenant(tenantID) {
				writeJSONMessage(w, "invalid_credentials", "You do not have access to this tenant", http.StatusUnauthorized)
				return
			}
		}

		accessToken, err := s.issueAccessToken(user, tenantID, s.lifetimes.GetDefaultAccessTokenExpiry(), nil)
		if err != nil {
			s.logger.Err(err).Msg("Login: failed to issue access token")
			writeJSONError(w, "server_error", "Failed to issue token", http.StatusInternalServerError)
			return
		}
		rt, err := s.refresh.Create(user.ID, tenantID)
		if err != nil {
			s.logger.Err(err).Msg("Login: failed to create refresh token")
			writeJSONError(w, "server_error", "Failed to issue token", http.StatusInternalServerError)
			return
		}
		s.setRefreshCookie(w, r, rt.Token)

		resp := oauth2.LoginResponse{AccessToken: accessToken}
		if s.embedUser {
			resp.User = user.Profile()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// CurrentUser returns the profile behind the bearer token.
func (s *Server) CurrentUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, err := s.authenticate(r)
		if err != nil {
			writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, user.Profile())
	}
}

// Token rotates the refresh cookie and returns a new access token.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d := s.getTokenDelay(); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		if grant := r.FormValue("grant_type"); grant != oauth2.GrantTypeRefreshToken {
			writeJSONError(w, "unsupported_grant_type", "grant_type must be refresh_token", http.StatusBadRequest)
			return
		}

		cookie, err := r.Cookie(RefreshCookieName)
		if err != nil || cookie.Value == "" {
			writeJSONError(w, "invalid_grant", "Missing refresh token", http.StatusUnauthorized)
			return
		}

		rt, err := s.refresh.Rotate(cookie.Value, r.Header.Get(headerCSRF))
		if err != nil {
			if !errors.Is(err, refresh.ErrCSRFMismatch) {
				s.clearRefreshCookie(w, r)
			}
			writeJSONError(w, "invalid_grant", err.Error(), http.StatusUnauthorized)
			return
		}

		user, err := s.users.GetByID(rt.UserID)
		if err != nil || user.Blocked {
			_ = s.refresh.Delete(rt.Token)
			s.clearRefreshCookie(w, r)
			writeJSONError(w, "invalid_grant", "User is no longer active", http.StatusUnauthorized)
			return
		}

		expiry := s.lifetimes.GetDefaultAccessTokenExpiry()
		accessToken, err := s.issueAccessToken(user, rt.TenantID, expiry, nil)
		if err != nil {
			s.logger.Err(err).Msg("Token: failed to issue access token")
			writeJSONError(w, "server_error", "Failed to issue token", http.StatusInternalServerError)
			return
		}
		s.setRefreshCookie(w, r, rt.Token)

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, oauth2.TokenResponse{
			AccessToken: accessToken,
			TokenType:   "bearer",
			ExpiresIn:   int(expiry.Seconds()),
			CSRFToken:   rt.CSRFToken,
		})
	}
}

// Logout revokes the bearer token, when valid, and the refresh cookie.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, claims, err := s.authenticate(r); err == nil {
			s.revoked.Revoke(claims.ID, claims.ExpiresAt)
		}
		if cookie, err := r.Cookie(RefreshCookieName); err == nil && cookie.Value != "" {
			_ = s.refresh.Delete(cookie.Value)
		}
		s.clearRefreshCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	}
}

// Impersonate grants a platform administrator a short-lived token in a tenant.
func (s *Server) Impersonate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, err := s.authenticate(r)
		if err != nil {
			writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
			return
		}
		if !user.IsSuperAdmin() {
			writeJSONMessage(w, "forbidden", "Platform administrator access required", http.StatusForbidden)
			return
		}

		var req oauth2.ImpersonationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "Malformed impersonation body", http.StatusBadRequest)
			return
		}
		if req.TenantID == "" || strings.TrimSpace(req.Reason) == "" {
			writeJSONMessage(w, "invalid_request", "tenantId and reason are required", http.StatusBadRequest)
			return
		}
		if _, err := s.tenants.Get(req.TenantID); err != nil {
			writeJSONMessage(w, "not_found", "Tenant not found", http.StatusNotFound)
			return
		}

		impersonationID := uuid.New().String()
		expiry := s.lifetimes.GetImpersonationTokenExpiry()
		accessToken, err := s.issueAccessToken(user, req.TenantID, expiry, map[string]any{
			"impersonation_id": impersonationID,
			"act":              map[string]any{"sub": user.ID},
		})
		if err != nil {
			s.logger.Err(err).Msg("Impersonate: failed to issue access token")
			writeJSONError(w, "server_error", "Failed to issue token", http.StatusInternalServerError)
			return
		}

		s.logger.Info().
			Str("admin", user.Email).
			Str("tenant", req.TenantID).
			Str("reason", req.Reason).
			Str("impersonation_id", impersonationID).
			Msg("impersonation granted")

		writeJSON(w, http.StatusCreated, oauth2.ImpersonationResponse{
			AccessToken:     accessToken,
			ImpersonationID: impersonationID,
			ExpiresIn:       int(expiry.Seconds()),
		})
	}
}

// GetTenant returns a tenant the caller belongs to. It stands in for the
// console's protected data calls.
func (s *Server) GetTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _, err := s.authenticate(r)
		if err != nil {
			writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
			return
		}

		tenantID := chi.URLParam(r, "tenantID")
		if !user.HasTenant(tenantID) {
			writeJSONMessage(w, "forbidden", "You do not have access to this tenant", http.StatusForbidden)
			return
		}
		t, err := s.tenants.Get(tenantID)
		if err != nil {
			writeJSONMessage(w, "not_found", "Tenant not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) authenticate(r *http.Request) (*users.User, *token.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return nil, nil, errMissingBearer
	}

	claims, err := s.creator.Verify(parts[1])
	if err != nil {
		return nil, nil, err
	}
	if s.revoked.Denied(claims.ID) {
		return nil, nil, errors.New("token has been revoked")
	}

	user, err := s.users.GetByID(claims.Subject)
	if err != nil || user.Blocked {
		return nil, nil, errors.New("unknown user")
	}
	return user, claims, nil
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, r *http.Request, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.lifetimes.GetDefaultRefreshTokenExpiry().Seconds()),
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, oauth2.ErrorResponse{Error: errorCode, ErrorDescription: description})
}

// writeJSONMessage writes the console API error shape, which carries message.
func writeJSONMessage(w http.ResponseWriter, errorCode, message string, statusCode int) {
	writeJSON(w, statusCode, oauth2.ErrorResponse{Error: errorCode, Message: message})
}
