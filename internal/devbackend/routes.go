package devbackend

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Identity routes
const (
	RouteLogin          = "/auth/login"
	RouteLogout         = "/auth/logout"
	RouteCurrentUser    = "/users/me"
	RouteToken          = "/oauth2-secure/token"
	RouteImpersonations = "/api/admin/impersonations"
	RouteTenant         = "/api/tenants/{tenantID}"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countingMiddleware)
	r.Use(s.loggingMiddleware)
	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerCSRF},
			AllowCredentials: true,
			MaxAge:           int((10 * time.Minute).Seconds()),
		}))
	}

	login := r.With()
	if s.loginLimit > 0 {
		login = r.With(httprate.LimitByIP(s.loginLimit, time.Minute))
	}
	login.Post(RouteLogin, s.Login())
	r.Post(RouteLogout, s.Logout())
	r.Get(RouteCurrentUser, s.CurrentUser())
	r.Post(RouteToken, s.Token())
	r.Post(RouteImpersonations, s.Impersonate())
	r.Get(RouteTenant, s.GetTenant())
	return r
}

func (s *Server) countingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.countCall(r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// WriteRoutes prints the registered routes to w, coloured by method.
func (s *Server) WriteRoutes(w io.Writer) error {
	return chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		colour, ok := methodColours[method]
		if !ok {
			colour = Gray
		}
		_, err := fmt.Fprintf(w, "[%s %-7s%s] %s\n", colour, method, ResetColour, route)
		return err
	})
}
