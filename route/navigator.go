// Package route is the boundary between the session core and whatever
// performs navigation (a browser router, a CLI, an HTTP redirect).
package route

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Navigator sends the user to route.
type Navigator interface {
	Navigate(ctx context.Context, route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route string)

func (f NavigatorFunc) Navigate(ctx context.Context, route string) {
	f(ctx, route)
}

// LogNavigator records navigations in the log. It is what a headless client
// uses where a console would change page.
type LogNavigator struct {
	Logger zerolog.Logger
}

func (n LogNavigator) Navigate(_ context.Context, route string) {
	n.Logger.Info().Str("route", route).Msg("redirect to login")
}

// Recorder remembers every navigation in order.
type Recorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *Recorder) Navigate(_ context.Context, route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Routes returns a copy of the recorded routes.
func (r *Recorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

// Last returns the most recent route, or "" if none.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}
