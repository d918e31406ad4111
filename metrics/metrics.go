// Package metrics provides Prometheus metrics for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh triggers
const (
	TriggerRestore     = "restore"
	TriggerRenewal     = "renewal"
	TriggerInterceptor = "interceptor"
	TriggerGuard       = "guard"
)

// Metrics holds all Prometheus metrics for session operations. A nil or
// disabled Metrics records nothing.
type Metrics struct {
	enabled bool

	refreshTotal        *prometheus.CounterVec
	refreshCoalesced    prometheus.Counter
	loginTotal          *prometheus.CounterVec
	logoutTotal         prometheus.Counter
	renewalsScheduled   prometheus.Counter
	renewalOutcomes     *prometheus.CounterVec
	guardDecisions      *prometheus.CounterVec
	interceptorRetries  *prometheus.CounterVec
	restorationOutcomes *prometheus.CounterVec
}

// New creates metrics registered on reg. If enabled is false, returns a no-op
// Metrics instance.
func New(enabled bool, reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: enabled}
	if !enabled {
		return m
	}
	factory := promauto.With(reg)

	m.refreshTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_session_refresh_exchanges_total",
		Help: "Refresh exchanges sent to the identity backend",
	}, []string{"result"})

	m.refreshCoalesced = factory.NewCounter(prometheus.CounterOpts{
		Name: "admin_session_refresh_coalesced_total",
		Help: "Refresh calls that joined an exchange already in flight",
	})

	m.loginTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_session_logins_total",
		Help: "Login attempts",
	}, []string{"result"})

	m.logoutTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "admin_session_logouts_total",
		Help: "Logouts, including forced ones",
	})

	m.renewalsScheduled = factory.NewCounter(prometheus.CounterOpts{
		Name: "admin_session_renewals_scheduled_total",
		Help: "Proactive renewal timers armed",
	})

	m.renewalOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_session_renewals_total",
		Help: "Proactive renewals that fired",
	}, []string{"result"})

	m.guardDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_session_guard_decisions_total",
		Help: "Route guard decisions",
	}, []string{"guard", "decision"})

	m.interceptorRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_session_interceptor_retries_total",
		Help: "Requests retried after a 401",
	}, []string{"result"})

	m.restorationOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_session_restorations_total",
		Help: "Session restoration outcomes",
	}, []string{"outcome"})

	return m
}

func (m *Metrics) on() bool {
	return m != nil && m.enabled
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRefresh records the outcome of one refresh exchange.
func (m *Metrics) RecordRefresh(ok bool) {
	if !m.on() {
		return
	}
	m.refreshTotal.WithLabelValues(result(ok)).Inc()
}

// RecordRefreshCoalesced records a refresh call served by a shared exchange.
func (m *Metrics) RecordRefreshCoalesced() {
	if !m.on() {
		return
	}
	m.refreshCoalesced.Inc()
}

// RecordLogin records a login attempt.
func (m *Metrics) RecordLogin(ok bool) {
	if !m.on() {
		return
	}
	m.loginTotal.WithLabelValues(result(ok)).Inc()
}

// RecordLogout records a logout.
func (m *Metrics) RecordLogout() {
	if !m.on() {
		return
	}
	m.logoutTotal.Inc()
}

// RecordRenewalScheduled records an armed renewal timer.
func (m *Metrics) RecordRenewalScheduled() {
	if !m.on() {
		return
	}
	m.renewalsScheduled.Inc()
}

// RecordRenewal records the outcome of a fired renewal.
func (m *Metrics) RecordRenewal(ok bool) {
	if !m.on() {
		return
	}
	m.renewalOutcomes.WithLabelValues(result(ok)).Inc()
}

// RecordGuardDecision records a terminal guard decision.
func (m *Metrics) RecordGuardDecision(guard, decision string) {
	if !m.on() {
		return
	}
	m.guardDecisions.WithLabelValues(guard, decision).Inc()
}

// RecordInterceptorRetry records whether a retried request ended up succeeding.
func (m *Metrics) RecordInterceptorRetry(ok bool) {
	if !m.on() {
		return
	}
	m.interceptorRetries.WithLabelValues(result(ok)).Inc()
}

// RecordRestoration records a restoration outcome.
func (m *Metrics) RecordRestoration(outcome string) {
	if !m.on() {
		return
	}
	m.restorationOutcomes.WithLabelValues(outcome).Inc()
}
