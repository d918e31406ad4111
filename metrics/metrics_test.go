package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-admin-session/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Disabled(t *testing.T) {
	m := metrics.New(false, prometheus.NewRegistry())
	m.RecordRefresh(true)
	m.RecordLogout()
	m.RecordGuardDecision("platform", "denied")

	var nilMetrics *metrics.Metrics
	nilMetrics.RecordRefresh(false)
	nilMetrics.RecordRenewalScheduled()
}

func TestMetrics_Enabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(true, reg)

	m.RecordRefresh(true)
	m.RecordRefresh(true)
	m.RecordRefresh(false)
	m.RecordRefreshCoalesced()
	m.RecordLogin(false)
	m.RecordLogout()
	m.RecordRenewalScheduled()
	m.RecordRenewal(true)
	m.RecordGuardDecision("tenant", "allowed")
	m.RecordInterceptorRetry(false)
	m.RecordRestoration("restored")

	count, err := testutil.GatherAndCount(reg, "admin_session_refresh_exchanges_total")
	require.NoError(t, err)
	require.Equal(t, 2, count) // success and failure series

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 9)
}
