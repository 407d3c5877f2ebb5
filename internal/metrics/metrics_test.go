package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"helpdesk/backend/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := metrics.New()
	m.GateChecks.WithLabelValues("eligible").Inc()
	m.RequestsCreated.Add(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsCreated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GateChecks.WithLabelValues("eligible")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "helpdesk_requests_created_total 2"))
	assert.True(t, strings.Contains(body, `helpdesk_gate_checks_total{outcome="eligible"} 1`))
}

func TestNewUsesIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	assert.NotPanics(t, func() {
		metrics.New()
		metrics.New()
	})
}
