package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCalculation(t *testing.T) {
	m := New()
	m.RecordCalculation("succeeded", decimal.RequireFromString("383.33"))
	m.RecordCalculation("skipped", decimal.Zero)
	m.RecordCalculation("succeeded", decimal.RequireFromString("1000"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CalculationsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CalculationsTotal.WithLabelValues("skipped")))
	assert.InDelta(t, 1383.33, testutil.ToFloat64(m.CommissionAmount), 0.001)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordCalculation("failed", decimal.Zero)
	m.RecordTransition("paid")
	m.RecordRevenueCache(true)
}

func TestHandlerExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	m.RecordTransition("processing")

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `commission_transitions_total{to="processing"} 1`))
}
