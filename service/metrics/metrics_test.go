package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.RecordRPCCall("GetBalance", "success", "devnet", 0.1)
	m.RecordTransfer("success", 1_000_000_000)
	m.RecordTransfer("error", 5)
	m.RecordAPIError("invalid_public_key")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["solana_rpc_calls_total"])
	assert.True(t, names["transfers_total"])
	assert.True(t, names["lamports_transferred_total"])
	assert.True(t, names["api_errors_total"])

	assert.Equal(t, float64(1), testutil.ToFloat64(m.transfersTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transfersTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1_000_000_000), testutil.ToFloat64(m.lamportsTransferred))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRPCCall("GetBalance", "success", "devnet", 0.1)
		m.RecordConfirmationWait("confirmed", "success", 1)
		m.RecordTransfer("success", 1)
		m.RecordTransferStatus("finalized")
		m.RecordWorkflowDuration("finalized", 1)
		m.RecordActivityDuration("GetSignatureStatus", 1)
		m.RecordDBQuery("insert", "transfers", 0.01, nil)
		m.RecordHTTPRequest("/health", "GET", 200, 0.01)
		m.RecordAPIError("internal")
		m.RecordNATSPublish("transfers.x", "success", 0.01)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := HTTPMetricsMiddleware(m, "/balance/{address}")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.WriteHeader(http.StatusOK) // ignored by the wrapper
	}))

	req := httptest.NewRequest(http.MethodGet, "/balance/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/balance/{address}", "GET", "4xx")))
}

func TestHTTPMetricsMiddleware_DefaultStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := HTTPMetricsMiddleware(m, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/health", "GET", "2xx")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		502: "5xx",
		99:  "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCodeToString(code), "code %d", code)
	}
}

func TestTimer(t *testing.T) {
	var got float64
	done := Timer(time.Now().Add(-time.Second), func(d float64) { got = d })
	done()
	assert.GreaterOrEqual(t, got, 1.0)
}
