package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("buy", time.Now(), nil)
	m.ObserveOperation("buy", time.Now(), domain.ErrUserReachBuyLimit)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("buy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("buy", "state")))
}

func TestRecordSaleAndPayout(t *testing.T) {
	m := New()
	m.RecordSale("native", 10)
	m.RecordSale("native", 5)
	m.RecordPayout(true, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sales))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.salesVolume.WithLabelValues("native")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.payouts.WithLabelValues("primary")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("buy", time.Now(), nil)
	m.RecordSale("x", 1)
	m.RecordPayout(false, 1)
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.InstrumentHandler(h))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := m.InstrumentHandler(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "editionshop_http_requests_total")
}
