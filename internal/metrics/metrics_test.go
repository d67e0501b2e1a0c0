package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/":                                      "/",
		"/metrics":                               "/metrics",
		"/api/v1/quotes":                         "/api/v1/quotes",
		"/api/v1/quotes/DEV-2026-0001":           "/api/v1/quotes/:id",
		"/api/v1/quotes/DEV-2026-0001/confirm":   "/api/v1/quotes/:id/confirm",
		"/api/v1/quotes/estimate":                "/api/v1/quotes/estimate",
		"/api/v1/invoices/INV-2026-0003/pay/x/y": "/api/v1/invoices/:id/pay",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonicalPath(in), in)
	}
}

func TestInstrumentHandlerCountsStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/clients/:id", "418"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/clients/CLI-2026-0009", nil))

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/clients/:id", "418"))
	assert.Equal(t, before+1, after)
}

func TestDomainCounters(t *testing.T) {
	RecordEstimate("pvc")
	RecordInvoice("proforma")
	RecordPayment("client", 1500)
	RecordPayment("client", -3)

	assert.GreaterOrEqual(t, testutil.ToFloat64(estimates.WithLabelValues("pvc")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(paymentsAmount.WithLabelValues("client")), 1500.0)
}

func TestHandlerExposesRegistry(t *testing.T) {
	RecordJob("expire_quotes", 0, true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "windoorpvc_scheduler_job_runs_total"))
}
