package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/tokens/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/tokens/{id}", "404"))

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens/"+id, nil))
	}

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/tokens/{id}", "404"))
	if after-before != 3 {
		t.Errorf("requests counted = %v, want 3", after-before)
	}
}

func TestRecordConfirmation(t *testing.T) {
	before := testutil.ToFloat64(saleConfirmations.WithLabelValues("confirmed"))
	RecordConfirmation("confirmed")
	if got := testutil.ToFloat64(saleConfirmations.WithLabelValues("confirmed")) - before; got != 1 {
		t.Errorf("confirmed count delta = %v, want 1", got)
	}

	beforeUnknown := testutil.ToFloat64(saleConfirmations.WithLabelValues("unknown"))
	RecordConfirmation("")
	if got := testutil.ToFloat64(saleConfirmations.WithLabelValues("unknown")) - beforeUnknown; got != 1 {
		t.Errorf("unknown count delta = %v, want 1", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	RecordChainCall("get_transaction", "ok", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "market_chain_requests_total") {
		t.Error("exposition missing market_chain_requests_total")
	}
}
