package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMainChainHeightGaugeSet(t *testing.T) {
	MainChainHeight.Set(123)
	if got := testutil.ToFloat64(MainChainHeight); got != 123 {
		t.Fatalf("MainChainHeight = %v, want 123", got)
	}
}

func TestOperationResultsCounterVec(t *testing.T) {
	OperationResults.WithLabelValues("store_block_header", "ok").Inc()
	if got := testutil.ToFloat64(OperationResults.WithLabelValues("store_block_header", "ok")); got < 1 {
		t.Fatalf("expected counter >= 1, got %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	HeadersStored.Add(1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "btcrelay_headers_stored_total") {
		t.Error("expected btcrelay_headers_stored_total in metrics output")
	}
}
