package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(ExtractionsTotal.WithLabelValues("user", OutcomeOK))
	ExtractionsTotal.WithLabelValues("user", OutcomeOK).Inc()
	if got := testutil.ToFloat64(ExtractionsTotal.WithLabelValues("user", OutcomeOK)); got != before+1 {
		t.Errorf("extractions_total = %v, want %v", got, before+1)
	}
}

func TestHandler(t *testing.T) {
	AppliesTotal.WithLabelValues("char").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "wardrobe_applies_total") {
		t.Errorf("metrics output missing wardrobe_applies_total")
	}
}
