package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hluisi/roguehunter/model"
)

func TestObserveTickUpdatesExposedMetrics(t *testing.T) {
	m := New(func() int { return 3 }, func() int { return 2 })
	m.ObserveTick(150*time.Millisecond, model.SampleBatch{MaxScore: 91, ProcessCount: 412})
	m.ObserveForensicsCapture(model.StatusOK, model.StatusFailed)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"roguehunter_up 1",
		"roguehunter_batch_max_score 91",
		"roguehunter_process_count 412",
		"roguehunter_tracked_events 3",
		"roguehunter_stream_clients 2",
		`roguehunter_forensics_captures_total{logs_status="failed",tailspin_status="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
