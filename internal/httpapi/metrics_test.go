package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/John-Robertt/subsync-go/internal/merger"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestMetrics_CountsRequestsAndErrors(t *testing.T) {
	metrics = newMetricsStore()
	log, _ := test.NewNullLogger()
	h := NewHandlerWithOptions(Options{Log: log})

	// 1) ok request
	{
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 2) error request: empty body
	{
		req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(""))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("sync status=%d body=%q", rr.Code, rr.Body.String())
		}
	}

	// 3) the /metrics request is not counted in its own response.
	{
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("metrics status=%d body=%q", rr.Code, rr.Body.String())
		}

		body := rr.Body.String()
		for _, want := range []string{
			"subsync_http_requests_total 2\n",
			`pattern="GET /healthz",status="200"} 1`,
			`pattern="POST /api/sync",status="400"} 1`,
			`subsync_app_errors_total{stage="validate_request",code="INVALID_ARGUMENT"} 1`,
		} {
			if !strings.Contains(body, want) {
				t.Fatalf("metrics body missing %q, got:\n%s", want, body)
			}
		}
	}
}

func TestMetrics_SyncCounters(t *testing.T) {
	metrics = newMetricsStore()

	metricsIncSync(false, nil)
	metricsIncSync(true, &merger.Result{
		Updated: 2,
		Added:   3,
		Sources: []merger.SourceReport{
			{Name: "a", Status: merger.StatusOK},
			{Name: "b", Status: merger.StatusFailed},
		},
		Warnings: []merger.Warning{
			{Source: "a", MasterTag: "US", Want: "united states", Reason: "no node matched"},
			{MasterTag: "HK", Reason: "duplicate outbound tag dropped"},
		},
	})

	rr := httptest.NewRecorder()
	handleMetrics(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		`subsync_syncs_total{result="error"} 1`,
		`subsync_syncs_total{result="ok"} 1`,
		"subsync_outbounds_updated_total 2\n",
		"subsync_outbounds_added_total 3\n",
		"subsync_source_failures_total 1\n",
		"subsync_unmatched_node_maps_total 1\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics body missing %q, got:\n%s", want, body)
		}
	}
}

func TestPromLabelEscape(t *testing.T) {
	got := promLabelEscape("a\"b\\c\nd")
	want := `a\"b\\c\nd`
	if got != want {
		t.Fatalf("escaped=%q, want=%q", got, want)
	}
}
