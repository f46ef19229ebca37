package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/John-Robertt/subsync-go/internal/merger"
)

// metricsStore holds a few process-wide counters rendered in the Prometheus
// text format.
type metricsStore struct {
	mu sync.Mutex

	httpRequestsTotal uint64
	httpByPattern     map[reqKey]uint64

	appErrors map[errKey]uint64

	syncsByResult  map[string]uint64
	nodesUpdated   uint64
	nodesAdded     uint64
	sourceFailures uint64
	unmatchedMaps  uint64
}

type reqKey struct {
	Pattern string
	Status  int
}

type errKey struct {
	Stage string
	Code  string
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		httpByPattern: make(map[reqKey]uint64),
		appErrors:     make(map[errKey]uint64),
		syncsByResult: make(map[string]uint64),
	}
}

var metrics = newMetricsStore()

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.httpRequestsTotal++
	metrics.httpByPattern[reqKey{Pattern: pattern, Status: status}]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	stage = strings.TrimSpace(stage)
	code = strings.TrimSpace(code)
	if stage == "" {
		stage = "(unknown)"
	}
	if code == "" {
		code = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.appErrors[errKey{Stage: stage, Code: code}]++
	metrics.mu.Unlock()
}

// metricsIncSync counts one sync run. res is nil for a failed run.
func metricsIncSync(ok bool, res *merger.Result) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if !ok || res == nil {
		metrics.syncsByResult["error"]++
		return
	}
	metrics.syncsByResult["ok"]++
	metrics.nodesUpdated += uint64(res.Updated)
	metrics.nodesAdded += uint64(res.Added)
	for _, s := range res.Sources {
		if s.Status == merger.StatusFailed {
			metrics.sourceFailures++
		}
	}
	for _, w := range res.Warnings {
		if w.Want != "" {
			metrics.unmatchedMaps++
		}
	}
}

type syncMetrics struct {
	byResult       map[string]uint64
	nodesUpdated   uint64
	nodesAdded     uint64
	sourceFailures uint64
	unmatchedMaps  uint64
}

func syncSnapshot() syncMetrics {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	byResult := make(map[string]uint64, len(metrics.syncsByResult))
	for k, v := range metrics.syncsByResult {
		byResult[k] = v
	}
	return syncMetrics{
		byResult:       byResult,
		nodesUpdated:   metrics.nodesUpdated,
		nodesAdded:     metrics.nodesAdded,
		sourceFailures: metrics.sourceFailures,
		unmatchedMaps:  metrics.unmatchedMaps,
	}
}

type reqMetric struct {
	reqKey
	N uint64
}

type errMetric struct {
	errKey
	N uint64
}

func metricsSnapshot() (httpTotal uint64, reqs []reqMetric, errs []errMetric) {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	httpTotal = metrics.httpRequestsTotal

	reqs = make([]reqMetric, 0, len(metrics.httpByPattern))
	for k, n := range metrics.httpByPattern {
		reqs = append(reqs, reqMetric{reqKey: k, N: n})
	}
	errs = make([]errMetric, 0, len(metrics.appErrors))
	for k, n := range metrics.appErrors {
		errs = append(errs, errMetric{errKey: k, N: n})
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Pattern != reqs[j].Pattern {
			return reqs[i].Pattern < reqs[j].Pattern
		}
		return reqs[i].Status < reqs[j].Status
	})
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Stage != errs[j].Stage {
			return errs[i].Stage < errs[j].Stage
		}
		return errs[i].Code < errs[j].Code
	})
	return httpTotal, reqs, errs
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	total, reqs, errs := metricsSnapshot()

	var b strings.Builder

	b.WriteString("# HELP subsync_http_requests_total Total HTTP requests.\n")
	b.WriteString("# TYPE subsync_http_requests_total counter\n")
	b.WriteString("subsync_http_requests_total ")
	b.WriteString(strconv.FormatUint(total, 10))
	b.WriteByte('\n')

	b.WriteString("# HELP subsync_http_requests_by_pattern_total HTTP requests by ServeMux pattern and status.\n")
	b.WriteString("# TYPE subsync_http_requests_by_pattern_total counter\n")
	for _, m := range reqs {
		b.WriteString("subsync_http_requests_by_pattern_total{pattern=\"")
		b.WriteString(promLabelEscape(m.Pattern))
		b.WriteString("\",status=\"")
		b.WriteString(strconv.Itoa(m.Status))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP subsync_app_errors_total Application errors returned to clients.\n")
	b.WriteString("# TYPE subsync_app_errors_total counter\n")
	for _, m := range errs {
		b.WriteString("subsync_app_errors_total{stage=\"")
		b.WriteString(promLabelEscape(m.Stage))
		b.WriteString("\",code=\"")
		b.WriteString(promLabelEscape(m.Code))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	sm := syncSnapshot()
	b.WriteString("# HELP subsync_syncs_total Sync runs by result.\n")
	b.WriteString("# TYPE subsync_syncs_total counter\n")
	results := make([]string, 0, len(sm.byResult))
	for k := range sm.byResult {
		results = append(results, k)
	}
	sort.Strings(results)
	for _, k := range results {
		b.WriteString("subsync_syncs_total{result=\"")
		b.WriteString(promLabelEscape(k))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(sm.byResult[k], 10))
		b.WriteByte('\n')
	}
	writeCounter(&b, "subsync_outbounds_updated_total", "Master outbounds replaced by synced nodes.", sm.nodesUpdated)
	writeCounter(&b, "subsync_outbounds_added_total", "Synced nodes appended to the master outbounds.", sm.nodesAdded)
	writeCounter(&b, "subsync_source_failures_total", "Secondary sources skipped after a fetch or parse failure.", sm.sourceFailures)
	writeCounter(&b, "subsync_unmatched_node_maps_total", "node_maps entries that resolved to no node.", sm.unmatchedMaps)

	_, _ = fmt.Fprint(w, b.String())
}

func writeCounter(b *strings.Builder, name, help string, v uint64) {
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " counter\n")
	b.WriteString(name + " " + strconv.FormatUint(v, 10) + "\n")
}

func promLabelEscape(s string) string {
	// Prometheus label value escaping: backslash and double quote.
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
