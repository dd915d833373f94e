package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/homestar/pkg/metrics"
)

func TestObserveTaskIncrementsCounterAndHistogram(t *testing.T) {
	metrics.Reset()
	metrics.ObserveTask("add-one.wasm", metrics.OutcomeOK, 5*time.Millisecond)
	metrics.ObserveTask("add-one.wasm", metrics.OutcomeBranchMismatch, 0)

	body := scrape(t)
	require.Contains(t, body, `homestar_worker_tasks_total{module="add-one.wasm",outcome="ok"} 1`)
	require.Contains(t, body, `homestar_worker_tasks_total{module="add-one.wasm",outcome="branch_mismatch"} 1`)
	require.Contains(t, body, "homestar_worker_task_duration_seconds")
}

func TestObserveTaskSkipsDurationHistogramForReplayed(t *testing.T) {
	metrics.Reset()
	metrics.ObserveTask("add-one.wasm", metrics.OutcomeReplayed, time.Second)

	body := scrape(t)
	require.Contains(t, body, `homestar_worker_tasks_total{module="add-one.wasm",outcome="replayed"} 1`)
	require.NotContains(t, body, "homestar_worker_task_duration_seconds")
}

func TestLabelsWithUnsafeCharactersAreSanitized(t *testing.T) {
	metrics.Reset()
	metrics.ObserveTask("weird module/name!", metrics.OutcomeOK, time.Millisecond)

	body := scrape(t)
	require.Contains(t, body, `module="weird_module_name_"`)
}

func TestEmptyLabelFallsBackToUnknown(t *testing.T) {
	metrics.Reset()
	metrics.ObserveWorkflow("")

	body := scrape(t)
	require.Contains(t, body, `homestar_worker_workflows_total{outcome="unknown"} 1`)
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	metrics.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}
