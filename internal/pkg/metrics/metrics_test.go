package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.TaskQueued("gse", "high")
	r.TaskQueued("gse", "high")
	r.TaskAttempt("gse", "failure", 2*time.Second)
	r.TaskRetried("gse")
	r.SetQueueDepth(4)
	r.VaultOperation("store", nil)
	r.VaultOperation("retrieve", errors.New("tampered"))
	r.EventEmitted("taskQueued")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.tasksQueued.WithLabelValues("gse", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.taskOutcomes.WithLabelValues("gse", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.taskRetries.WithLabelValues("gse")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.vaultOps.WithLabelValues("retrieve", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsEmitted.WithLabelValues("taskQueued")))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.TaskQueued("gse", "low")
		r.TaskAttempt("gse", "success", time.Second)
		r.TaskRetried("gse")
		r.SetQueueDepth(1)
		r.VaultOperation("store", nil)
		r.EventEmitted("taskStarted")
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.TaskQueued("terna", "medium")

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portal_automation_tasks_queued_total")
}

func TestRecorder_ExecutionHistogram(t *testing.T) {
	r := NewRecorder()
	r.TaskAttempt("dso", "success", 1500*time.Millisecond)
	r.TaskAttempt("dso", "partial", 500*time.Millisecond)

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() != "portal_automation_task_execution_seconds" {
			continue
		}
		require.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "system" && lp.GetValue() == "dso" {
					hist = m.GetHistogram()
				}
			}
		}
	}
	require.NotNil(t, hist, "histogram for dso not gathered")
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 2.0, hist.GetSampleSum(), 1e-9)
}
