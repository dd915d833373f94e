// Package metrics exposes node-wide Prometheus counters and histograms:
// task invocations, workflow completions, receipt-store operations, and
// p2p gossip/DHT traffic.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	tasksRun         *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	workflowsRun     *prometheus.CounterVec
	receiptStoreOps  *prometheus.CounterVec
	gossipMessages   *prometheus.CounterVec
	dhtOps           *prometheus.HistogramVec
)

// Task outcome labels for TasksRun/TaskDuration.
const (
	OutcomeOK            = "ok"
	OutcomeError         = "error"
	OutcomeBranchMismatch = "branch_mismatch"
	OutcomeReplayed      = "replayed"
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all metrics collectors. Used by tests
// to ensure clean state between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler returns an HTTP handler exposing metrics in Prometheus
// exposition format, suitable for mounting at /metrics.
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveTask records a completed task invocation: its sandbox module
// name (or "unknown" if absent), the outcome classification, and how
// long the invocation took.
func ObserveTask(module, outcome string, duration time.Duration) {
	labelModule := sanitizeLabel(module, "unknown")
	labelOutcome := sanitizeLabel(outcome, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if tasksRun != nil {
		tasksRun.WithLabelValues(labelModule, labelOutcome).Inc()
	}
	if taskDuration != nil && outcome != OutcomeReplayed {
		taskDuration.WithLabelValues(labelModule).Observe(durationSeconds(duration))
	}
}

// ObserveWorkflow records a completed workflow run's terminal outcome
// ("ok" if every task resolved without a store fault, "error" otherwise).
func ObserveWorkflow(outcome string) {
	labelOutcome := sanitizeLabel(outcome, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if workflowsRun != nil {
		workflowsRun.WithLabelValues(labelOutcome).Inc()
	}
}

// IncReceiptStoreOp increments the counter for a receipt-store operation
// ("put", "get", "get_many") by its result ("ok" or "error").
func IncReceiptStoreOp(op, result string) {
	labelOp := sanitizeLabel(op, "unknown")
	labelResult := sanitizeLabel(result, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if receiptStoreOps != nil {
		receiptStoreOps.WithLabelValues(labelOp, labelResult).Inc()
	}
}

// IncGossipMessage increments the counter for a gossip event ("published"
// or "received") on a topic.
func IncGossipMessage(topic, direction string) {
	labelTopic := sanitizeLabel(topic, "unknown")
	labelDirection := sanitizeLabel(direction, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if gossipMessages != nil {
		gossipMessages.WithLabelValues(labelTopic, labelDirection).Inc()
	}
}

// ObserveDHTOp records the latency of a DHT put/get by operation name
// ("put_receipt", "get_receipt", "put_workflow_info", "get_workflow_info").
func ObserveDHTOp(op string, duration time.Duration) {
	labelOp := sanitizeLabel(op, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if dhtOps != nil {
		dhtOps.WithLabelValues(labelOp).Observe(durationSeconds(duration))
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	taskCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homestar",
		Subsystem: "worker",
		Name:      "tasks_total",
		Help:      "Total task invocations grouped by sandbox module and outcome.",
	}, []string{"module", "outcome"})

	taskHist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homestar",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "Duration of sandbox task invocations by module.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"module"})

	workflowCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homestar",
		Subsystem: "worker",
		Name:      "workflows_total",
		Help:      "Total workflow runs grouped by terminal outcome.",
	}, []string{"outcome"})

	storeCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homestar",
		Subsystem: "receiptstore",
		Name:      "operations_total",
		Help:      "Total receipt store operations grouped by op and result.",
	}, []string{"op", "result"})

	gossipCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "homestar",
		Subsystem: "p2p",
		Name:      "gossip_messages_total",
		Help:      "Total gossipsub messages grouped by topic and direction.",
	}, []string{"topic", "direction"})

	dhtHist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "homestar",
		Subsystem: "p2p",
		Name:      "dht_operation_duration_seconds",
		Help:      "Duration of DHT put/get operations by op.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	registry.MustRegister(taskCounter, taskHist, workflowCounter, storeCounter, gossipCounter, dhtHist)

	reg = registry
	tasksRun = taskCounter
	taskDuration = taskHist
	workflowsRun = workflowCounter
	receiptStoreOps = storeCounter
	gossipMessages = gossipCounter
	dhtOps = dhtHist
}

func sanitizeLabel(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ':' || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func durationSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return d.Seconds()
}
