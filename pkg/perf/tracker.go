// Package perf records network and task timing data for one engine and
// turns it into aggregate reports and per-task metrics.
package perf

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/entrhq/pilot/pkg/types"
)

// Estimation factors from the reference engine: element detection is
// approximated as a share of summed step time, network wait as a share of
// total wall time.
const (
	detectionShare = 0.30
	networkShare   = 0.20
)

// Report suggestion thresholds.
const (
	imageRequestThreshold  = 50
	scriptRequestThreshold = 30
	slowAverageThreshold   = time.Second
)

// RequestRecord is one observed network request.
type RequestRecord struct {
	// URL is the requested resource.
	URL string

	// ResourceType is the driver-reported type (document, script, image...).
	ResourceType string

	// Duration is the observed response latency.
	Duration time.Duration

	// At is when the response was observed.
	At time.Time
}

// Report is the aggregate view over all observed requests.
type Report struct {
	// TotalRequests is the number of observed requests.
	TotalRequests int `json:"total_requests"`

	// AverageResponseTime is the mean response latency.
	AverageResponseTime time.Duration `json:"average_response_time"`

	// ResourceBreakdown counts requests by resource type.
	ResourceBreakdown map[string]int `json:"resource_breakdown"`

	// Suggestions are heuristic optimization hints.
	Suggestions []string `json:"suggestions"`
}

// Tracker collects request records and task outcomes. Safe for concurrent
// use; the driver's event loop appends records while the engine reads.
type Tracker struct {
	mu       sync.Mutex
	requests []RequestRecord

	metrics *promMetrics
}

// promMetrics are the Prometheus instruments a tracker registers.
type promMetrics struct {
	tasksTotal    *prometheus.CounterVec
	stepDuration  prometheus.Histogram
	requestsTotal *prometheus.CounterVec
}

// NewTracker creates a tracker. When registry is non-nil, counters and
// histograms are registered under the namespace (empty namespace uses
// "pilot").
func NewTracker(registry prometheus.Registerer, namespace string) *Tracker {
	t := &Tracker{}
	if registry == nil {
		return t
	}
	if namespace == "" {
		namespace = "pilot"
	}

	t.metrics = &promMetrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks executed, labeled by outcome.",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Per-step execution time.",
			Buckets:   prometheus.DefBuckets,
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_requests_total",
			Help:      "Observed network requests, labeled by resource type.",
		}, []string{"resource_type"}),
	}
	registry.MustRegister(t.metrics.tasksTotal, t.metrics.stepDuration, t.metrics.requestsTotal)
	return t
}

// Record appends one observed network request.
func (t *Tracker) Record(record RequestRecord) {
	if record.At.IsZero() {
		record.At = time.Now()
	}

	t.mu.Lock()
	t.requests = append(t.requests, record)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.requestsTotal.WithLabelValues(record.ResourceType).Inc()
	}
}

// ObserveTask feeds Prometheus from a finished task result.
func (t *Tracker) ObserveTask(result *types.Result) {
	if t.metrics == nil {
		return
	}
	outcome := "failed"
	if result.Success {
		outcome = "completed"
	}
	t.metrics.tasksTotal.WithLabelValues(outcome).Inc()
	for _, step := range result.Steps {
		t.metrics.stepDuration.Observe(step.Duration.Seconds())
	}
}

// RequestCount returns the number of observed requests.
func (t *Tracker) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Report aggregates all observed requests.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	requests := make([]RequestRecord, len(t.requests))
	copy(requests, t.requests)
	t.mu.Unlock()

	report := Report{
		TotalRequests:     len(requests),
		ResourceBreakdown: make(map[string]int),
	}

	var total time.Duration
	for _, r := range requests {
		report.ResourceBreakdown[r.ResourceType]++
		total += r.Duration
	}
	if len(requests) > 0 {
		report.AverageResponseTime = total / time.Duration(len(requests))
	}

	report.Suggestions = suggestions(report)
	return report
}

// suggestions derives fixed-threshold optimization hints from a report.
func suggestions(report Report) []string {
	var out []string
	if report.ResourceBreakdown["image"] > imageRequestThreshold {
		out = append(out, fmt.Sprintf(
			"high image request count (%d): consider lazy loading or sprites",
			report.ResourceBreakdown["image"]))
	}
	if report.ResourceBreakdown["script"] > scriptRequestThreshold {
		out = append(out, fmt.Sprintf(
			"high script request count (%d): consider bundling",
			report.ResourceBreakdown["script"]))
	}
	if report.TotalRequests > 0 && report.AverageResponseTime > slowAverageThreshold {
		out = append(out, fmt.Sprintf(
			"slow average response time (%s): check network conditions or page weight",
			report.AverageResponseTime))
	}
	sort.Strings(out)
	return out
}

// ComputeMetrics derives per-task metrics from the executed steps and the
// task's wall-clock time.
func ComputeMetrics(steps []types.StepResult, total time.Duration) types.PerformanceMetrics {
	metrics := types.PerformanceMetrics{
		TotalDuration: total,
		MemoryBytes:   processRSS(),
	}

	if len(steps) == 0 {
		metrics.SuccessRate = 1
		return metrics
	}

	var stepSum time.Duration
	succeeded := 0
	for _, step := range steps {
		stepSum += step.Duration
		if step.Success {
			succeeded++
		}
	}

	metrics.AverageStepDuration = stepSum / time.Duration(len(steps))
	metrics.ElementDetection = time.Duration(float64(stepSum) * detectionShare)
	metrics.NetworkTime = time.Duration(float64(total) * networkShare)
	metrics.SuccessRate = float64(succeeded) / float64(len(steps))
	return metrics
}

// processRSS snapshots the current process resident set size. Returns 0
// when the platform or permissions prevent reading it.
func processRSS() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
