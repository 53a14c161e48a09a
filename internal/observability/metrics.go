package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting run-pipeline
// metrics. Built on Prometheus; registered once at process startup and
// served from the admin HTTP surface's /metrics endpoint.
type Metrics struct {
	// RunCounter counts completed runs by exit status.
	// Labels: status (ok|nonzero_exit|spawn_failed|aborted)
	RunCounter *prometheus.CounterVec

	// RunDuration measures end-to-end run duration in seconds, from
	// PRE_SEARCH to EMIT_END.
	RunDuration *prometheus.HistogramVec

	// GatekeeperDecisions counts gatekeeper evaluations by whether the
	// run's output was written back as a candidate.
	// Labels: write_candidate (true|false)
	GatekeeperDecisions *prometheus.CounterVec

	// PolicyBlocks counts tool invocations denied by the tool policy
	// provider, by tool name.
	PolicyBlocks *prometheus.CounterVec

	// TeeDropped counts ring-buffer tee lines dropped under backpressure,
	// by stream (stdout|stderr).
	TeeDropped *prometheus.CounterVec

	// ExecutorLayerDuration measures one layer's wall-clock time in the
	// layered task executor.
	ExecutorLayerDuration *prometheus.HistogramVec

	// ExecutorTaskResults counts individual task outcomes within a layer.
	// Labels: status (ok|failed|timeout)
	ExecutorTaskResults *prometheus.CounterVec

	// MemoryClientRequests counts calls to the memory collaborator by
	// operation and outcome.
	MemoryClientRequests *prometheus.CounterVec

	// CandidatesExtracted counts heuristically-extracted candidate drafts.
	CandidatesExtracted prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics against the
// default registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memexd_runs_total",
				Help: "Total number of completed runs by outcome status",
			},
			[]string{"status"},
		),

		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memexd_run_duration_seconds",
				Help:    "End-to-end run duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"backend"},
		),

		GatekeeperDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memexd_gatekeeper_decisions_total",
				Help: "Gatekeeper evaluations by candidate write-back decision",
			},
			[]string{"write_candidate"},
		),

		PolicyBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memexd_policy_blocks_total",
				Help: "Tool invocations denied by the tool policy provider",
			},
			[]string{"tool"},
		),

		TeeDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memexd_tee_dropped_lines_total",
				Help: "Ring buffer tee lines dropped under backpressure",
			},
			[]string{"stream"},
		),

		ExecutorLayerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memexd_executor_layer_duration_seconds",
				Help:    "Duration of one layered-executor layer",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"layer_index"},
		),

		ExecutorTaskResults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memexd_executor_task_results_total",
				Help: "Layered executor task outcomes by status",
			},
			[]string{"status"},
		),

		MemoryClientRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memexd_memory_client_requests_total",
				Help: "Calls to the memory collaborator by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		CandidatesExtracted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "memexd_candidates_extracted_total",
				Help: "Heuristically-extracted candidate drafts produced by the run pipeline",
			},
		),
	}
}

// RecordRun increments the run counter and duration histogram.
func (m *Metrics) RecordRun(backend, status string, durationSeconds float64) {
	m.RunCounter.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordGatekeeperDecision increments the gatekeeper decision counter.
func (m *Metrics) RecordGatekeeperDecision(writeCandidate bool) {
	m.GatekeeperDecisions.WithLabelValues(boolLabel(writeCandidate)).Inc()
}

// RecordPolicyBlock increments the policy-block counter for tool.
func (m *Metrics) RecordPolicyBlock(tool string) {
	m.PolicyBlocks.WithLabelValues(tool).Inc()
}

// RecordTeeDrop increments the tee-drop counter for stream.
func (m *Metrics) RecordTeeDrop(stream string, n int) {
	m.TeeDropped.WithLabelValues(stream).Add(float64(n))
}

// RecordExecutorLayer records one layer's duration and task outcomes.
func (m *Metrics) RecordExecutorLayer(layerIndex string, durationSeconds float64) {
	m.ExecutorLayerDuration.WithLabelValues(layerIndex).Observe(durationSeconds)
}

// RecordExecutorTaskResult increments the task-result counter by status.
func (m *Metrics) RecordExecutorTaskResult(status string) {
	m.ExecutorTaskResults.WithLabelValues(status).Inc()
}

// RecordMemoryClientRequest increments the memory-client request counter.
func (m *Metrics) RecordMemoryClientRequest(operation, outcome string) {
	m.MemoryClientRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordCandidateExtracted increments the candidates-extracted counter.
func (m *Metrics) RecordCandidateExtracted() {
	m.CandidatesExtracted.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
