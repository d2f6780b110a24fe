// Package metrics exposes the Prometheus gauges and histograms the
// /metrics endpoint serves, grounded on `pkg/observability/metrics.go` in
// the teacher repo. Recording is a set of package-level collectors other
// layers call into directly — run counts by status, the tool-use loop's
// iteration count, and a blackboard resource-signal gauge per run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_runs_total",
		Help: "Completed runs by kind and terminal status.",
	}, []string{"kind", "status"})

	ToolLoopIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agora_tool_loop_iterations",
		Help:    "Number of tool-use loop iterations per gateway call.",
		Buckets: prometheus.LinearBuckets(1, 1, 15),
	})

	BlackboardEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agora_blackboard_entries",
		Help: "Blackboard entry count at run completion, by protocol.",
	}, []string{"protocol"})

	BlackboardTokens = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agora_blackboard_tokens_total",
		Help: "Total input+output tokens consumed, by protocol and direction.",
	}, []string{"protocol", "direction"})
)

func init() {
	prometheus.MustRegister(RunsTotal, ToolLoopIterations, BlackboardEntries, BlackboardTokens)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordResourceSignals publishes one protocol run's blackboard resource
// signals as gauges, keyed by protocol.
func RecordResourceSignals(protocolKey string, entryCount, inputTokens, outputTokens int) {
	BlackboardEntries.WithLabelValues(protocolKey).Set(float64(entryCount))
	BlackboardTokens.WithLabelValues(protocolKey, "input").Set(float64(inputTokens))
	BlackboardTokens.WithLabelValues(protocolKey, "output").Set(float64(outputTokens))
}
