package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the question pipeline.
type PipelineMetrics struct {
	requestsTotal   *prometheus.CounterVec
	violationsTotal *prometheus.CounterVec
	stageLatency    *prometheus.HistogramVec
	streamedTokens  prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attorney",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total chat requests by classifier verdict and outcome",
		}, []string{"verdict", "outcome"}),
		violationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attorney",
			Subsystem: "enforcement",
			Name:      "violations_total",
			Help:      "Total recorded safety violations by category",
		}, []string{"category"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attorney",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Latency of each pipeline stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		streamedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attorney",
			Subsystem: "pipeline",
			Name:      "streamed_output_tokens_total",
			Help:      "Total output tokens streamed to clients",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.violationsTotal, m.stageLatency, m.streamedTokens)
	return m
}

func (m *PipelineMetrics) ObserveRequest(verdict, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(verdict, outcome).Inc()
}

func (m *PipelineMetrics) ObserveViolation(category string) {
	if m == nil {
		return
	}
	m.violationsTotal.WithLabelValues(category).Inc()
}

func (m *PipelineMetrics) ObserveStageLatency(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *PipelineMetrics) AddStreamedTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.streamedTokens.Add(float64(n))
}
