package recalc

import "github.com/prometheus/client_golang/prometheus"

// Async edge outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
)

// Metrics exposes Prometheus collectors for recomputation graphs.
type Metrics struct {
	rules    *prometheus.CounterVec
	async    *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewMetrics registers the recalc metrics against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	rules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicing_recalc_rules_total",
		Help: "Rule evaluations partitioned by rule name.",
	}, []string{"rule"})
	async := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicing_recalc_async_total",
		Help: "Completed asynchronous edges partitioned by edge and outcome.",
	}, []string{"edge", "outcome"})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invoicing_recalc_inflight",
		Help: "Asynchronous edges currently awaiting a collaborator.",
	})
	if registerer != nil {
		registerer.MustRegister(rules, async, inflight)
	}
	return &Metrics{rules: rules, async: async, inflight: inflight}
}

// Async records the outcome of an asynchronous edge.
func (m *Metrics) Async(edge, outcome string) {
	if m == nil {
		return
	}
	m.async.WithLabelValues(edge, outcome).Inc()
}

func (m *Metrics) ruleRun(rule string) {
	if m == nil {
		return
	}
	m.rules.WithLabelValues(rule).Inc()
}

func (m *Metrics) inflightInc() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) inflightDec() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
