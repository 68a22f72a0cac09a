// Package api exposes shell metrics and status over HTTP.
package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts shell activity. It implements shell.Observer.
type Metrics struct {
	statements       *prometheus.CounterVec
	completions      prometheus.Counter
	completionHits   prometheus.Counter
	providerFailures *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swsh_statements_total",
			Help: "Statements executed, by result.",
		}, []string{"result"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swsh_completions_total",
			Help: "Completion requests.",
		}),
		completionHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swsh_completion_cache_hits_total",
			Help: "Completion requests answered from the cache.",
		}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swsh_runcfg_provider_failures_total",
			Help: "Running-config providers that failed to emit, by provider.",
		}, []string{"provider"}),
	}
	reg.MustRegister(m.statements, m.completions, m.completionHits, m.providerFailures)
	return m
}

// StatementDone implements shell.Observer.
func (m *Metrics) StatementDone(result string) {
	m.statements.WithLabelValues(result).Inc()
}

// CompletionDone implements shell.Observer.
func (m *Metrics) CompletionDone(cacheHit bool) {
	m.completions.Inc()
	if cacheHit {
		m.completionHits.Inc()
	}
}

// ProviderFailed implements shell.Observer.
func (m *Metrics) ProviderFailed(provider string) {
	m.providerFailures.WithLabelValues(provider).Inc()
}

// Status is the state read on each scrape.
type Status interface {
	SyntaxVersion() string
	Release() string
	Sessions() int
	AuditRecords() int
}

// statusCollector implements prometheus.Collector, reading Status on each
// scrape.
type statusCollector struct {
	src Status

	info         *prometheus.Desc
	sessions     *prometheus.Desc
	auditRecords *prometheus.Desc
}

func newStatusCollector(src Status) *statusCollector {
	return &statusCollector{
		src: src,
		info: prometheus.NewDesc(
			"swsh_info",
			"Release and loaded syntax version.",
			[]string{"release", "syntax"}, nil,
		),
		sessions: prometheus.NewDesc(
			"swsh_sessions_active",
			"Open shell sessions.",
			nil, nil,
		),
		auditRecords: prometheus.NewDesc(
			"swsh_audit_records",
			"Records held in the audit buffer.",
			nil, nil,
		),
	}
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.info
	ch <- c.sessions
	ch <- c.auditRecords
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, c.src.Release(), c.src.SyntaxVersion())
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(c.src.Sessions()))
	ch <- prometheus.MustNewConstMetric(c.auditRecords, prometheus.GaugeValue, float64(c.src.AuditRecords()))
}
