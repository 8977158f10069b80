package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lifecycle engine and the bulk
// ingestion pipeline.
type Metrics struct {
	TransitionsTotal    *prometheus.CounterVec
	RemoteFailuresTotal *prometheus.CounterVec
	ImportRowsTotal     *prometheus.CounterVec
	AuditAppendFailures prometheus.Counter
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "villageops_transitions_total",
			Help: "Lifecycle transitions by entity kind, action, and outcome",
		}, []string{"kind", "action", "outcome"}),
		RemoteFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "villageops_remote_failures_total",
			Help: "Remote invocation failures by error category",
		}, []string{"category"}),
		ImportRowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "villageops_import_rows_total",
			Help: "Bulk-import rows by outcome",
		}, []string{"outcome"}),
		AuditAppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "villageops_audit_append_failures_total",
			Help: "Audit trail appends that failed and aborted their transition",
		}),
	}
}

// ObserveTransition records the outcome of one transition attempt.
func (m *Metrics) ObserveTransition(kind, action, outcome string) {
	m.TransitionsTotal.WithLabelValues(kind, action, outcome).Inc()
}

// ObserveRemoteFailure records a classified remote invocation failure.
func (m *Metrics) ObserveRemoteFailure(category string) {
	m.RemoteFailuresTotal.WithLabelValues(category).Inc()
}

// ObserveImportRow records one processed bulk-import row.
func (m *Metrics) ObserveImportRow(outcome string) {
	m.ImportRowsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAuditAppendFailure records a failed audit append.
func (m *Metrics) ObserveAuditAppendFailure() {
	m.AuditAppendFailures.Inc()
}
