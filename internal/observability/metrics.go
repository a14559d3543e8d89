package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubeadapt/kubeadapt-autoscaler/internal/controller"
)

// Metrics holds all Prometheus metrics for controller self-monitoring.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Cycle metrics
	CycleDuration   *prometheus.HistogramVec
	CyclesTotal     *prometheus.CounterVec
	DecisionsTotal  *prometheus.CounterVec
	CurrentReplicas *prometheus.GaugeVec
	DesiredReplicas *prometheus.GaugeVec
	FinalReplicas   *prometheus.GaugeVec

	// Failure metrics
	MetricFailuresTotal *prometheus.CounterVec
	ApplyFailuresTotal  *prometheus.CounterVec

	// Controller state
	ControllerPhase  *prometheus.GaugeVec
	ManagedWorkloads prometheus.Gauge
	ConfigReloads    *prometheus.CounterVec

	// Informer metrics
	InformerEventsTotal *prometheus.CounterVec
	StoreItems          *prometheus.GaugeVec

	// Metric source metrics
	SourceRequestDuration *prometheus.HistogramVec
	SourceRequestsTotal   *prometheus.CounterVec

	// Audit transport metrics
	AuditEventsSent      prometheus.Counter
	AuditEventsDropped   prometheus.Counter
	AuditRetries         prometheus.Counter
	AuditBatchBytes      *prometheus.HistogramVec
	AuditSendDuration    prometheus.Histogram
	AuditBufferedEvents  prometheus.Gauge
	AuditCompressionRate prometheus.Gauge

	// Process
	MemoryUsageRatio prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all Prometheus metrics
// registered on a custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	sizeBuckets := prometheus.ExponentialBuckets(256, 4, 8)
	replicaLabels := []string{"workload"}

	m := &Metrics{
		Registry: reg,

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoscaler_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"workload", "result"}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_cycles_total",
			Help: "Total number of reconciliation cycles by result.",
		}, []string{"workload", "result"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_decisions_total",
			Help: "Total number of scaling decisions by direction.",
		}, []string{"workload", "direction"}),
		CurrentReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_current_replicas",
			Help: "Replica count observed at the start of the last cycle.",
		}, replicaLabels),
		DesiredReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_desired_replicas",
			Help: "Resolved candidate replica count of the last cycle.",
		}, replicaLabels),
		FinalReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_final_replicas",
			Help: "Policy-limited replica count decided by the last cycle.",
		}, replicaLabels),

		MetricFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_metric_failures_total",
			Help: "Total number of metrics that could not be evaluated.",
		}, []string{"workload", "metric"}),
		ApplyFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_apply_failures_total",
			Help: "Total number of rejected replica changes.",
		}, replicaLabels),

		ControllerPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_controller_phase",
			Help: "Current reconciler phase (1 = active, 0 = inactive).",
		}, []string{"workload", "phase"}),
		ManagedWorkloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscaler_managed_workloads",
			Help: "Number of workloads with a running reconciler.",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_config_reloads_total",
			Help: "Total number of workload declaration reloads.",
		}, []string{"result"}),

		InformerEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_informer_events_total",
			Help: "Total number of informer events received.",
		}, []string{"resource", "event"}),
		StoreItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_store_items",
			Help: "Current number of items in the store.",
		}, []string{"resource"}),

		SourceRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoscaler_source_request_duration_seconds",
			Help:    "Duration of metric source requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		SourceRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_source_requests_total",
			Help: "Total number of metric source requests by status.",
		}, []string{"source", "status"}),

		AuditEventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscaler_audit_events_sent_total",
			Help: "Total number of audit events delivered.",
		}),
		AuditEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscaler_audit_events_dropped_total",
			Help: "Total number of audit events dropped (buffer full or delivery failed).",
		}),
		AuditRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscaler_audit_retries_total",
			Help: "Total number of audit upload retry attempts.",
		}),
		AuditBatchBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoscaler_audit_batch_bytes",
			Help:    "Size of audit batches in bytes.",
			Buckets: sizeBuckets,
		}, []string{"type"}),
		AuditSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoscaler_audit_send_duration_seconds",
			Help:    "Duration of audit upload requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		AuditBufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscaler_audit_buffered_events",
			Help: "Current number of audit events waiting for upload.",
		}),
		AuditCompressionRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscaler_audit_compression_ratio",
			Help: "Compression ratio of the last audit batch (compressed/original).",
		}),

		MemoryUsageRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoscaler_memory_limit_usage_ratio",
			Help: "Process memory in use divided by GOMEMLIMIT.",
		}),
	}

	reg.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.DecisionsTotal,
		m.CurrentReplicas,
		m.DesiredReplicas,
		m.FinalReplicas,
		m.MetricFailuresTotal,
		m.ApplyFailuresTotal,
		m.ControllerPhase,
		m.ManagedWorkloads,
		m.ConfigReloads,
		m.InformerEventsTotal,
		m.StoreItems,
		m.SourceRequestDuration,
		m.SourceRequestsTotal,
		m.AuditEventsSent,
		m.AuditEventsDropped,
		m.AuditRetries,
		m.AuditBatchBytes,
		m.AuditSendDuration,
		m.AuditBufferedEvents,
		m.AuditCompressionRate,
		m.MemoryUsageRatio,
	)

	return m
}

// SetPhase marks phase as the active phase of workload. It matches
// controller.PhaseObserver.
func (m *Metrics) SetPhase(workload string, phase controller.Phase) {
	for _, p := range controller.Phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.ControllerPhase.WithLabelValues(workload, string(p)).Set(v)
	}
}

// ForgetWorkload drops every per-workload series of a removed workload.
func (m *Metrics) ForgetWorkload(workload string) {
	labels := prometheus.Labels{"workload": workload}
	m.CycleDuration.DeletePartialMatch(labels)
	m.CyclesTotal.DeletePartialMatch(labels)
	m.DecisionsTotal.DeletePartialMatch(labels)
	m.CurrentReplicas.DeletePartialMatch(labels)
	m.DesiredReplicas.DeletePartialMatch(labels)
	m.FinalReplicas.DeletePartialMatch(labels)
	m.MetricFailuresTotal.DeletePartialMatch(labels)
	m.ApplyFailuresTotal.DeletePartialMatch(labels)
	m.ControllerPhase.DeletePartialMatch(labels)
}
