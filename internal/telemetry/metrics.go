package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics turns events into Prometheus series. Discards are the one
// data-loss path and get their own counter for alerting.
type Metrics struct {
	validations *prometheus.CounterVec
	access      *prometheus.CounterVec
	actions     *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	syncs       *prometheus.CounterVec
	syncSteps   *prometheus.CounterVec
	duplicates  prometheus.Counter
	online      prometheus.Gauge
	syncSeconds prometheus.Histogram
}

// NewMetrics registers the gate series on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_validations_total",
			Help: "Scan verdicts by status and reason",
		}, []string{"status", "reason"}),
		access: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_authorizations_total",
			Help: "Authorization attempts by outcome",
		}, []string{"granted", "reason"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_actions_total",
			Help: "Queued action transitions",
		}, []string{"type", "transition"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_actions_discarded_total",
			Help: "Actions dropped after exhausting retries (data loss)",
		}, []string{"type"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_syncs_total",
			Help: "Sync cycles by outcome",
		}, []string{"outcome"}),
		syncSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_sync_steps_total",
			Help: "Sync steps by name and outcome",
		}, []string{"step", "outcome"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turnstile_duplicate_admissions_total",
			Help: "Validations the authority flagged as cross-device duplicates",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "turnstile_online",
			Help: "1 when the authority is reachable",
		}),
		syncSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turnstile_sync_duration_seconds",
			Help:    "Duration of full sync cycles",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.validations, m.access, m.actions, m.discarded, m.syncs,
		m.syncSteps, m.duplicates, m.online, m.syncSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Emit(e Event) {
	f := e.Fields
	switch e.Kind {
	case ValidationDecided:
		m.validations.WithLabelValues(str(f, "status"), str(f, "reason")).Inc()
	case AccessGranted, AccessDenied:
		m.access.WithLabelValues(fmt.Sprint(e.Kind == AccessGranted), str(f, "reason")).Inc()
	case ActionEnqueued:
		m.actions.WithLabelValues(str(f, "type"), "enqueued").Inc()
	case ActionExecuted:
		m.actions.WithLabelValues(str(f, "type"), "executed").Inc()
	case ActionRetried:
		m.actions.WithLabelValues(str(f, "type"), "retried").Inc()
	case ActionRequeueFailed:
		m.actions.WithLabelValues(str(f, "type"), "requeue_failed").Inc()
	case ActionDiscarded:
		m.actions.WithLabelValues(str(f, "type"), "discarded").Inc()
		m.discarded.WithLabelValues(str(f, "type")).Inc()
	case SyncSkipped:
		m.syncs.WithLabelValues("skipped").Inc()
	case SyncFinished:
		m.syncs.WithLabelValues("finished").Inc()
		if d, ok := f["duration_seconds"].(float64); ok {
			m.syncSeconds.Observe(d)
		}
	case SyncStepCompleted:
		m.syncSteps.WithLabelValues(str(f, "step"), "ok").Inc()
	case SyncStepFailed:
		m.syncSteps.WithLabelValues(str(f, "step"), "failed").Inc()
	case DuplicateAdmissionDetected:
		m.duplicates.Inc()
	case ConnectivityChanged:
		if online, ok := f["online"].(bool); ok && online {
			m.online.Set(1)
		} else {
			m.online.Set(0)
		}
	}
}

func str(f Fields, key string) string {
	if v, ok := f[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}
