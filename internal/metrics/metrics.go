package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	recordsSaved    *prometheus.CounterVec
	annotations     *prometheus.CounterVec
	followUpAnswers *prometheus.CounterVec
	sessions        *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		recordsSaved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medtrak_records_saved_total",
				Help: "Total number of records saved by kind",
			},
			[]string{"kind"},
		),
		annotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medtrak_annotations_total",
				Help: "Total number of annotation calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		followUpAnswers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medtrak_followup_answers_total",
				Help: "Total number of follow-up answers by persistence outcome",
			},
			[]string{"outcome"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medtrak_dialogue_sessions_total",
				Help: "Dialogue session lifecycle events",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(
		m.recordsSaved,
		m.annotations,
		m.followUpAnswers,
		m.sessions,
	)
	return m
}

func (m *Metrics) RecordSaved(kind string) {
	if m != nil {
		m.recordsSaved.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Annotation(operation, outcome string) {
	if m != nil {
		m.annotations.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) FollowUpAnswer(outcome string) {
	if m != nil {
		m.followUpAnswers.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Session(event string) {
	if m != nil {
		m.sessions.WithLabelValues(event).Inc()
	}
}
