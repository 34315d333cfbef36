package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Metrics holds the prometheus instruments for the rollout core.
type Metrics struct {
	Transitions      *prometheus.CounterVec
	PhaseEvaluations *prometheus.CounterVec
	GateFailures     *prometheus.CounterVec
	BlendDecisions   *prometheus.CounterVec
	Rollbacks        *prometheus.CounterVec
	AgreementRatio   prometheus.Gauge
	OpDuration       *prometheus.HistogramVec
	CandidateWeight  prometheus.Gauge
}

// NewMetrics builds and registers the instrument set. Tests pass a fresh
// registry; main passes prometheus.DefaultRegisterer. A nil registerer
// builds working but unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratroll_transitions_total",
				Help: "Applied rollout state transitions",
			},
			[]string{"from", "to"},
		),
		PhaseEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratroll_phase_evaluations_total",
				Help: "Phase evaluations by resulting status",
			},
			[]string{"phase", "status"},
		),
		GateFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratroll_gate_failures_total",
				Help: "Offline gate and compare check failures by check id",
			},
			[]string{"check"},
		),
		BlendDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratroll_blend_decisions_total",
				Help: "Live signal blending decisions",
			},
			[]string{"mode", "agreement"},
		),
		Rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stratroll_rollbacks_total",
				Help: "Rollbacks and aborts by trigger",
			},
			[]string{"kind", "auto"},
		),
		AgreementRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stratroll_signal_agreement_ratio",
				Help: "Baseline/candidate action agreement ratio (0.0 to 1.0)",
			},
		),
		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stratroll_operation_duration_seconds",
				Help:    "Duration of rollout manager operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"op", "result"},
		),
		CandidateWeight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stratroll_candidate_weight_pct",
				Help: "Share of real traffic currently routed to the candidate",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.Transitions,
			m.PhaseEvaluations,
			m.GateFailures,
			m.BlendDecisions,
			m.Rollbacks,
			m.AgreementRatio,
			m.OpDuration,
			m.CandidateWeight,
		)
	}
	return m
}

// OpTimer times one manager operation.
type OpTimer struct {
	metrics *Metrics
	op      string
	start   time.Time
}

// StartOp begins timing a manager operation.
func (m *Metrics) StartOp(op string) *OpTimer {
	return &OpTimer{metrics: m, op: op, start: time.Now()}
}

// Stop records the operation duration under the given result label.
func (t *OpTimer) Stop(result string) {
	duration := time.Since(t.start)
	t.metrics.OpDuration.WithLabelValues(t.op, result).Observe(duration.Seconds())

	log.Debug().
		Str("op", t.op).
		Str("result", result).
		Dur("duration", duration).
		Msg("rollout operation completed")
}

// RecordBlend counts one blending decision and refreshes the agreement
// ratio gauge from the counters themselves.
func (m *Metrics) RecordBlend(mode string, agreement bool) {
	label := "no"
	if agreement {
		label = "yes"
	}
	m.BlendDecisions.WithLabelValues(mode, label).Inc()
	m.updateAgreementRatio()
}

func (m *Metrics) updateAgreementRatio() {
	var agreed, total float64
	metric := &io_prometheus_client.Metric{}

	for _, mode := range []string{ModeLabelConsensus, ModeLabelWeighted} {
		for _, agreement := range []string{"yes", "no"} {
			counter, err := m.BlendDecisions.GetMetricWithLabelValues(mode, agreement)
			if err != nil {
				continue
			}
			if err := counter.Write(metric); err != nil {
				continue
			}
			v := metric.GetCounter().GetValue()
			total += v
			if agreement == "yes" {
				agreed += v
			}
		}
	}
	if total > 0 {
		m.AgreementRatio.Set(agreed / total)
	}
}

// Mode labels mirrored here so the ratio read-back can enumerate them.
const (
	ModeLabelConsensus = "consenso"
	ModeLabelWeighted  = "ponderado"
)
