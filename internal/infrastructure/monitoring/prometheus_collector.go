package monitoring

import (
	"confline/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder.
type PrometheusCollector struct {
	networkQuality  *prometheus.GaugeVec
	constraintTier  prometheus.Gauge
	constraintApply *prometheus.CounterVec
	audioLevel      prometheus.Gauge
	participants    prometheus.Gauge
	conferenceEvent *prometheus.CounterVec

	directoryDuration *prometheus.HistogramVec
	circuitState      *prometheus.GaugeVec
}

// NewPrometheusCollector registers every metric on reg. A nil reg means the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		networkQuality: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "confline_network_quality",
			Help: "1 for the current network class, 0 for the others",
		}, []string{"quality"}),

		constraintTier: factory.NewGauge(prometheus.GaugeOpts{
			Name: "confline_constraint_tier",
			Help: "Quality tier currently applied to the capture stream (1-4)",
		}),

		constraintApply: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "confline_constraint_apply_total",
			Help: "Constraint applications by result",
		}, []string{"result"}),

		audioLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "confline_audio_level",
			Help: "Latest calibration audio level (0-100)",
		}),

		participants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "confline_participants",
			Help: "Live participant count of the current call",
		}),

		conferenceEvent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "confline_conference_events_total",
			Help: "Conference lifecycle events by type",
		}, []string{"type"}),

		directoryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confline_directory_request_duration_seconds",
			Help:    "Directory store request latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"action", "status"}),

		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "confline_circuit_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"dependency"}),
	}
}

func (p *PrometheusCollector) SetNetworkQuality(q domain.NetworkQuality) {
	for _, class := range []domain.NetworkQuality{domain.NetworkHigh, domain.NetworkMedium, domain.NetworkLow} {
		v := 0.0
		if class == q {
			v = 1
		}
		p.networkQuality.WithLabelValues(string(class)).Set(v)
	}
}

func (p *PrometheusCollector) SetConstraintTier(t domain.QualityTier) {
	p.constraintTier.Set(float64(t))
}

func (p *PrometheusCollector) IncConstraintApply(result string) {
	p.constraintApply.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) SetAudioLevel(level float64) {
	p.audioLevel.Set(level)
}

func (p *PrometheusCollector) SetParticipants(n int) {
	p.participants.Set(float64(n))
}

func (p *PrometheusCollector) IncConferenceEvent(t domain.EventType) {
	p.conferenceEvent.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) ObserveDirectoryRequest(action, status string, seconds float64) {
	p.directoryDuration.WithLabelValues(action, status).Observe(seconds)
}

func (p *PrometheusCollector) SetCircuitState(dependency string, state int) {
	p.circuitState.WithLabelValues(dependency).Set(float64(state))
}
