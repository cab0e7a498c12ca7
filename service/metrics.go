package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"manuscript-ingest/constant"
)

type Metrics struct {
	uploads         *prometheus.CounterVec
	transcriptions  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	uploadBytes     prometheus.Histogram
	gatewayDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_ingest_uploads_total",
			Help: "Podcast uploads by result.",
		}, []string{"result"}),
		transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_ingest_transcriptions_total",
			Help: "Transcription runs by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podcast_ingest_state_transitions_total",
			Help: "Podcast import state transitions by target state.",
		}, []string{"state"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podcast_ingest_upload_bytes",
			Help:    "Size of accepted podcast uploads.",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 8),
		}),
		gatewayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podcast_ingest_gateway_duration_seconds",
			Help:    "Latency of transcription gateway calls.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(m.uploads, m.transcriptions, m.transitions, m.uploadBytes, m.gatewayDuration)
	return m
}

func (m *Metrics) upload(result string, size int64) {
	m.uploads.WithLabelValues(result).Inc()
	if result == "accepted" {
		m.uploadBytes.Observe(float64(size))
	}
}

func (m *Metrics) transcription(result string) {
	m.transcriptions.WithLabelValues(result).Inc()
}

func (m *Metrics) gatewayCall(seconds float64) {
	m.gatewayDuration.Observe(seconds)
}

func (m *Metrics) transition(state constant.ImportState) {
	m.transitions.WithLabelValues(state.String()).Inc()
}
