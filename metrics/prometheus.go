// Package metrics exposes pipeline counters and latencies to Prometheus.
// All methods are safe on a nil *Metrics so components can run unobserved.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels.
const (
	StageNormalize  = "normalize"
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
	StageEmotion    = "emotion"
)

type Metrics struct {
	// Turn metrics
	Turns           *prometheus.CounterVec
	Resets          prometheus.Counter
	TranscriptTurns prometheus.Gauge

	// Stage metrics
	StageDuration *prometheus.HistogramVec
	Degraded      *prometheus.CounterVec

	// Synthesis artifacts
	ArtifactsWritten prometheus.Counter
	ArtifactsPruned  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "psychai_turns_total",
			Help: "Pipeline invocations by outcome",
		}, []string{"outcome"}),
		Resets: f.NewCounter(prometheus.CounterOpts{
			Name: "psychai_resets_total",
			Help: "Conversation resets",
		}),
		TranscriptTurns: f.NewGauge(prometheus.GaugeOpts{
			Name: "psychai_transcript_turns",
			Help: "Turns currently held in the conversation transcript",
		}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psychai_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		Degraded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "psychai_stage_degraded_total",
			Help: "Stage results replaced by a fallback or empty result",
		}, []string{"stage", "reason"}),

		ArtifactsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "psychai_audio_artifacts_written_total",
			Help: "Synthesized audio files written",
		}),
		ArtifactsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "psychai_audio_artifacts_pruned_total",
			Help: "Synthesized audio files removed by retention",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "psychai_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psychai_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) IncTurn(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReset() {
	if m == nil {
		return
	}
	m.Resets.Inc()
}

func (m *Metrics) SetTranscriptLen(n int) {
	if m == nil {
		return
	}
	m.TranscriptTurns.Set(float64(n))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) IncDegraded(stage, reason string) {
	if m == nil {
		return
	}
	m.Degraded.WithLabelValues(stage, reason).Inc()
}

func (m *Metrics) ArtifactWritten() {
	if m == nil {
		return
	}
	m.ArtifactsWritten.Inc()
}

func (m *Metrics) ArtifactsRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArtifactsPruned.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
