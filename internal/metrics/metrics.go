// Package metrics exposes training progress as Prometheus metrics.
//
// Collectors live on their own registry so several runs (or tests) in one
// process never collide. Serve publishes the registry over HTTP.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/born-ml/playlistnet/internal/model"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry
	arch     string

	steps        *prometheus.CounterVec
	loss         *prometheus.GaugeVec
	perplexity   *prometheus.GaugeVec
	learningRate prometheus.Gauge
	gradNorm     prometheus.Gauge
	reward       prometheus.Gauge
	avgLength    prometheus.Gauge
	stepDuration *prometheus.HistogramVec
	checkpoints  prometheus.Counter
}

// New registers the collectors for one architecture on a fresh registry.
func New(arch model.Arch) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"arch": string(arch)}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		arch:     string(arch),

		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "playlistnet_steps_total",
			Help:        "Total number of model steps run",
			ConstLabels: labels,
		}, []string{"mode"}),

		loss: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "playlistnet_loss",
			Help:        "Loss of the most recent step",
			ConstLabels: labels,
		}, []string{"mode"}),

		perplexity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "playlistnet_perplexity",
			Help:        "Perplexity over the most recent stats window",
			ConstLabels: labels,
		}, []string{"mode"}),

		learningRate: f.NewGauge(prometheus.GaugeOpts{
			Name:        "playlistnet_learning_rate",
			Help:        "Learning rate used by the most recent update",
			ConstLabels: labels,
		}),

		gradNorm: f.NewGauge(prometheus.GaugeOpts{
			Name:        "playlistnet_gradient_norm",
			Help:        "Global gradient norm before clipping",
			ConstLabels: labels,
		}),

		reward: f.NewGauge(prometheus.GaugeOpts{
			Name:        "playlistnet_reward",
			Help:        "Mean reward of the most recent RL batch",
			ConstLabels: labels,
		}),

		avgLength: f.NewGauge(prometheus.GaugeOpts{
			Name:        "playlistnet_sampled_length",
			Help:        "Mean valid length of the most recent RL samples",
			ConstLabels: labels,
		}),

		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "playlistnet_step_duration_seconds",
			Help:        "Duration of one model step in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
			ConstLabels: labels,
		}, []string{"mode"}),

		checkpoints: f.NewCounter(prometheus.CounterOpts{
			Name:        "playlistnet_checkpoints_total",
			Help:        "Total number of checkpoints written",
			ConstLabels: labels,
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStep records one step of mode.
func (m *Metrics) ObserveStep(mode model.Mode, res model.StepResult, took time.Duration) {
	label := mode.String()
	m.steps.WithLabelValues(label).Inc()
	m.loss.WithLabelValues(label).Set(float64(res.Loss))
	m.stepDuration.WithLabelValues(label).Observe(took.Seconds())
	if mode.Training() {
		m.learningRate.Set(float64(res.LearningRate))
		m.gradNorm.Set(float64(res.GradNorm))
	}
}

// ObservePerplexity records the perplexity of a stats window.
func (m *Metrics) ObservePerplexity(mode model.Mode, ppl float64) {
	m.perplexity.WithLabelValues(mode.String()).Set(ppl)
}

// ObserveReward records the mean reward and sampled length of an RL batch.
func (m *Metrics) ObserveReward(mean, avgLength float64) {
	m.reward.Set(mean)
	m.avgLength.Set(avgLength)
}

// CheckpointSaved counts a written checkpoint.
func (m *Metrics) CheckpointSaved() {
	m.checkpoints.Inc()
}
