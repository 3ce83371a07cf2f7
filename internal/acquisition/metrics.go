package acquisition

import (
	"github.com/hbomb79/Harvest/internal/platform"
	"github.com/hbomb79/Harvest/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "harvest"

// Metrics exposes the acquisition pipeline to prometheus.
type Metrics struct {
	acquisitions     *prometheus.CounterVec
	strategyFailures *prometheus.CounterVec
	inFlight         prometheus.Gauge
	duration         *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		acquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "acquisitions_total",
			Help:      "Acquisition tasks which reached a terminal status.",
		}, []string{"platform", "status"}),
		strategyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "strategy_failures_total",
			Help:      "Individual strategy attempts which failed and fell through to the next strategy.",
		}, []string{"platform", "strategy"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_in_flight",
			Help:      "Acquisition tasks currently being processed.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Time taken for an acquisition task to reach a terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"platform"}),
	}
}

// StrategyFailureHook returns a hook suitable for
// platform.WithStrategyFailureHook which counts failed strategies.
func (metrics *Metrics) StrategyFailureHook() platform.StrategyFailureHook {
	return func(p platform.Platform, strategy string, _ error) {
		metrics.strategyFailures.WithLabelValues(string(p), strategy).Inc()
	}
}

func (metrics *Metrics) observeTerminal(t task.Task, seconds float64) {
	metrics.acquisitions.WithLabelValues(t.Platform, string(t.Status)).Inc()
	metrics.duration.WithLabelValues(t.Platform).Observe(seconds)
}
