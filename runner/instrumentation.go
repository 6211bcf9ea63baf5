package runner

import (
	"github.com/perfgo/perfsuite/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// instrumentation exports runner activity as Prometheus metrics
type instrumentation struct {
	registry *prometheus.Registry

	testsTotal   *prometheus.CounterVec
	retries      *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	testDuration *prometheus.HistogramVec
	runActive    prometheus.Gauge
}

func newInstrumentation() *instrumentation {
	registry := prometheus.NewRegistry()

	return &instrumentation{
		registry: registry,

		testsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfsuite_tests_total",
				Help: "Total number of tests executed, by final outcome",
			},
			[]string{"suite", "outcome"},
		),

		retries: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfsuite_test_retries_total",
				Help: "Total number of test retries",
			},
			[]string{"suite"},
		),

		timeouts: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfsuite_test_timeouts_total",
				Help: "Total number of timed out test attempts",
			},
			[]string{"suite"},
		),

		testDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perfsuite_test_duration_seconds",
				Help:    "Test duration in seconds including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"suite"},
		),

		runActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "perfsuite_run_active",
				Help: "1 while a test run is active",
			},
		),
	}
}

func (i *instrumentation) recordOutcome(o model.TestOutcome) {
	i.testsTotal.WithLabelValues(o.Suite, string(o.Kind)).Inc()
	i.testDuration.WithLabelValues(o.Suite).Observe(o.Duration.Seconds())
}

func (i *instrumentation) recordRetry(suite string) {
	i.retries.WithLabelValues(suite).Inc()
}

func (i *instrumentation) recordTimeout(suite string) {
	i.timeouts.WithLabelValues(suite).Inc()
}

func (i *instrumentation) setActive(active bool) {
	if active {
		i.runActive.Set(1)
		return
	}
	i.runActive.Set(0)
}

