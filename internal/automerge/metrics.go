package automerge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/botmerger/internal/logfields"
)

const metricNamespace = "botmerger"

const (
	runsMetricName        = "pipeline_runs_total"
	runDurationMetricName = "pipeline_run_duration_seconds"
)

const statusLabel = "status"

type metricCollector struct {
	logger      *zap.Logger
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of finished pipeline runs by terminal status",
			},
			[]string{statusLabel},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      runDurationMetricName,
				Help:      "duration of pipeline runs",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}
}

func (m *metricCollector) RunFinished(status Status, duration time.Duration) {
	m.runDuration.Observe(duration.Seconds())

	cnt, err := m.runs.GetMetricWith(prometheus.Labels{statusLabel: status.String()})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", runsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}
