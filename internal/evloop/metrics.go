package evloop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "botmerger"

const (
	processedEventsMetricName = "processed_github_events_total"
	ignoredEventsMetricName   = "ignored_github_events_total"
)

const reasonLabel = "reason"

type metricCollector struct {
	processedEvents prometheus.Counter
	ignoredEvents   *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		processedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      processedEventsMetricName,
				Help:      "count of processed github webhook events",
			},
		),
		ignoredEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      ignoredEventsMetricName,
				Help:      "count of github webhook events that did not trigger a pipeline run",
			},
			[]string{reasonLabel},
		),
	}
}

func (m *metricCollector) ProcessedEventsInc() {
	m.processedEvents.Inc()
}

func (m *metricCollector) IgnoredEventsInc(reason string) {
	m.ignoredEvents.WithLabelValues(reason).Inc()
}
