package middleware

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsMiddleware records dispatch counts and pipeline latency per action label.
type MetricsMiddleware[S, A any] struct {
	Dispatched *prometheus.CounterVec
	Duration   *prometheus.HistogramVec

	label func(A) string
}

// Metrics registers its collectors on reg under namespace. label names an action
// for the "action" label and defaults to its Go type.
func Metrics[S, A any](reg prometheus.Registerer, namespace string, label func(A) string) (*MetricsMiddleware[S, A], error) {
	if label == nil {
		label = func(action A) string { return fmt.Sprintf("%T", action) }
	}
	m := &MetricsMiddleware[S, A]{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions that entered the middleware pipeline",
		}, []string{"action"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time spent in the remaining pipeline and reducer per action",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"action"}),
		label: label,
	}
	for _, c := range []prometheus.Collector{m.Dispatched, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *MetricsMiddleware[S, A]) Name() string { return "metrics" }

func (m *MetricsMiddleware[S, A]) Handle(action A, _ S, next Next[A]) {
	label := m.label(action)
	m.Dispatched.WithLabelValues(label).Inc()

	start := time.Now()
	next(action)
	m.Duration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
