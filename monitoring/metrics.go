package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sarchlab/cachesim/mem/cache"
	"github.com/sarchlab/cachesim/sim/hooking"
)

type hitRatioReporter interface {
	Name() string
	HitRatio() (float64, error)
}

// Metrics is a hook that exports cache activity as Prometheus metrics. Each
// Metrics owns its registry, so several can live in one process.
type Metrics struct {
	registry  *prometheus.Registry
	accesses  *prometheus.CounterVec
	evictions *prometheus.CounterVec
	hitRatio  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accesses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cachesim",
				Name:      "accesses_total",
				Help:      "Number of cache accesses by mode and outcome.",
			},
			[]string{"cache", "mode", "outcome"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cachesim",
				Name:      "evictions_total",
				Help:      "Number of valid blocks displaced by misses.",
			},
			[]string{"cache"},
		),
		hitRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cachesim",
				Name:      "hit_ratio_percent",
				Help:      "Percentage of accesses that hit.",
			},
			[]string{"cache"},
		),
	}

	m.registry.MustRegister(m.accesses, m.evictions, m.hitRatio)

	return m
}

// Registry returns the registry that holds the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Func updates the metrics on every HookPosAccess.
func (m *Metrics) Func(ctx hooking.HookCtx) {
	if ctx.Pos != cache.HookPosAccess {
		return
	}

	result, ok := ctx.Item.(cache.AccessResult)
	if !ok {
		return
	}

	name := ""
	reporter, isReporter := ctx.Domain.(hitRatioReporter)
	if isReporter {
		name = reporter.Name()
	}

	m.accesses.
		WithLabelValues(name, result.Mode.String(), result.Outcome.String()).
		Inc()

	if result.Evicted {
		m.evictions.WithLabelValues(name).Inc()
	}

	if !isReporter {
		return
	}

	ratio, err := reporter.HitRatio()
	if err == nil {
		m.hitRatio.WithLabelValues(name).Set(ratio)
	}
}
