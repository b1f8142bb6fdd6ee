package observability

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type vaultMetrics struct {
	price      prometheus.Gauge
	backing    prometheus.Gauge
	supply     prometheus.Gauge
	collateral prometheus.Gauge
	borrowed   prometheus.Gauge
	operations *prometheus.CounterVec
	swept      *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *vaultMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "floorbank",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "floorbank",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "floorbank",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "floorbank",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// Vault returns the lazily-initialised registry tracking engine aggregates.
func Vault() *vaultMetrics {
	vaultMetricsOnce.Do(func() {
		gauge := func(name, help string) prometheus.Gauge {
			return prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "floorbank",
				Subsystem: "vault",
				Name:      name,
				Help:      help,
			})
		}
		vaultRegistry = &vaultMetrics{
			price:      gauge("price", "Receipt price in reserve units after the last successful operation."),
			backing:    gauge("backing", "Reserve held in custody plus outstanding debt, in whole units."),
			supply:     gauge("supply", "Outstanding receipt supply, in whole units."),
			collateral: gauge("collateral", "Receipt collateral locked by live loans, in whole units."),
			borrowed:   gauge("borrowed", "Reserve debt outstanding across live loans, in whole units."),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "floorbank",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Engine operations segmented by name and outcome.",
			}, []string{"operation", "outcome"}),
			swept: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "floorbank",
				Subsystem: "vault",
				Name:      "swept_total",
				Help:      "Collateral burned and debt retired by maturity sweeps, in whole units.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			vaultRegistry.price,
			vaultRegistry.backing,
			vaultRegistry.supply,
			vaultRegistry.collateral,
			vaultRegistry.borrowed,
			vaultRegistry.operations,
			vaultRegistry.swept,
		)
	})
	return vaultRegistry
}

// RecordOperation counts an engine call. A nil error counts as success.
func (m *vaultMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// SetAggregates publishes the post-operation aggregates.
func (m *vaultMetrics) SetAggregates(price, backing, supply, collateral, borrowed *uint256.Int) {
	if m == nil {
		return
	}
	m.price.Set(WholeUnits(price))
	m.backing.Set(WholeUnits(backing))
	m.supply.Set(WholeUnits(supply))
	m.collateral.Set(WholeUnits(collateral))
	m.borrowed.Set(WholeUnits(borrowed))
}

// RecordSweep adds the amounts retired by a sweep.
func (m *vaultMetrics) RecordSweep(collateral, borrowed *uint256.Int) {
	if m == nil {
		return
	}
	m.swept.WithLabelValues("collateral").Add(WholeUnits(collateral))
	m.swept.WithLabelValues("borrowed").Add(WholeUnits(borrowed))
}

var weiPerUnit = new(big.Float).SetInt64(1_000_000_000_000_000_000)

// WholeUnits converts an 18-decimal amount into a float for gauges.
func WholeUnits(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := new(big.Float).Quo(f, weiPerUnit).Float64()
	return out
}
