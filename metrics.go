package docq

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the compiler's prometheus metrics
type Metrics struct {
	// CompilesTotal counts compilations by status (ok, invalid, error)
	CompilesTotal *prometheus.CounterVec
	// CompileDuration observes compilation latency
	CompileDuration prometheus.Histogram
	// DroppedLookupsTotal counts flat lookups discarded by the silent-drop rule
	DroppedLookupsTotal prometheus.Counter
}

// NewMetrics creates the compiler metrics and registers them with reg.
// A nil registerer creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CompilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docq_compile_total",
				Help: "Total number of query compilations",
			},
			[]string{"status"},
		),
		CompileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docq_compile_duration_seconds",
				Help:    "Duration of query compilations in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		DroppedLookupsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docq_dropped_lookups_total",
				Help: "Total number of flat lookups dropped because their field already held a value",
			},
		),
	}
}

const (
	statusOK      = "ok"
	statusInvalid = "invalid"
	statusError   = "error"
)

func (m *Metrics) recordCompile(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CompilesTotal.WithLabelValues(status).Inc()
	m.CompileDuration.Observe(duration.Seconds())
}

func (m *Metrics) recordDrop() {
	if m == nil {
		return
	}
	m.DroppedLookupsTotal.Inc()
}
