package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/nodesync/internal/mutation"
	"github.com/roach88/nodesync/internal/registry"
	"github.com/roach88/nodesync/internal/template"
)

// Metrics are the engine's Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	ticks        prometheus.Counter
	ops          *prometheus.CounterVec
	rootsLive    prometheus.Gauge
	rootsDropped prometheus.Counter
	fatal        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	dirtyScopes  prometheus.Counter
	commands     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Registration panics on duplicates, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodesync",
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Ticks run to completion.",
		}),
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodesync",
				Subsystem: "engine",
				Name:      "ops_applied_total",
				Help:      "Edit-script ops applied, by op.",
			},
			[]string{"op"},
		),
		rootsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nodesync",
			Subsystem: "engine",
			Name:      "roots_live",
			Help:      "Roots in the root table after the last tick.",
		}),
		rootsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodesync",
			Subsystem: "engine",
			Name:      "roots_dropped_total",
			Help:      "Roots absent from a tick's observed set.",
		}),
		fatal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodesync",
				Subsystem: "engine",
				Name:      "fatal_errors_total",
				Help:      "Ticks aborted by a fatal error, by error code.",
			},
			[]string{"code"},
		),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nodesync",
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Tick duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		dirtyScopes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodesync",
			Subsystem: "engine",
			Name:      "dirty_scopes_total",
			Help:      "Scopes marked dirty.",
		}),
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nodesync",
			Subsystem: "engine",
			Name:      "deferred_commands_total",
			Help:      "Deferred commands drained.",
		}),
	}
	reg.MustRegister(m.ticks, m.ops, m.rootsLive, m.rootsDropped,
		m.fatal, m.tickDuration, m.dirtyScopes, m.commands)
	return m
}

func (m *Metrics) recordOp(k mutation.Kind) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(string(k)).Inc()
}

func (m *Metrics) recordTick(r TickReport, live int, d time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.rootsLive.Set(float64(live))
	m.rootsDropped.Add(float64(len(r.Dropped)))
	m.commands.Add(float64(r.Commands))
	for _, rr := range r.Roots {
		m.dirtyScopes.Add(float64(rr.Dirty))
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) recordFatal(err error) {
	if m == nil {
		return
	}
	m.fatal.WithLabelValues(ErrorCode(err)).Inc()
}

// ErrorCode picks the most specific code for a fatal error: the contract
// violation code when there is one, then the runtime error code.
func ErrorCode(err error) string {
	if code := mutation.ViolationCodeOf(err); code != "" {
		return string(code)
	}
	if registry.IsMissingMapping(err) {
		return "MISSING_MAPPING"
	}
	if template.IsMismatch(err) {
		return "TEMPLATE_MISMATCH"
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		if re.Code == ErrCodeTickAborted && re.Err != nil {
			return ErrorCode(re.Err)
		}
		return string(re.Code)
	}
	return "OTHER"
}
