package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcusched/internal/sched"
)

// Metrics holds the dispatcher and firmware collectors.
type Metrics struct {
	Dispatches     *prometheus.CounterVec
	Preemptions    *prometheus.CounterVec
	BlinkPhases    *prometheus.CounterVec
	KeyPresses     *prometheus.CounterVec
	BlinkCounter   prometheus.Gauge
	EmergencyStops prometheus.Counter
	Tick           prometheus.Gauge
	Halted         prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcusched_dispatches_total",
			Help: "Task dispatches by task name.",
		}, []string{"task"}),
		Preemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcusched_preemptions_total",
			Help: "Times a running task was preempted, by task name.",
		}, []string{"task"}),
		BlinkPhases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcusched_blink_phases_total",
			Help: "Blink phases executed.",
		}, []string{"phase"}),
		KeyPresses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mcusched_key_reports_total",
			Help: "Keypad reports by column and row.",
		}, []string{"column", "row"}),
		BlinkCounter: f.NewGauge(prometheus.GaugeOpts{
			Name: "mcusched_blink_counter",
			Help: "Last blink counter carried to phase B.",
		}),
		EmergencyStops: f.NewCounter(prometheus.CounterOpts{
			Name: "mcusched_emergency_stops_total",
			Help: "Emergency stop triggers.",
		}),
		Tick: f.NewGauge(prometheus.GaugeOpts{
			Name: "mcusched_tick",
			Help: "Monotonic tick count of the core.",
		}),
		Halted: f.NewGauge(prometheus.GaugeOpts{
			Name: "mcusched_halted",
			Help: "1 once the core latched into its halt state.",
		}),
	}
}

// Observe updates the dispatcher collectors from a core status event.
func (m *Metrics) Observe(ev sched.StatusEvent) {
	switch ev.Kind {
	case sched.StatusDispatch:
		m.Dispatches.WithLabelValues(ev.Task).Inc()
	case sched.StatusPreempt:
		m.Preemptions.WithLabelValues(ev.Task).Inc()
	case sched.StatusTick:
		m.Tick.Set(float64(ev.Tick))
	case sched.StatusHalt:
		m.Halted.Set(1)
	}
}

// Subscribe feeds the firmware collectors from the sink's event bus. Updates
// arrive asynchronously. The returned function unsubscribes.
func (m *Metrics) Subscribe(s *Sink) func() {
	unsubs := []func(){
		Subscribe(s, func(e BlinkEvent) {
			m.BlinkPhases.WithLabelValues(e.Phase).Inc()
			if e.Phase == "B" {
				m.BlinkCounter.Set(float64(e.Counter))
			}
		}),
		Subscribe(s, func(e KeyEvent) {
			m.KeyPresses.WithLabelValues(strconv.Itoa(e.Column), strconv.Itoa(e.Row)).Inc()
		}),
		Subscribe(s, func(EmergencyEvent) {
			m.EmergencyStops.Inc()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
