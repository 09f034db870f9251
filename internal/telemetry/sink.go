// Package telemetry is the firmware's one-way diagnostic channel. Nothing
// written here feeds back into scheduling.
package telemetry

import (
	"fmt"
	"io"

	"github.com/kelindar/event"
	"github.com/rs/zerolog"
)

// NewLogger builds the console or JSON logger used by the sink and trace.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	switch format {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Sink emits the firmware's fixed diagnostic lines and publishes them on an
// event bus for consumers such as Metrics.
type Sink struct {
	log zerolog.Logger
	bus *event.Dispatcher
}

// NewSink creates a sink.
func NewSink(log zerolog.Logger) *Sink {
	return &Sink{
		log: log,
		bus: event.NewDispatcher(),
	}
}

// Subscribe registers handler for one event type of the sink's bus.
// Handlers run asynchronously. Returns an unsubscribe function.
// Usage: unsub := telemetry.Subscribe(sink, func(e telemetry.KeyEvent) { ... })
func Subscribe[T event.Event](s *Sink, handler func(T)) func() {
	return event.Subscribe(s.bus, handler)
}

func (s *Sink) Boot(sysclkHz uint32) {
	s.log.Info().Msg("init")
	s.log.Info().Uint32("sysclk_hz", sysclkHz).Msgf("System clock: %d MHz", sysclkHz/1_000_000)
	event.Publish(s.bus, BootEvent{SysclkHz: sysclkHz})
}

func (s *Sink) PhaseA() {
	s.log.Info().Str("phase", "A").Msg("foo")
	event.Publish(s.bus, BlinkEvent{Phase: "A"})
}

func (s *Sink) PhaseB(counter uint32) {
	s.log.Info().Str("phase", "B").Uint32("counter", counter).
		Msgf("bar, number of led_red blink: %d", counter)
	event.Publish(s.bus, BlinkEvent{Phase: "B", Counter: counter})
}

func (s *Sink) KeyPressed(column, row int) {
	s.log.Info().Int("column", column).Int("row", row).Msgf("column: %d, row: %d", column, row)
	event.Publish(s.bus, KeyEvent{Column: column, Row: row})
}

func (s *Sink) EmergencyStop() {
	s.log.Error().Msg("Emergency STOP!")
	event.Publish(s.bus, EmergencyEvent{})
}
