package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"mcusched/internal/sched"
)

// Trace records core status events to the debug log and, optionally, CSV.
type Trace struct {
	log zerolog.Logger

	// logging-related
	csvFile   *os.File
	csvWriter *csv.Writer
	csvFailed bool // write error already reported
}

func NewTrace(log zerolog.Logger) *Trace {
	return &Trace{log: log}
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before the core runs.
func (t *Trace) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	t.csvFile = f
	return t.EnableCSV(f)
}

// EnableCSV writes the header and sends every following record to w.
func (t *Trace) EnableCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	// write header
	if err := cw.Write([]string{"tick", "event", "task_id", "task", "priority", "ceiling", "deadline", "error"}); err != nil {
		return err
	}
	cw.Flush()
	t.csvWriter = cw
	return cw.Error()
}

// Observe handles one status event. It is registered with Core.Observe.
func (t *Trace) Observe(ev sched.StatusEvent) {
	// if we received a tick event which periodically occurs,
	// we can just return early and not log it for the brevity of output.
	if ev.Kind == sched.StatusTick {
		return
	}

	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := int(float64(width-len(str)) / 2)
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}

	t.log.Debug().Msgf("Tick: %07d [%s] => Task: %04d %-14s prio=%02d ceiling=%02d",
		ev.Tick,
		center(ev.Kind.String(), 12),
		ev.TaskID,
		ev.Task,
		ev.Priority,
		ev.Ceiling,
	)

	// CSV output
	if t.csvWriter != nil {
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		rec := []string{
			strconv.FormatUint(ev.Tick, 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Task,
			strconv.Itoa(ev.Priority),
			strconv.Itoa(ev.Ceiling),
			strconv.FormatUint(ev.Deadline, 10),
			errText,
		}
		err := t.csvWriter.Write(rec)
		if err == nil {
			t.csvWriter.Flush()
			err = t.csvWriter.Error()
		}
		if err != nil && !t.csvFailed {
			t.csvFailed = true
			t.log.Error().Err(err).Uint64("tick", ev.Tick).Msg("trace csv write failed")
		}
	}
}

// Close flushes and closes the CSV file, if any.
func (t *Trace) Close() error {
	if t.csvWriter == nil {
		return nil
	}
	t.csvWriter.Flush()
	err := t.csvWriter.Error()
	if t.csvFile != nil {
		if cerr := t.csvFile.Close(); err == nil {
			err = cerr
		}
	}
	t.csvWriter, t.csvFile = nil, nil
	if err != nil {
		return fmt.Errorf("close trace: %w", err)
	}
	return nil
}
