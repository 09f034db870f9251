package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mcusched/internal/config"
	"mcusched/internal/job"
	"mcusched/internal/sched"
	"mcusched/internal/telemetry"
)

var (
	configPath     string
	ticks          uint64
	realtime       bool
	logLevel       string
	logFormat      string
	traceCSV       string
	metricsAddr    string
	emergencyAfter time.Duration
	presses        []string

	rootCmd = &cobra.Command{
		Use:           "mcusched",
		Short:         "Simulated microcontroller running blink, keypad and emergency stop firmware",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Boot the board and run the firmware",
		Long:  `Boot the board, arm the blink pair and the keypad scan, then run the core until the tick budget is spent, the emergency stop latches or the process is interrupted.`,
		Args:  cobra.NoArgs,
		RunE:  runFirmware,
	}
)

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "Firmware config file")
	runCmd.Flags().Uint64Var(&ticks, "ticks", 0, "Stop after this many ticks (0 runs until halted or interrupted)")
	runCmd.Flags().BoolVar(&realtime, "realtime", false, "Pace ticks with the wall clock")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override log.level")
	runCmd.Flags().StringVar(&logFormat, "log-format", "", "Override log.format (console or json)")
	runCmd.Flags().StringVar(&traceCSV, "trace-csv", "", "Override log.trace_csv")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().DurationVar(&emergencyAfter, "emergency-after", 0, "Press the emergency button after this wall-clock delay")
	runCmd.Flags().StringArrayVar(&presses, "press", nil, "Hold keypad key column,row from boot (repeatable)")

	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mcusched:", err)
		os.Exit(1)
	}
}

func runFirmware(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if traceCSV != "" {
		cfg.Log.TraceCSV = traceCSV
	}

	log, err := telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	sink := telemetry.NewSink(log)
	defer metrics.Subscribe(sink)()
	defer telemetry.Subscribe(sink, func(telemetry.EmergencyEvent) {
		log.Warn().Msg("emergency stop latched, reset the board to recover")
	})()

	trace := telemetry.NewTrace(log)
	if cfg.Log.TraceCSV != "" {
		if err := trace.EnableCSVLogging(cfg.Log.TraceCSV); err != nil {
			return err
		}
	}
	defer trace.Close()

	sys, err := job.New(cfg, sink,
		job.WithLogger(log),
		job.WithObserver(metrics.Observe),
		job.WithObserver(trace.Observe),
	)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	for _, p := range presses {
		col, row, err := parseKey(p)
		if err != nil {
			return err
		}
		if err := sys.Board.Keypad.Press(col, row); err != nil {
			return fmt.Errorf("--press %s: %w", p, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if realtime {
		clock := sched.NewTickClock(1)
		clock.Start(time.Duration(cfg.Sched.TickMS) * time.Millisecond)
		defer clock.Stop()
		sys.Core.SetPacer(clock)
	}

	if emergencyAfter > 0 {
		timer := time.AfterFunc(emergencyAfter, sys.Board.Button.Press)
		defer timer.Stop()
	}

	if metricsAddr != "" {
		srv := serveMetrics(log, metricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if ticks > 0 {
		err = sys.RunTicks(ctx, ticks)
	} else {
		err = sys.Run(ctx)
	}

	switch {
	case err == nil:
		log.Info().Uint64("tick", sys.Core.Now()).Msg("tick limit reached")
		return nil
	case errors.Is(err, sched.ErrHalted):
		log.Warn().Err(err).Uint64("tick", sys.Core.Now()).Msg("core halted")
		if ticks == 0 {
			// A halted board stays halted until it is reset.
			<-ctx.Done()
		}
		return nil
	case errors.Is(err, context.Canceled):
		log.Info().Uint64("tick", sys.Core.Now()).Msg("interrupted")
		return nil
	}
	return err
}

func serveMetrics(log zerolog.Logger, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

// parseKey reads a "column,row" pair.
func parseKey(s string) (int, int, error) {
	colStr, rowStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("key %q: want column,row", s)
	}
	col, err := strconv.Atoi(strings.TrimSpace(colStr))
	if err != nil {
		return 0, 0, fmt.Errorf("key %q: %w", s, err)
	}
	row, err := strconv.Atoi(strings.TrimSpace(rowStr))
	if err != nil {
		return 0, 0, fmt.Errorf("key %q: %w", s, err)
	}
	return col, row, nil
}
