package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	yaml "github.com/goccy/go-yaml"

	"mcusched/internal/board"
	"mcusched/internal/sched"
)

// Config mirrors config.yml
type Config struct {
	Sched   sched.Config `yaml:"sched"`
	Board   board.Layout `yaml:"board"`
	Tasks   Tasks        `yaml:"tasks"`
	Blink   Blink        `yaml:"blink"`
	Log     Log          `yaml:"log"`
	Stimuli []Stimulus   `yaml:"stimuli"`
}

// Tasks holds the fixed priority of every firmware task.
type Tasks struct {
	KeypadPriority    int `yaml:"keypad_priority"`    // 1 (by default)
	BlinkPriority     int `yaml:"blink_priority"`     // 3 (by default)
	EmergencyPriority int `yaml:"emergency_priority"` // 6 (by default)
}

// Blink holds the timing of the blink task pair.
type Blink struct {
	StartDelayMS int `yaml:"start_delay_ms"` // 1000 (by default)
	IntervalMS   int `yaml:"interval_ms"`    // 1000 (by default)
}

type Log struct {
	Level    string `yaml:"level"`  // "info" (by default)
	Format   string `yaml:"format"` // "console" or "json"
	TraceCSV string `yaml:"trace_csv"`
}

// Stimulus is an external event applied at the start of a tick.
type Stimulus struct {
	AtTick uint64 `yaml:"at_tick"`
	Action string `yaml:"action"` // press_key, release_key, press_button, release_button
	Column int    `yaml:"column"`
	Row    int    `yaml:"row"`
}

const (
	ActionPressKey      = "press_key"
	ActionReleaseKey    = "release_key"
	ActionPressButton   = "press_button"
	ActionReleaseButton = "release_button"
)

// Default returns the configuration of the reference board.
func Default() Config {
	return Config{
		Sched: sched.DefaultConfig(),
		Board: board.DefaultLayout(),
		Tasks: Tasks{
			KeypadPriority:    1,
			BlinkPriority:     3,
			EmergencyPriority: 6,
		},
		Blink: Blink{
			StartDelayMS: 1000,
			IntervalMS:   1000,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file means
// defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// sanity clamps
func (c *Config) sanitize() {
	def := Default()
	c.Sched.Sanitize()
	if c.Blink.StartDelayMS < 0 {
		c.Blink.StartDelayMS = def.Blink.StartDelayMS
	}
	if c.Blink.IntervalMS <= 0 {
		c.Blink.IntervalMS = def.Blink.IntervalMS
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate checks the priority ordering the firmware depends on: the keypad
// scan is the least urgent, the dispatcher bookkeeping outranks the blink
// pair and nothing outranks the emergency stop.
func (c Config) Validate() error {
	if err := c.Sched.Validate(); err != nil {
		return err
	}
	t := c.Tasks
	if t.KeypadPriority < sched.MinPriority {
		return fmt.Errorf("keypad_priority %d below %d", t.KeypadPriority, sched.MinPriority)
	}
	if t.EmergencyPriority > sched.MaxPriority {
		return fmt.Errorf("emergency_priority %d above %d", t.EmergencyPriority, sched.MaxPriority)
	}
	if !(t.KeypadPriority < t.BlinkPriority &&
		t.BlinkPriority < c.Sched.TimerPriority &&
		c.Sched.TimerPriority < t.EmergencyPriority) {
		return fmt.Errorf("priorities must satisfy keypad (%d) < blink (%d) < timer (%d) < emergency (%d)",
			t.KeypadPriority, t.BlinkPriority, c.Sched.TimerPriority, t.EmergencyPriority)
	}
	if len(c.Board.Columns) == 0 || len(c.Board.Rows) == 0 {
		return errors.New("keypad needs at least one column and one row")
	}
	for i, s := range c.Stimuli {
		switch s.Action {
		case ActionPressKey, ActionReleaseKey:
			if s.Column < 0 || s.Column >= len(c.Board.Columns) || s.Row < 0 || s.Row >= len(c.Board.Rows) {
				return fmt.Errorf("stimulus %d: key (%d, %d) outside keypad", i, s.Column, s.Row)
			}
		case ActionPressButton, ActionReleaseButton:
		default:
			return fmt.Errorf("stimulus %d: unknown action %q", i, s.Action)
		}
	}
	return nil
}
