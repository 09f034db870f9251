package sched

import "fmt"

// Config mirrors the `sched` section of the firmware config file.
type Config struct {
	TickMS        int    `yaml:"tick_ms"`         // 10 (by default)
	CyclesPerTick int    `yaml:"cycles_per_tick"` // 64 (by default)
	QueueCapacity int    `yaml:"queue_capacity"`  // 8 (by default)
	TimerPriority int    `yaml:"timer_priority"`  // 5 (by default)
	SysclkHz      uint32 `yaml:"sysclk_hz"`       // 16 MHz (by default)
}

// DefaultConfig is used whenever no config file overrides the values.
func DefaultConfig() Config {
	return Config{
		TickMS:        10,
		CyclesPerTick: 64,
		QueueCapacity: 8,
		TimerPriority: 5,
		SysclkHz:      16_000_000,
	}
}

// Sanitize applies the sanity clamps: zero or negative values fall back to
// the defaults.
func (c *Config) Sanitize() {
	def := DefaultConfig()
	if c.TickMS <= 0 {
		c.TickMS = def.TickMS
	}
	if c.CyclesPerTick <= 0 {
		c.CyclesPerTick = def.CyclesPerTick
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.TimerPriority <= 0 {
		c.TimerPriority = def.TimerPriority
	}
	if c.SysclkHz == 0 {
		c.SysclkHz = def.SysclkHz
	}
}

// Validate reports values that cannot be clamped into something sensible.
func (c Config) Validate() error {
	if c.TimerPriority < MinPriority || c.TimerPriority > MaxPriority {
		return fmt.Errorf("timer_priority %d outside %d-%d", c.TimerPriority, MinPriority, MaxPriority)
	}
	return nil
}
