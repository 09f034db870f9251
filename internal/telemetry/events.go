package telemetry

// Event type constants for kelindar/event.
const (
	TypeBoot uint32 = iota + 1
	TypeBlink
	TypeKey
	TypeEmergency
)

// BootEvent is published once the board is initialised.
type BootEvent struct {
	SysclkHz uint32
}

// Type returns the event type identifier for BootEvent.
func (e BootEvent) Type() uint32 { return TypeBoot }

// BlinkEvent is published at each blink phase. Counter is only set for
// phase B.
type BlinkEvent struct {
	Phase   string
	Counter uint32
}

// Type returns the event type identifier for BlinkEvent.
func (e BlinkEvent) Type() uint32 { return TypeBlink }

// KeyEvent reports a row read high while its column was driven.
type KeyEvent struct {
	Column int
	Row    int
}

// Type returns the event type identifier for KeyEvent.
func (e KeyEvent) Type() uint32 { return TypeKey }

// EmergencyEvent is published when the emergency stop latches.
type EmergencyEvent struct{}

// Type returns the event type identifier for EmergencyEvent.
func (e EmergencyEvent) Type() uint32 { return TypeEmergency }
