package companion

import (
	"github.com/switchwork/pbsg-core/internal/pbsg"
)

// Switch is one companion on/off device bound to a single button.
//
// IsOn is the read half the group core consumes during rebuild
// reconciliation. TurnOn and TurnOff are the write half reserved for
// the Mirror; the split keeps the core read-only with respect to
// companion hardware.
type Switch interface {
	// IsOn reports the last observed position of the switch.
	IsOn() (bool, error)

	// TurnOn drives the switch on.
	TurnOn() error

	// TurnOff drives the switch off.
	TurnOff() error
}

// Switches is a create-or-fetch collection of companion switches.
type Switches interface {
	// Ensure returns the switch mirroring a button, creating it on
	// first sight. Position is the button's 1-based slot in the
	// group's configuration order; collections surface it to
	// observers but never act on it.
	Ensure(group, button string, position int) (Switch, error)
}

// Logger is the minimal logging interface the package needs.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger swallows everything; used when no logger is wired.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// AsGroupSwitches adapts a collection to the read-only collaborator
// interface the group core consumes during rebuilds.
func AsGroupSwitches(s Switches) pbsg.CompanionSwitches {
	return groupSwitches{inner: s}
}

type groupSwitches struct {
	inner Switches
}

func (g groupSwitches) Ensure(group, button string, position int) (pbsg.CompanionSwitch, error) {
	return g.inner.Ensure(group, button, position)
}
