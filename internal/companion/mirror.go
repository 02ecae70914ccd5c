package companion

import (
	"github.com/switchwork/pbsg-core/internal/pbsg"
)

// Mirror drives companion switches to match published group state.
//
// It hangs off the attribute publication fan-out: every full state
// snapshot aligns one switch per button, active on and the rest off.
// The group core never writes switches itself, so the mirror is the
// only writer; a deployment without one leaves its switches frozen at
// whatever the broker last saw.
type Mirror struct {
	switches Switches
	logger   Logger
}

// NewMirror creates a mirror over a switch collection.
func NewMirror(switches Switches, logger Logger) *Mirror {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Mirror{switches: switches, logger: logger}
}

// Apply inspects one published attribute and, for full state
// snapshots, drives every companion switch to match. Other attributes
// pass through untouched. Write failures are logged and skipped; a
// dead switch must not stall the remaining buttons.
func (m *Mirror) Apply(instance, attribute string, value any) {
	if attribute != pbsg.AttrState {
		return
	}
	state, ok := value.(*pbsg.State)
	if !ok || state == nil {
		return
	}
	for i, button := range state.Buttons {
		sw, err := m.switches.Ensure(instance, button, i+1)
		if err != nil {
			m.logger.Warn("companion switch unavailable",
				"group", instance, "button", button, "error", err)
			continue
		}
		if button == state.Active {
			err = sw.TurnOn()
		} else {
			err = sw.TurnOff()
		}
		if err != nil {
			m.logger.Warn("companion switch write failed",
				"group", instance, "button", button, "error", err)
		}
	}
}
