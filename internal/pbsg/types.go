package pbsg

// State is the complete condition of one switch group at a point in time.
//
// Exactly one button may be active. Every configured button that is not
// active sits in History, most recently deactivated first, so the two
// fields together always partition Buttons. Version identifies the
// structural build the state belongs to; it only changes when the group
// is rebuilt with different buttons or a different default.
type State struct {
	// Version is an opaque, lexically ordered token minted when the
	// group's structure was last built. Commands are stamped with the
	// version they were issued against so stale work can be discarded.
	Version string `json:"version"`

	// Buttons is the configured button set in configuration order.
	Buttons []string `json:"buttons"`

	// Default names the button re-asserted whenever the group would
	// otherwise go dark. Empty means the group may rest with nothing
	// active.
	Default string `json:"default,omitempty"`

	// Active names the currently active button, or empty for none.
	Active string `json:"active,omitempty"`

	// History is the stack of inactive buttons. Index 0 is the top,
	// the button deactivated most recently.
	History []string `json:"history"`
}

// DeepCopy returns a completely independent copy of the state.
// Callers receive copies from every read path so they can never
// mutate the live state by accident.
func (s *State) DeepCopy() *State {
	if s == nil {
		return nil
	}
	clone := &State{
		Version: s.Version,
		Default: s.Default,
		Active:  s.Active,
	}
	if s.Buttons != nil {
		clone.Buttons = make([]string, len(s.Buttons))
		copy(clone.Buttons, s.Buttons)
	}
	if s.History != nil {
		clone.History = make([]string, len(s.History))
		copy(clone.History, s.History)
	}
	return clone
}

// Position returns the 1-based position of the named button in the
// configured order, or 0 if the button is not configured.
func (s *State) Position(button string) int {
	for i, b := range s.Buttons {
		if b == button {
			return i + 1
		}
	}
	return 0
}

// CommandKind identifies the operation a queued command requests.
type CommandKind string

// Command kinds accepted by the processor. Anything else is rejected
// and dropped.
const (
	CommandActivate   CommandKind = "activate"
	CommandDeactivate CommandKind = "deactivate"
	CommandPush       CommandKind = "push"
)

// Command is a single queued request against a group.
//
// Commands are stamped with the state version current at enqueue time.
// The processor compares that stamp against the live version before
// applying anything, which is what lets a structural rebuild win over
// commands issued before it.
type Command struct {
	Kind     CommandKind `json:"kind"`
	Button   string      `json:"button,omitempty"`
	Position int         `json:"position,omitempty"`
	Trace    string      `json:"trace,omitempty"`
	Version  string      `json:"version"`
}

// Settings is the structural configuration of a group: the ordered
// button list and the optional default button.
type Settings struct {
	Buttons []string `json:"buttons" yaml:"buttons"`
	Default string   `json:"default,omitempty" yaml:"default,omitempty"`
}

// DeepCopy returns an independent copy of the settings.
func (st Settings) DeepCopy() Settings {
	clone := Settings{Default: st.Default}
	if st.Buttons != nil {
		clone.Buttons = make([]string, len(st.Buttons))
		copy(clone.Buttons, st.Buttons)
	}
	return clone
}

// Attribute names published on state changes. External observers key
// off these; the values are a full state snapshot, the active button
// name and the configured button count respectively.
const (
	AttrState       = "state"
	AttrActive      = "active"
	AttrButtonCount = "buttonCount"
)

// AttributePublisher receives attribute values for external observers.
// Publication failures are the publisher's problem; the state machine
// never blocks or fails on them.
type AttributePublisher interface {
	PublishAttribute(instance, attribute string, value any)
}

// TransitionSink receives every journalled transition for telemetry
// export. Implementations must not block; calls ride the processor
// goroutine.
type TransitionSink interface {
	RecordTransition(t Transition)
}

// CompanionSwitch is the external on/off device that mirrors one
// button. The group reads it during a structural rebuild to adopt
// activations that happened while the group was not running.
type CompanionSwitch interface {
	// IsOn reports the switch's current value.
	IsOn() (bool, error)
}

// CompanionSwitches creates or fetches the companion switch backing a
// button. Ensure is called once per button on every structural rebuild.
type CompanionSwitches interface {
	Ensure(group, button string, position int) (CompanionSwitch, error)
}
