package pbsg

// Rule identifies which transition rule resolved a command. Every
// application lands on exactly one rule, no-ops included, so logs and
// the transition journal always say why something did or did not move.
type Rule string

// Transition rules.
const (
	RuleActivated        Rule = "activated"
	RuleAlreadyActive    Rule = "already_active"
	RuleUnknownButton    Rule = "unknown_button"
	RuleDeactivated      Rule = "deactivated"
	RuleNotActive        Rule = "not_active"
	RuleDefaultProtected Rule = "default_protected"
	RuleOutOfRange       Rule = "position_out_of_range"
	RuleOrphanedButton   Rule = "orphaned_button"
	RuleRebuilt          Rule = "rebuilt"
)

// outcome describes what applying a command did to a state snapshot.
type outcome struct {
	changed bool
	rule    Rule
	button  string
}

// activate makes button the active one. The current active button, if
// any, is pushed onto history first so it can be returned to later.
// Activating the button that is already active does nothing, as does
// naming a button the group does not hold.
func activate(s *State, button string) outcome {
	if button == s.Active {
		return outcome{rule: RuleAlreadyActive, button: button}
	}
	if !historyContains(s, button) {
		return outcome{rule: RuleUnknownButton, button: button}
	}
	if s.Active != "" {
		pushHistory(s, s.Active)
	}
	dropHistory(s, button)
	s.Active = button
	return outcome{changed: true, rule: RuleActivated, button: button}
}

// deactivate retires button from the active slot. Only the active
// button can be deactivated, and never the default; the default may
// only be displaced by activating something else.
func deactivate(s *State, button string) outcome {
	if button != s.Active {
		return outcome{rule: RuleNotActive, button: button}
	}
	if button == s.Default {
		return outcome{rule: RuleDefaultProtected, button: button}
	}
	retireActive(s)
	return outcome{changed: true, rule: RuleDeactivated, button: button}
}

// push toggles the button at the given 1-based configuration position:
// an active button is deactivated, an inactive one activated. Pushing
// the active default does nothing because the default cannot be
// toggled off.
func push(s *State, position int) outcome {
	if position < 1 || position > len(s.Buttons) {
		return outcome{rule: RuleOutOfRange}
	}
	button := s.Buttons[position-1]
	switch {
	case button == s.Active && button == s.Default:
		return outcome{rule: RuleDefaultProtected, button: button}
	case button == s.Active:
		retireActive(s)
		return outcome{changed: true, rule: RuleDeactivated, button: button}
	case historyContains(s, button):
		return activate(s, button)
	default:
		// A button that is neither active nor on history has fallen
		// out of the partition; leave the state alone rather than
		// guess how it got there.
		return outcome{rule: RuleOrphanedButton, button: button}
	}
}

// retireActive pushes the active button onto history and, when a
// default is configured, immediately re-asserts it so the group never
// rests dark.
func retireActive(s *State) {
	pushHistory(s, s.Active)
	s.Active = ""
	if s.Default != "" {
		dropHistory(s, s.Default)
		s.Active = s.Default
	}
}

// pushHistory puts button on top of the history stack.
func pushHistory(s *State, button string) {
	s.History = append([]string{button}, s.History...)
}

// dropHistory removes the first occurrence of button from history.
func dropHistory(s *State, button string) {
	for i, b := range s.History {
		if b == button {
			s.History = append(s.History[:i], s.History[i+1:]...)
			return
		}
	}
}

func historyContains(s *State, button string) bool {
	for _, b := range s.History {
		if b == button {
			return true
		}
	}
	return false
}
