package pbsg

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// maxButtonNameLength bounds button names so they stay usable in
// topics, attribute payloads and storage keys.
const maxButtonNameLength = 64

// ParseButtons splits a raw comma-delimited button list into names,
// trimming surrounding whitespace from each entry. Empty entries are
// kept so validation can report their positions.
func ParseButtons(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	buttons := make([]string, 0, len(parts))
	for _, p := range parts {
		buttons = append(buttons, strings.TrimSpace(p))
	}
	return buttons
}

// Validate checks the settings as a whole and reports every problem
// found, joined into one error. A group needs at least two unique,
// well-formed button names, and the default, when set, must be one of
// them. Nothing is applied unless the whole lot passes.
func (st Settings) Validate() error {
	var errs []string

	if len(st.Buttons) < 2 {
		errs = append(errs, fmt.Sprintf("at least 2 buttons are required, got %d", len(st.Buttons)))
	}

	seen := make(map[string]bool, len(st.Buttons))
	for i, b := range st.Buttons {
		switch {
		case b == "":
			errs = append(errs, fmt.Sprintf("button %d: name is empty", i+1))
		case len(b) > maxButtonNameLength:
			errs = append(errs, fmt.Sprintf("button %d: name exceeds %d characters", i+1, maxButtonNameLength))
		default:
			if r, ok := invalidButtonRune(b); ok {
				errs = append(errs, fmt.Sprintf("button %d: invalid character %q in %q", i+1, r, b))
			}
		}
		if b != "" && seen[b] {
			errs = append(errs, fmt.Sprintf("button %d: duplicate name %q", i+1, b))
		}
		seen[b] = true
	}

	if st.Default != "" && !seen[st.Default] {
		errs = append(errs, fmt.Sprintf("default %q is not one of the buttons", st.Default))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

// invalidButtonRune returns the first rune in name that is not allowed.
// Letters, digits, spaces, underscores, hyphens and dots are allowed;
// everything else, topic separators and wildcards included, is not.
func invalidButtonRune(name string) (rune, bool) {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ', r == '_', r == '-', r == '.':
		default:
			return r, true
		}
	}
	return 0, false
}

// rebuild constructs a fresh state for the given settings and
// reconciles it against the companion switches. Buttons are stacked
// onto history in configuration order; any companion switch already
// reporting on claims the active slot as it is seen, so activations
// made while the group was not running are adopted rather than lost.
// If nothing claimed the slot the default, when set, is asserted.
//
// Companion failures are logged and treated as off; the build itself
// never fails once the settings have validated.
func rebuild(group string, settings Settings, switches CompanionSwitches, log Logger) *State {
	s := &State{
		Version: newVersion(),
		Buttons: make([]string, len(settings.Buttons)),
		Default: settings.Default,
		History: make([]string, 0, len(settings.Buttons)),
	}
	copy(s.Buttons, settings.Buttons)

	for i, button := range settings.Buttons {
		var sw CompanionSwitch
		if switches != nil {
			var err error
			sw, err = switches.Ensure(group, button, i+1)
			if err != nil {
				log.Warn("companion switch unavailable",
					"instance", group, "button", button, "error", err)
				sw = nil
			}
		}

		pushHistory(s, button)

		if sw == nil {
			continue
		}
		on, err := sw.IsOn()
		if err != nil {
			log.Warn("companion switch read failed",
				"instance", group, "button", button, "error", err)
			continue
		}
		if on {
			activate(s, button)
		}
	}

	if s.Active == "" && s.Default != "" {
		activate(s, s.Default)
	}
	return s
}

// versionClock makes build tokens strictly increasing even when two
// rebuilds land inside the same clock tick.
var versionClock struct {
	sync.Mutex
	last int64
}

// newVersion mints a build token. Tokens are zero-padded UTC nanosecond
// timestamps, so comparing them lexically gives creation order, across
// process restarts included.
func newVersion() string {
	versionClock.Lock()
	defer versionClock.Unlock()
	now := time.Now().UTC().UnixNano()
	if now <= versionClock.last {
		now = versionClock.last + 1
	}
	versionClock.last = now
	return fmt.Sprintf("%020d", now)
}
