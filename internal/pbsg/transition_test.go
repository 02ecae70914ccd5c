package pbsg

import "testing"

// testState builds a state directly, bypassing the rebuilder. history
// is given top first.
func testState(buttons []string, defaultButton, active string, history ...string) *State {
	return &State{
		Version: newVersion(),
		Buttons: buttons,
		Default: defaultButton,
		Active:  active,
		History: history,
	}
}

// checkPartition fails the test unless every configured button appears
// exactly once across the active slot and the history.
func checkPartition(t *testing.T, s *State) {
	t.Helper()

	counts := make(map[string]int, len(s.Buttons))
	if s.Active != "" {
		counts[s.Active]++
	}
	for _, b := range s.History {
		counts[b]++
	}

	for _, b := range s.Buttons {
		if counts[b] != 1 {
			t.Errorf("button %q appears %d times across active and history, want 1 (active=%q history=%v)",
				b, counts[b], s.Active, s.History)
		}
	}
	if len(counts) != len(s.Buttons) {
		t.Errorf("active and history hold %d distinct buttons, want %d (active=%q history=%v)",
			len(counts), len(s.Buttons), s.Active, s.History)
	}
}

func sameSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ─── Activate ───────────────────────────────────────────────────────────────

func TestActivate_FromHistory(t *testing.T) {
	s := testState([]string{"Morning", "Evening", "Night"}, "Morning", "Morning", "Night", "Evening")

	out := activate(s, "Evening")

	if !out.changed || out.rule != RuleActivated {
		t.Fatalf("outcome = %+v, want changed RuleActivated", out)
	}
	if s.Active != "Evening" {
		t.Errorf("active = %q, want Evening", s.Active)
	}
	if !sameSlice(s.History, []string{"Morning", "Night"}) {
		t.Errorf("history = %v, want [Morning Night]", s.History)
	}
	checkPartition(t, s)
}

func TestActivate_DisplacedButtonTopsHistory(t *testing.T) {
	s := testState([]string{"A", "B", "C"}, "", "A", "C", "B")

	activate(s, "B")

	if len(s.History) == 0 || s.History[0] != "A" {
		t.Fatalf("history = %v, want previous active A on top", s.History)
	}
	checkPartition(t, s)
}

func TestActivate_AlreadyActive(t *testing.T) {
	s := testState([]string{"A", "B"}, "", "A", "B")

	out := activate(s, "A")

	if out.changed || out.rule != RuleAlreadyActive {
		t.Fatalf("outcome = %+v, want unchanged RuleAlreadyActive", out)
	}
	if s.Active != "A" || !sameSlice(s.History, []string{"B"}) {
		t.Errorf("state mutated by no-op: active=%q history=%v", s.Active, s.History)
	}
}

func TestActivate_UnknownButton(t *testing.T) {
	s := testState([]string{"A", "B"}, "", "A", "B")

	out := activate(s, "Cinema")

	if out.changed || out.rule != RuleUnknownButton {
		t.Fatalf("outcome = %+v, want unchanged RuleUnknownButton", out)
	}
	checkPartition(t, s)
}

func TestActivate_WithNothingActive(t *testing.T) {
	s := testState([]string{"A", "B"}, "", "", "B", "A")

	out := activate(s, "A")

	if !out.changed {
		t.Fatalf("outcome = %+v, want changed", out)
	}
	if s.Active != "A" || !sameSlice(s.History, []string{"B"}) {
		t.Errorf("active=%q history=%v, want A and [B]", s.Active, s.History)
	}
}

// ─── Deactivate ─────────────────────────────────────────────────────────────

func TestDeactivate_ReassertsDefault(t *testing.T) {
	s := testState([]string{"Morning", "Evening", "Night"}, "Morning", "Evening", "Morning", "Night")

	out := deactivate(s, "Evening")

	if !out.changed || out.rule != RuleDeactivated {
		t.Fatalf("outcome = %+v, want changed RuleDeactivated", out)
	}
	if s.Active != "Morning" {
		t.Errorf("active = %q, want default Morning re-asserted", s.Active)
	}
	if !sameSlice(s.History, []string{"Evening", "Night"}) {
		t.Errorf("history = %v, want [Evening Night]", s.History)
	}
	checkPartition(t, s)
}

func TestDeactivate_NoDefaultGoesDark(t *testing.T) {
	s := testState([]string{"A", "B"}, "", "A", "B")

	out := deactivate(s, "A")

	if !out.changed {
		t.Fatalf("outcome = %+v, want changed", out)
	}
	if s.Active != "" {
		t.Errorf("active = %q, want none", s.Active)
	}
	if !sameSlice(s.History, []string{"A", "B"}) {
		t.Errorf("history = %v, want [A B]", s.History)
	}
}

func TestDeactivate_NotActive(t *testing.T) {
	s := testState([]string{"A", "B"}, "", "A", "B")

	out := deactivate(s, "B")

	if out.changed || out.rule != RuleNotActive {
		t.Fatalf("outcome = %+v, want unchanged RuleNotActive", out)
	}
}

func TestDeactivate_DefaultProtected(t *testing.T) {
	s := testState([]string{"A", "B"}, "A", "A", "B")

	out := deactivate(s, "A")

	if out.changed || out.rule != RuleDefaultProtected {
		t.Fatalf("outcome = %+v, want unchanged RuleDefaultProtected", out)
	}
	if s.Active != "A" {
		t.Errorf("active = %q, want default A still active", s.Active)
	}
}

// ─── Push ───────────────────────────────────────────────────────────────────

func TestPush_OutOfRange(t *testing.T) {
	s := testState([]string{"A", "B"}, "", "A", "B")

	for _, position := range []int{0, -1, 3, 99} {
		out := push(s, position)
		if out.changed || out.rule != RuleOutOfRange {
			t.Errorf("push(%d) outcome = %+v, want unchanged RuleOutOfRange", position, out)
		}
	}
}

func TestPush_ActiveDefaultProtected(t *testing.T) {
	s := testState([]string{"Morning", "Evening"}, "Morning", "Morning", "Evening")

	out := push(s, 1)

	if out.changed || out.rule != RuleDefaultProtected {
		t.Fatalf("outcome = %+v, want unchanged RuleDefaultProtected", out)
	}
}

func TestPush_ActiveNonDefaultDeactivates(t *testing.T) {
	s := testState([]string{"Morning", "Evening", "Night"}, "Morning", "Evening", "Morning", "Night")

	out := push(s, 2)

	if !out.changed || out.rule != RuleDeactivated {
		t.Fatalf("outcome = %+v, want changed RuleDeactivated", out)
	}
	if s.Active != "Morning" {
		t.Errorf("active = %q, want default Morning re-asserted", s.Active)
	}
	checkPartition(t, s)
}

func TestPush_InactiveActivates(t *testing.T) {
	s := testState([]string{"Morning", "Evening", "Night"}, "Morning", "Morning", "Night", "Evening")

	out := push(s, 3)

	if !out.changed || out.rule != RuleActivated {
		t.Fatalf("outcome = %+v, want changed RuleActivated", out)
	}
	if s.Active != "Night" {
		t.Errorf("active = %q, want Night", s.Active)
	}
	checkPartition(t, s)
}

func TestPush_OrphanedButton(t *testing.T) {
	// A state where button C has fallen out of both the active slot and
	// the history. Push must refuse to touch it.
	s := testState([]string{"A", "B", "C"}, "", "A", "B")

	out := push(s, 3)

	if out.changed || out.rule != RuleOrphanedButton {
		t.Fatalf("outcome = %+v, want unchanged RuleOrphanedButton", out)
	}
	if s.Active != "A" || !sameSlice(s.History, []string{"B"}) {
		t.Errorf("state mutated by orphan push: active=%q history=%v", s.Active, s.History)
	}
}

// ─── Invariants across sequences ────────────────────────────────────────────

func TestTransitionSequencePreservesPartition(t *testing.T) {
	s := testState([]string{"A", "B", "C", "D"}, "A", "A", "D", "C", "B")

	steps := []func(){
		func() { activate(s, "C") },
		func() { push(s, 2) },
		func() { deactivate(s, "B") },
		func() { push(s, 4) },
		func() { push(s, 4) },
		func() { activate(s, "A") },
		func() { deactivate(s, "A") },
		func() { push(s, 1) },
		func() { activate(s, "D") },
		func() { deactivate(s, "D") },
	}
	for i, step := range steps {
		step()
		checkPartition(t, s)
		if t.Failed() {
			t.Fatalf("partition broken after step %d", i+1)
		}
	}
}

func TestRetireActiveWithoutDefaultKeepsOrder(t *testing.T) {
	s := testState([]string{"A", "B", "C"}, "", "B", "C", "A")

	deactivate(s, "B")

	if !sameSlice(s.History, []string{"B", "C", "A"}) {
		t.Errorf("history = %v, want B pushed on top of [C A]", s.History)
	}
}
