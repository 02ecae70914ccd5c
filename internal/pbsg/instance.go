package pbsg

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxInstanceNameLength bounds group names; they appear in topics,
// URLs and storage keys.
const maxInstanceNameLength = 64

// Instance is one running switch group: the live state, the command
// queue and the processor goroutine that drains it.
//
// Commands are handed over on an unbuffered channel, so an enqueue
// returns only once the processor has personally taken the command.
// That rendezvous is what makes the observable order of transitions
// exactly the order in which callers had their commands accepted.
// Reads never touch the queue; Status hands out an independent copy
// of whatever state is current.
type Instance struct {
	name string

	switches  CompanionSwitches
	publisher AttributePublisher
	repo      Repository
	sink      TransitionSink
	logger    Logger

	mu      sync.RWMutex
	state   *State
	running bool
	closed  bool

	// procDone is closed when the current processor goroutine exits,
	// releasing any sender caught mid-handover so it can retry.
	procDone chan struct{}

	commands chan Command
	done     chan struct{}

	// rebuildMu serialises structural rebuilds against each other.
	rebuildMu sync.Mutex

	// pubMu orders attribute publication by state commit. Committers
	// acquire it before releasing mu, so publications leave in the
	// order their states were installed and a rebuild's attributes
	// cannot end up buried under those of a command it superseded.
	pubMu sync.Mutex
}

// InstanceOptions configures a new group instance. Only Name is
// required; a group without collaborators is memory-only and silent.
type InstanceOptions struct {
	// Name identifies the group in topics, attributes and storage.
	Name string

	// Switches ensures companion switches during structural rebuilds.
	Switches CompanionSwitches

	// Publisher receives attribute changes.
	Publisher AttributePublisher

	// Repo persists settings and journals applied transitions.
	Repo Repository

	// Sink receives journalled transitions for telemetry export.
	Sink TransitionSink

	// Logger receives structured diagnostics.
	Logger Logger
}

// NewInstance creates a group with an empty structure and starts its
// processor. Commands are accepted immediately, though they can only
// resolve to no-ops until Configure gives the group buttons.
func NewInstance(opts InstanceOptions) (*Instance, error) {
	if err := validateInstanceName(opts.Name); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}
	in := &Instance{
		name:      opts.Name,
		switches:  opts.Switches,
		publisher: opts.Publisher,
		repo:      opts.Repo,
		sink:      opts.Sink,
		logger:    log,
		state: &State{
			Version: newVersion(),
			Buttons: []string{},
			History: []string{},
		},
		commands: make(chan Command),
		done:     make(chan struct{}),
	}
	in.mu.Lock()
	in.ensureProcessor()
	in.mu.Unlock()
	return in, nil
}

// validateInstanceName checks a group name for use in topics and URLs.
func validateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > maxInstanceNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxInstanceNameLength)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-':
		default:
			return fmt.Errorf("%w: invalid character %q in %q", ErrInvalidName, r, name)
		}
	}
	return nil
}

// Name returns the group's name.
func (in *Instance) Name() string {
	return in.name
}

// Status returns an independent snapshot of the current state.
func (in *Instance) Status() *State {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.state.DeepCopy()
}

// Activate queues a request to make button the active one.
func (in *Instance) Activate(button, trace string) error {
	if button == "" {
		in.logger.Error("activate rejected", "instance", in.name, "error", ErrEmptyButton)
		return ErrEmptyButton
	}
	return in.enqueue(Command{Kind: CommandActivate, Button: button, Trace: trace})
}

// Deactivate queues a request to retire button from the active slot.
func (in *Instance) Deactivate(button, trace string) error {
	if button == "" {
		in.logger.Error("deactivate rejected", "instance", in.name, "error", ErrEmptyButton)
		return ErrEmptyButton
	}
	return in.enqueue(Command{Kind: CommandDeactivate, Button: button, Trace: trace})
}

// PushPosition queues a toggle of the button at the given 1-based
// configuration position. Range checking happens when the processor
// applies the command; out-of-range positions resolve to logged no-ops.
func (in *Instance) PushPosition(position int, trace string) error {
	return in.enqueue(Command{Kind: CommandPush, Position: position, Trace: trace})
}

// PushButton resolves a button name to its configured position and
// queues a push for it.
func (in *Instance) PushButton(button, trace string) error {
	if button == "" {
		in.logger.Error("push rejected", "instance", in.name, "error", ErrEmptyButton)
		return ErrEmptyButton
	}
	in.mu.RLock()
	position := in.state.Position(button)
	in.mu.RUnlock()
	if position == 0 {
		in.logger.Error("push rejected", "instance", in.name, "button", button, "error", ErrUnknownButton)
		return fmt.Errorf("%w: %s", ErrUnknownButton, button)
	}
	return in.PushPosition(position, trace)
}

// Configure validates and applies a structural change: a new button
// list and default. The rebuild bypasses the command queue and swaps
// the state directly; commands stamped before it land against a newer
// version and are discarded when the processor reaches them.
//
// Validation is all-or-nothing. A rejected configuration leaves the
// running state and the persisted settings exactly as they were.
func (in *Instance) Configure(ctx context.Context, settings Settings, trace string) error {
	in.rebuildMu.Lock()
	defer in.rebuildMu.Unlock()

	if in.isClosed() {
		return ErrInstanceClosed
	}

	if err := settings.Validate(); err != nil {
		in.logger.Error("rejecting group configuration",
			"instance", in.name, "error", err, "trace", trace)
		return err
	}

	current := in.Status()
	if sameStrings(current.Buttons, settings.Buttons) && current.Default == settings.Default {
		in.logger.Info("configuration unchanged, skipping rebuild",
			"instance", in.name, "version", current.Version)
		return nil
	}

	if in.repo != nil {
		rec := &InstanceRecord{
			Name:    in.name,
			Buttons: settings.Buttons,
			Default: settings.Default,
		}
		if err := in.repo.SaveInstance(ctx, rec); err != nil {
			return fmt.Errorf("persisting group settings: %w", err)
		}
	}

	next := rebuild(in.name, settings, in.switches, in.logger)

	in.mu.Lock()
	prev := in.state
	in.state = next
	in.pubMu.Lock()
	in.mu.Unlock()

	in.publishOrdered(prev, next)
	in.logger.Info("group rebuilt",
		"instance", in.name,
		"version", next.Version,
		"buttons", len(next.Buttons),
		"default", next.Default,
		"active", next.Active,
		"trace", trace)
	in.journal(&Transition{
		Version:    next.Version,
		Kind:       "rebuild",
		Rule:       string(RuleRebuilt),
		NewActive:  next.Active,
		PrevActive: prev.Active,
		Trace:      trace,
	})
	return nil
}

// Close shuts the group down. Senders caught mid-handover are released
// and every later enqueue fails with ErrInstanceClosed.
func (in *Instance) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	close(in.done)
	return nil
}

func (in *Instance) isClosed() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.closed
}

// enqueue stamps the command with the current state version and hands
// it to the processor. The handover blocks until the processor takes
// the command, the group closes, or the processor is found dead, in
// which case it is relaunched and the handover retried with a fresh
// stamp.
func (in *Instance) enqueue(cmd Command) error {
	for {
		in.mu.Lock()
		if in.closed {
			in.mu.Unlock()
			return ErrInstanceClosed
		}
		cmd.Version = in.state.Version
		in.ensureProcessor()
		proc := in.procDone
		in.mu.Unlock()

		select {
		case in.commands <- cmd:
			return nil
		case <-in.done:
			return ErrInstanceClosed
		case <-proc:
			// The processor exited before taking the command.
		}
	}
}

// ensureProcessor launches the processor goroutine if none is running.
// Called with mu held.
func (in *Instance) ensureProcessor() {
	if in.running || in.closed {
		return
	}
	in.running = true
	in.procDone = make(chan struct{})
	go in.processLoop(in.procDone)
}

// processLoop drains the command queue until the group closes. A panic
// while applying a command kills only that command; the next enqueue
// observes the dead processor and relaunches it.
func (in *Instance) processLoop(exit chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("command processor panicked",
				"instance", in.name, "panic", r)
		}
		in.mu.Lock()
		in.running = false
		in.mu.Unlock()
		close(exit)
	}()
	for {
		select {
		case <-in.done:
			return
		case cmd := <-in.commands:
			in.process(cmd)
		}
	}
}

// process applies one command against the live state. The version
// stamp decides whether the command is still meaningful: stamps older
// than the live version belong to a structure that no longer exists
// and are dropped with a warning; stamps newer than the live version
// cannot legitimately happen and are dropped loudly. A result is
// committed before it is announced; a command that loses the race
// against a rebuild publishes nothing.
func (in *Instance) process(cmd Command) {
	in.mu.RLock()
	prev := in.state
	in.mu.RUnlock()

	switch strings.Compare(cmd.Version, prev.Version) {
	case -1:
		in.logger.Warn("discarding stale command",
			"instance", in.name,
			"kind", string(cmd.Kind),
			"stamp", cmd.Version,
			"version", prev.Version,
			"trace", cmd.Trace)
		return
	case 1:
		in.logger.Error("discarding command stamped ahead of state",
			"instance", in.name,
			"kind", string(cmd.Kind),
			"stamp", cmd.Version,
			"version", prev.Version,
			"trace", cmd.Trace)
		return
	}

	next := prev.DeepCopy()
	var out outcome
	switch cmd.Kind {
	case CommandActivate:
		out = activate(next, cmd.Button)
	case CommandDeactivate:
		out = deactivate(next, cmd.Button)
	case CommandPush:
		out = push(next, cmd.Position)
	default:
		in.logger.Error("discarding command of unknown kind",
			"instance", in.name, "kind", string(cmd.Kind), "trace", cmd.Trace)
		return
	}

	if statesEqual(prev, next) {
		in.logger.Info("command resolved to no-op",
			"instance", in.name,
			"kind", string(cmd.Kind),
			"rule", string(out.rule),
			"button", out.button,
			"trace", cmd.Trace)
		return
	}

	in.mu.Lock()
	if in.state.Version != next.Version {
		in.mu.Unlock()
		in.logger.Warn("state rebuilt mid-command, discarding result",
			"instance", in.name, "kind", string(cmd.Kind), "trace", cmd.Trace)
		return
	}
	in.state = next
	in.pubMu.Lock()
	in.mu.Unlock()

	in.publishOrdered(prev, next)
	in.logger.Info("transition applied",
		"instance", in.name,
		"kind", string(cmd.Kind),
		"rule", string(out.rule),
		"button", out.button,
		"active", next.Active,
		"trace", cmd.Trace)
	in.journal(&Transition{
		Version:    next.Version,
		Kind:       string(cmd.Kind),
		Rule:       string(out.rule),
		Button:     out.button,
		Position:   cmd.Position,
		PrevActive: prev.Active,
		NewActive:  next.Active,
		Trace:      cmd.Trace,
	})
}

// publishOrdered announces the attribute changes between prev and next
// and releases pubMu, which the caller acquired before releasing mu.
// The lock is released even when a publisher implementation panics, so
// a crashing observer cannot wedge later commits.
func (in *Instance) publishOrdered(prev, next *State) {
	defer in.pubMu.Unlock()
	publishChanges(in.publisher, in.name, prev, next)
}

// journal records an applied transition. Failures are logged and
// swallowed; the journal must never block or fail the state machine.
func (in *Instance) journal(t *Transition) {
	t.Instance = in.name
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}
	if in.sink != nil {
		in.sink.RecordTransition(*t)
	}
	if in.repo == nil {
		return
	}
	if err := in.repo.SaveTransition(context.Background(), t); err != nil {
		in.logger.Error("failed to journal transition",
			"instance", in.name, "kind", t.Kind, "error", err)
	}
}
