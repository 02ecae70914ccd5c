package pbsg

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger interface for structured logging (avoids circular imports).
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// noopLogger is used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Debug(msg string, args ...any) {}

// Registry owns every running group instance.
//
// It is the single authority for creating, fetching and removing
// groups, and restores the persisted ones at startup. All methods are
// safe for concurrent use.
type Registry struct {
	repo      Repository
	switches  CompanionSwitches
	publisher AttributePublisher
	sink      TransitionSink
	logger    Logger

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewRegistry creates a registry. The repository may be nil, in which
// case groups are memory-only and nothing survives a restart.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:      repo,
		logger:    noopLogger{},
		instances: make(map[string]*Instance),
	}
}

// SetLogger replaces the registry's logger. New instances inherit it;
// instances already running keep the logger they were created with.
func (r *Registry) SetLogger(log Logger) {
	if log == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = log
}

// SetSwitches installs the companion switch collaborator handed to new
// instances.
func (r *Registry) SetSwitches(switches CompanionSwitches) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switches = switches
}

// SetPublisher installs the attribute publisher handed to new
// instances.
func (r *Registry) SetPublisher(pub AttributePublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = pub
}

// SetTransitionSink installs the telemetry sink handed to new
// instances.
func (r *Registry) SetTransitionSink(sink TransitionSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Create installs a new group, persists its settings and runs the
// first structural build. The group is torn back down if that first
// build fails, so a failed create leaves nothing behind.
func (r *Registry) Create(ctx context.Context, name string, settings Settings, trace string) (*Instance, error) {
	r.mu.Lock()
	if _, exists := r.instances[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInstanceExists, name)
	}
	in, err := NewInstance(InstanceOptions{
		Name:      name,
		Switches:  r.switches,
		Publisher: r.publisher,
		Repo:      r.repo,
		Sink:      r.sink,
		Logger:    r.logger,
	})
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.instances[name] = in
	r.mu.Unlock()

	if err := in.Configure(ctx, settings, trace); err != nil {
		r.mu.Lock()
		delete(r.instances, name)
		r.mu.Unlock()
		in.Close()
		return nil, err
	}

	r.logger.Info("group created", "instance", name, "buttons", len(settings.Buttons))
	return in, nil
}

// Get returns the named group.
func (r *Registry) Get(name string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, exists := r.instances[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	return in, nil
}

// List returns every group, ordered by name.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Instance, 0, len(r.instances))
	for _, in := range r.instances {
		list = append(list, in)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	return list
}

// Count returns the number of running groups.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// Remove shuts the named group down and deletes its settings along
// with its journal.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	in, exists := r.instances[name]
	if exists {
		delete(r.instances, name)
	}
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}

	in.Close()
	if r.repo != nil {
		if err := r.repo.DeleteInstance(ctx, name); err != nil {
			return fmt.Errorf("deleting group settings: %w", err)
		}
	}
	r.logger.Info("group removed", "instance", name)
	return nil
}

// Restore loads every persisted group and rebuilds it against the
// companion switches. Called once at startup, before any transport
// begins accepting commands. A group that fails to rebuild is logged
// and skipped rather than aborting the rest.
func (r *Registry) Restore(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	records, err := r.repo.ListInstances(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted groups: %w", err)
	}

	restored := 0
	for _, rec := range records {
		in, err := NewInstance(InstanceOptions{
			Name:      rec.Name,
			Switches:  r.switches,
			Publisher: r.publisher,
			Repo:      r.repo,
			Sink:      r.sink,
			Logger:    r.logger,
		})
		if err != nil {
			r.logger.Error("skipping persisted group", "instance", rec.Name, "error", err)
			continue
		}
		r.mu.Lock()
		r.instances[rec.Name] = in
		r.mu.Unlock()

		settings := Settings{Buttons: rec.Buttons, Default: rec.Default}
		if err := in.Configure(ctx, settings, "restore"); err != nil {
			r.logger.Error("failed to rebuild persisted group", "instance", rec.Name, "error", err)
			continue
		}
		restored++
	}

	r.logger.Info("groups restored", "count", restored, "persisted", len(records))
	return nil
}

// Close shuts every group down. Used at service shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range r.instances {
		in.Close()
	}
}
