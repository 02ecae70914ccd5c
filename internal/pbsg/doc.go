// Package pbsg implements push-button switch groups for PBSG Core.
//
// A switch group behaves like a bank of mutually exclusive push
// buttons: at most one button is active at a time, activating one
// displaces the previous one onto a last-in-first-out history, and a
// group with a configured default never rests with nothing active.
// Groups adopt companion switch positions at rebuild, so activations
// made while the service was down are recovered rather than lost.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────────┐
//	│                             Switch Group                                 │
//	│                                                                          │
//	│  ┌────────────────┐   ┌─────────────────┐   ┌────────────────────────┐  │
//	│  │    Instance    │   │   Transitions   │   │       Rebuilder        │  │
//	│  │ (instance.go)  │──▶│ (transition.go) │   │      (rebuild.go)      │  │
//	│  │                │   │                 │   │                        │  │
//	│  │ • Command queue│   │ • activate      │   │ • Settings validation  │  │
//	│  │ • Processor    │   │ • deactivate    │   │ • Fresh build tokens   │  │
//	│  │ • Version gate │   │ • push          │   │ • Switch reconciliation│  │
//	│  └────────────────┘   └─────────────────┘   └────────────────────────┘  │
//	│          │                                                               │
//	│          ▼                                                               │
//	│  ┌────────────────┐   ┌─────────────────┐   ┌────────────────────────┐  │
//	│  │   Publisher    │   │     Registry    │   │       Repository       │  │
//	│  │ (publisher.go) │   │  (registry.go)  │──▶│     (repository.go)    │  │
//	│  │                │   │                 │   │                        │  │
//	│  │ • Deep diff    │   │ • Group CRUD    │   │ • Settings (SQLite)    │  │
//	│  │ • state/active/│   │ • Startup       │   │ • Transition journal   │  │
//	│  │   buttonCount  │   │   restore       │   │                        │  │
//	│  └────────────────┘   └─────────────────┘   └────────────────────────┘  │
//	└──────────────────────────────────────────────────────────────────────────┘
//
// # Command Flow
//
// Every mutating operation except Configure goes through the group's
// command queue. The queue is an unbuffered channel: the caller's
// enqueue completes only when the processor goroutine takes the
// command, which gives a single total order over all accepted
// commands. Each command is stamped with the state version current at
// enqueue time; the processor drops commands whose stamp no longer
// matches the live version, which is how a structural rebuild, applied
// directly and with a fresh version, wins over everything queued
// before it.
//
// # Key Types
//
//   - State: one group's buttons, default, active button and history
//   - Command: a queued activate, deactivate or push request
//   - Settings: the structural configuration a rebuild works from
//   - Instance: a running group with its queue and processor
//   - Registry: owns all instances, restores them at startup
//   - Repository: persistence for settings and the transition journal
//
// # Usage
//
//	repo := pbsg.NewSQLiteRepository(db)
//	registry := pbsg.NewRegistry(repo)
//	registry.SetLogger(log)
//	registry.SetSwitches(switches)
//	registry.SetPublisher(fanout)
//
//	if err := registry.Restore(ctx); err != nil {
//	    return err
//	}
//
//	group, err := registry.Create(ctx, "lounge-scenes", pbsg.Settings{
//	    Buttons: []string{"Morning", "Evening", "Night"},
//	    Default: "Morning",
//	}, "install")
//	if err != nil {
//	    return err
//	}
//
//	_ = group.Activate("Evening", "wall panel")
//	snapshot := group.Status()
//
// # Thread Safety
//
// Instances and the Registry are safe for concurrent use. State is
// only ever swapped whole; readers receive deep copies and can never
// observe a half-applied transition.
package pbsg
