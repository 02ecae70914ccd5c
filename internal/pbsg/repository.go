package pbsg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InstanceRecord is the persisted structural configuration of a group.
// The running state is never persisted; it is rebuilt from these
// settings and the companion switches at startup.
type InstanceRecord struct {
	Name      string    `json:"name"`
	Buttons   []string  `json:"buttons"`
	Default   string    `json:"default,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition is one journal entry: a command the processor applied, or
// a structural rebuild, with the active button before and after.
type Transition struct {
	ID         string    `json:"id"`
	Instance   string    `json:"instance"`
	Version    string    `json:"version"`
	Kind       string    `json:"kind"`
	Rule       string    `json:"rule"`
	Button     string    `json:"button,omitempty"`
	Position   int       `json:"position,omitempty"`
	PrevActive string    `json:"prev_active,omitempty"`
	NewActive  string    `json:"new_active,omitempty"`
	Trace      string    `json:"trace,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository defines the persistence interface for group settings and
// the transition journal.
type Repository interface {
	// SaveInstance inserts or updates a group's settings.
	SaveInstance(ctx context.Context, rec *InstanceRecord) error

	// GetInstance fetches one group's settings by name.
	GetInstance(ctx context.Context, name string) (*InstanceRecord, error)

	// ListInstances returns every persisted group, ordered by name.
	ListInstances(ctx context.Context) ([]*InstanceRecord, error)

	// DeleteInstance removes a group's settings and, through the
	// schema's cascade, its journal.
	DeleteInstance(ctx context.Context, name string) error

	// SaveTransition appends one journal entry.
	SaveTransition(ctx context.Context, t *Transition) error

	// ListTransitions returns a group's journal, newest first.
	ListTransitions(ctx context.Context, instance string, limit int) ([]*Transition, error)
}

// SQLiteRepository implements Repository on SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using the given database
// handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const instanceColumns = `name, buttons, default_button, created_at, updated_at`

const transitionColumns = `id, instance, version, kind, rule, button, position, prev_active, new_active, trace, occurred_at`

// ─────────────────────────────── Instances ───────────────────────────────

// SaveInstance inserts or updates a group's settings. CreatedAt is
// preserved on update; UpdatedAt always moves.
func (r *SQLiteRepository) SaveInstance(ctx context.Context, rec *InstanceRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("%w: record must have a name", ErrInvalidName)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	buttons, err := json.Marshal(rec.Buttons)
	if err != nil {
		return fmt.Errorf("marshalling buttons for %s: %w", rec.Name, err)
	}

	query := `
		INSERT INTO pbsg_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			buttons        = excluded.buttons,
			default_button = excluded.default_button,
			updated_at     = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.Name,
		string(buttons),
		nullableString(rec.Default),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving group %s: %w", rec.Name, err)
	}
	return nil
}

// GetInstance fetches one group's settings by name.
func (r *SQLiteRepository) GetInstance(ctx context.Context, name string) (*InstanceRecord, error) {
	query := `SELECT ` + instanceColumns + ` FROM pbsg_instances WHERE name = ?`
	rec, err := scanInstance(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
		}
		return nil, fmt.Errorf("loading group %s: %w", name, err)
	}
	return rec, nil
}

// ListInstances returns every persisted group, ordered by name.
func (r *SQLiteRepository) ListInstances(ctx context.Context) ([]*InstanceRecord, error) {
	query := `SELECT ` + instanceColumns + ` FROM pbsg_instances ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var records []*InstanceRecord
	for rows.Next() {
		rec, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return records, nil
}

// DeleteInstance removes a group's settings. The journal goes with it
// via the schema's ON DELETE CASCADE.
func (r *SQLiteRepository) DeleteInstance(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pbsg_instances WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting group %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of group %s: %w", name, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	return nil
}

// ─────────────────────────────── Transitions ──────────────────────────────

// SaveTransition appends one journal entry. Missing IDs and timestamps
// are filled in here so callers can hand over sparse records.
func (r *SQLiteRepository) SaveTransition(ctx context.Context, t *Transition) error {
	if t == nil || t.Instance == "" {
		return fmt.Errorf("%w: transition must name an instance", ErrInvalidName)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pbsg_transitions (` + transitionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.Instance,
		t.Version,
		t.Kind,
		t.Rule,
		nullableString(t.Button),
		t.Position,
		nullableString(t.PrevActive),
		nullableString(t.NewActive),
		nullableString(t.Trace),
		t.OccurredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving transition for %s: %w", t.Instance, err)
	}
	return nil
}

// ListTransitions returns a group's journal, newest first. A limit of
// zero or less falls back to 100 entries; the hard ceiling is 1000.
func (r *SQLiteRepository) ListTransitions(ctx context.Context, instance string, limit int) ([]*Transition, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT ` + transitionColumns + `
		FROM pbsg_transitions
		WHERE instance = ?
		ORDER BY occurred_at DESC, id
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, instance, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transitions for %s: %w", instance, err)
	}
	defer rows.Close()

	var transitions []*Transition
	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transition row: %w", err)
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transition rows: %w", err)
	}
	return transitions, nil
}

// ─────────────────────────────── Helpers ─────────────────────────────────

// rowScanner abstracts over sql.Row and sql.Rows so the scan helpers
// serve both single and multi-row queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(s rowScanner) (*InstanceRecord, error) {
	var (
		rec        InstanceRecord
		buttons    string
		defaultBtn sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := s.Scan(&rec.Name, &buttons, &defaultBtn, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(buttons), &rec.Buttons); err != nil {
		return nil, fmt.Errorf("unmarshalling buttons for %s: %w", rec.Name, err)
	}
	rec.Default = defaultBtn.String

	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", rec.Name, err)
	}
	rec.CreatedAt = created
	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at for %s: %w", rec.Name, err)
	}
	rec.UpdatedAt = updated
	return &rec, nil
}

func scanTransition(s rowScanner) (*Transition, error) {
	var (
		t          Transition
		button     sql.NullString
		prevActive sql.NullString
		newActive  sql.NullString
		trace      sql.NullString
		occurredAt string
	)
	if err := s.Scan(&t.ID, &t.Instance, &t.Version, &t.Kind, &t.Rule,
		&button, &t.Position, &prevActive, &newActive, &trace, &occurredAt); err != nil {
		return nil, err
	}
	t.Button = button.String
	t.PrevActive = prevActive.String
	t.NewActive = newActive.String
	t.Trace = trace.String

	occurred, err := time.Parse(time.RFC3339Nano, occurredAt)
	if err != nil {
		return nil, fmt.Errorf("parsing occurred_at for %s: %w", t.ID, err)
	}
	t.OccurredAt = occurred
	return &t, nil
}

// nullableString returns nil for empty strings so the column stores
// NULL instead of an empty value.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
