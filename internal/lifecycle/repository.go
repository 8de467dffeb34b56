package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/nomina/internal/shared"
)

// RecordStore persists administrative entities. Get returns ErrEntityNotFound for
// unknown ids. List with includeDeleted=false omits soft deleted rows; with true it
// returns every row.
type RecordStore interface {
	List(ctx context.Context, t EntityType, includeDeleted bool) ([]Entity, error)
	Get(ctx context.Context, ref Ref) (*Entity, error)
	Create(ctx context.Context, e Entity) error
	Update(ctx context.Context, ref Ref, patch Patch) (*Entity, error)
	Delete(ctx context.Context, ref Ref, mode DeleteMode) error
}

type tableSpec struct {
	table  string
	fields []string
}

// Only these tables and extra columns are ever interpolated into SQL.
var tables = map[EntityType]tableSpec{
	EntityEmployee: {table: "employees", fields: []string{"email", "position", "rfc"}},
	EntityUser:     {table: "users", fields: []string{"email", "role"}},
}

// PGStore implements RecordStore on PostgreSQL.
type PGStore struct {
	pool  *pgxpool.Pool
	clock shared.Clock
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool, clock shared.Clock) *PGStore {
	return &PGStore{pool: pool, clock: clock}
}

func specFor(t EntityType) (tableSpec, error) {
	spec, ok := tables[t]
	if !ok {
		return tableSpec{}, fmt.Errorf("lifecycle: entity type %q: %w", t, shared.ErrEntityNotFound)
	}
	return spec, nil
}

func (spec tableSpec) selectColumns() string {
	cols := append([]string{"id", "name", "region", "is_active", "created_at", "updated_at", "deleted_at"}, spec.fields...)
	return strings.Join(cols, ", ")
}

func scanEntity(row pgx.Row, t EntityType, spec tableSpec) (*Entity, error) {
	var (
		e         = Entity{Type: t}
		region    pgtype.Text
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		deletedAt pgtype.Timestamptz
	)
	extras := make([]pgtype.Text, len(spec.fields))
	dest := []any{&e.ID, &e.Name, &region, &e.Active, &createdAt, &updatedAt, &deletedAt}
	for i := range extras {
		dest = append(dest, &extras[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	e.Region = region.String
	e.CreatedAt, _ = shared.NormalizeTimestamp(createdAt)
	e.UpdatedAt = shared.NormalizeTimestampPtr(updatedAt)
	e.DeletedAt = shared.NormalizeTimestampPtr(deletedAt)
	for i, name := range spec.fields {
		if extras[i].Valid {
			if e.Fields == nil {
				e.Fields = make(map[string]any, len(spec.fields))
			}
			e.Fields[name] = extras[i].String
		}
	}
	return &e, nil
}

// List implements RecordStore.
func (s *PGStore) List(ctx context.Context, t EntityType, includeDeleted bool) ([]Entity, error) {
	spec, err := specFor(t)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + spec.selectColumns() + ` FROM ` + spec.table
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY name, id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list %s: %w: %v", t, shared.ErrCollaboratorUnavailable, err)
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows, t, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get implements RecordStore.
func (s *PGStore) Get(ctx context.Context, ref Ref) (*Entity, error) {
	spec, err := specFor(ref.Type)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+spec.selectColumns()+` FROM `+spec.table+` WHERE id = $1`, ref.ID)
	e, err := scanEntity(row, ref.Type, spec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lifecycle: get %s: %w", ref, shared.ErrEntityNotFound)
		}
		return nil, fmt.Errorf("lifecycle: get %s: %w: %v", ref, shared.ErrCollaboratorUnavailable, err)
	}
	return e, nil
}

// Create implements RecordStore.
func (s *PGStore) Create(ctx context.Context, e Entity) error {
	spec, err := specFor(e.Type)
	if err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.clock.Now()
	}
	cols := []string{"id", "name", "region", "is_active", "created_at"}
	args := []any{e.ID, e.Name, pgtype.Text{String: e.Region, Valid: e.Region != ""}, e.Active, pgtype.Timestamptz{Time: created, Valid: true}}
	for _, name := range spec.fields {
		if v, ok := e.Fields[name]; ok {
			cols = append(cols, name)
			args = append(args, fmt.Sprint(v))
		}
	}
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := `INSERT INTO ` + spec.table + ` (` + strings.Join(cols, ", ") + `) VALUES (` + strings.Join(placeholders, ", ") + `)`
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("lifecycle: create %s: %w", e.Ref(), err)
	}
	return nil
}

// Update implements RecordStore.
func (s *PGStore) Update(ctx context.Context, ref Ref, patch Patch) (*Entity, error) {
	spec, err := specFor(ref.Type)
	if err != nil {
		return nil, err
	}
	sets := []string{"updated_at = $1"}
	args := []any{pgtype.Timestamptz{Time: s.clock.Now(), Valid: true}}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Active != nil {
		add("is_active", *patch.Active)
	}
	switch {
	case patch.ClearDeletedAt:
		add("deleted_at", pgtype.Timestamptz{})
	case patch.DeletedAt != nil:
		add("deleted_at", pgtype.Timestamptz{Time: patch.DeletedAt.UTC(), Valid: true})
	}
	for _, name := range spec.fields {
		if v, ok := patch.Fields[name]; ok {
			add(name, fmt.Sprint(v))
		}
	}
	args = append(args, ref.ID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d RETURNING %s`, spec.table, strings.Join(sets, ", "), len(args), spec.selectColumns())
	e, err := scanEntity(s.pool.QueryRow(ctx, query, args...), ref.Type, spec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lifecycle: update %s: %w", ref, shared.ErrEntityNotFound)
		}
		return nil, fmt.Errorf("lifecycle: update %s: %w", ref, err)
	}
	return e, nil
}

// Delete implements RecordStore.
func (s *PGStore) Delete(ctx context.Context, ref Ref, mode DeleteMode) error {
	spec, err := specFor(ref.Type)
	if err != nil {
		return err
	}
	var tag pgconn.CommandTag
	switch mode {
	case DeleteHard:
		tag, err = s.pool.Exec(ctx, `DELETE FROM `+spec.table+` WHERE id = $1`, ref.ID)
	default:
		now := pgtype.Timestamptz{Time: s.clock.Now(), Valid: true}
		tag, err = s.pool.Exec(ctx, `UPDATE `+spec.table+` SET is_active = FALSE, deleted_at = COALESCE(deleted_at, $2), updated_at = $2 WHERE id = $1`, ref.ID, now)
	}
	if err != nil {
		return fmt.Errorf("lifecycle: delete %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lifecycle: delete %s: %w", ref, shared.ErrEntityNotFound)
	}
	return nil
}

// MemoryStore is an in-process RecordStore.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   shared.Clock
	records map[Ref]Entity
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(clock shared.Clock) *MemoryStore {
	return &MemoryStore{clock: clock, records: make(map[Ref]Entity)}
}

// List implements RecordStore.
func (s *MemoryStore) List(_ context.Context, t EntityType, includeDeleted bool) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entity
	for ref, e := range s.records {
		if ref.Type != t {
			continue
		}
		if !includeDeleted && e.DeletedAt != nil {
			continue
		}
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get implements RecordStore.
func (s *MemoryStore) Get(_ context.Context, ref Ref) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[ref]
	if !ok {
		return nil, fmt.Errorf("lifecycle: get %s: %w", ref, shared.ErrEntityNotFound)
	}
	cp := cloneEntity(e)
	return &cp, nil
}

// Create implements RecordStore.
func (s *MemoryStore) Create(_ context.Context, e Entity) error {
	if !e.Type.Valid() || e.ID == "" {
		return fmt.Errorf("lifecycle: create: entity type and id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[e.Ref()]; exists {
		return fmt.Errorf("lifecycle: create %s: already exists", e.Ref())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock.Now()
	}
	s.records[e.Ref()] = cloneEntity(e)
	return nil
}

// Update implements RecordStore.
func (s *MemoryStore) Update(_ context.Context, ref Ref, patch Patch) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ref]
	if !ok {
		return nil, fmt.Errorf("lifecycle: update %s: %w", ref, shared.ErrEntityNotFound)
	}
	if patch.Active != nil {
		e.Active = *patch.Active
	}
	switch {
	case patch.ClearDeletedAt:
		e.DeletedAt = nil
	case patch.DeletedAt != nil:
		at := patch.DeletedAt.UTC()
		e.DeletedAt = &at
	}
	if len(patch.Fields) > 0 {
		if e.Fields == nil {
			e.Fields = make(map[string]any, len(patch.Fields))
		}
		for k, v := range patch.Fields {
			e.Fields[k] = v
		}
	}
	now := s.clock.Now()
	e.UpdatedAt = &now
	s.records[ref] = cloneEntity(e)
	cp := cloneEntity(e)
	return &cp, nil
}

// Delete implements RecordStore.
func (s *MemoryStore) Delete(_ context.Context, ref Ref, mode DeleteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[ref]
	if !ok {
		return fmt.Errorf("lifecycle: delete %s: %w", ref, shared.ErrEntityNotFound)
	}
	if mode == DeleteHard {
		delete(s.records, ref)
		return nil
	}
	now := s.clock.Now().UTC()
	if e.DeletedAt == nil {
		e.DeletedAt = &now
	}
	e.Active = false
	e.UpdatedAt = &now
	s.records[ref] = e
	return nil
}

func cloneEntity(e Entity) Entity {
	if e.Fields != nil {
		fields := make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		e.Fields = fields
	}
	if e.UpdatedAt != nil {
		t := *e.UpdatedAt
		e.UpdatedAt = &t
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		e.DeletedAt = &t
	}
	return e
}

var (
	_ RecordStore = (*PGStore)(nil)
	_ RecordStore = (*MemoryStore)(nil)
)
