package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// Auditor records lifecycle mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops views derived from employee records, such as cached reports.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Config tunes the Manager.
type Config struct {
	Auditor     Auditor
	Invalidator Invalidator
	Clock       shared.Clock
	Logger      *slog.Logger
}

// Manager enforces the soft delete / restore / purge state machine on top of a
// RecordStore.
type Manager struct {
	store       RecordStore
	engine      *rbac.Engine
	audit       Auditor
	invalidator Invalidator
	clock       shared.Clock
	logger      *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(store RecordStore, engine *rbac.Engine, cfg Config) *Manager {
	if engine == nil {
		engine = rbac.NewEngine(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, engine: engine, audit: cfg.Auditor, invalidator: cfg.Invalidator, clock: cfg.Clock, logger: logger}
}

// Get loads one entity.
func (m *Manager) Get(ctx context.Context, ref Ref) (*Entity, error) {
	if !ref.Type.Valid() || ref.ID == "" {
		return nil, fmt.Errorf("lifecycle: get %s: %w", ref, shared.ErrEntityNotFound)
	}
	return m.store.Get(ctx, ref)
}

// SoftDelete marks an active entity deleted. Repeating it keeps the first timestamp.
func (m *Manager) SoftDelete(ctx context.Context, ref Ref) (*Entity, error) {
	e, err := m.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if e.State() == StateSoftDeleted {
		return e, nil
	}
	if err := m.store.Delete(ctx, ref, DeleteSoft); err != nil {
		return nil, err
	}
	m.changed(ctx, ref)
	m.record(ctx, "lifecycle.soft_delete", ref, nil)
	return m.store.Get(ctx, ref)
}

// Restore returns a soft deleted entity to the active state.
func (m *Manager) Restore(ctx context.Context, ref Ref) (*Entity, error) {
	e, err := m.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if e.State() != StateSoftDeleted {
		return nil, fmt.Errorf("lifecycle: restore %s: %w", ref, shared.ErrInvalidTransition)
	}
	active := true
	updated, err := m.store.Update(ctx, ref, Patch{Active: &active, ClearDeletedAt: true})
	if err != nil {
		return nil, err
	}
	m.changed(ctx, ref)
	m.record(ctx, "lifecycle.restore", ref, nil)
	return updated, nil
}

// Purge removes an entity permanently. The principal needs DELETE_EMPLOYEE, the call
// must carry an explicit confirmation, and live entities additionally need Force.
func (m *Manager) Purge(ctx context.Context, principal *rbac.Principal, ref Ref, opts PurgeOptions) error {
	if !m.engine.HasPermission(principal, rbac.PermDeleteEmployee) {
		return fmt.Errorf("lifecycle: purge %s: %w", ref, shared.ErrInsufficientPermission)
	}
	if !opts.Confirmed {
		return fmt.Errorf("lifecycle: purge %s: %w", ref, shared.ErrConfirmationRequired)
	}
	e, err := m.Get(ctx, ref)
	if err != nil {
		return err
	}
	if e.State() == StateActive && !opts.Force {
		return fmt.Errorf("lifecycle: purge active %s without force: %w", ref, shared.ErrInvalidTransition)
	}
	if err := m.store.Delete(ctx, ref, DeleteHard); err != nil {
		return err
	}
	m.changed(ctx, ref)
	m.logger.Info("entity purged", slog.String("entity", ref.String()), slog.String("actor", principal.ID))
	m.record(ctx, "lifecycle.purge", ref, map[string]any{"forced": e.State() == StateActive, "actor": principal.ID})
	return nil
}

// ToggleActive flips the active flag of a live entity without touching DeletedAt.
func (m *Manager) ToggleActive(ctx context.Context, ref Ref) (*Entity, error) {
	e, err := m.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if e.State() == StateSoftDeleted {
		return nil, fmt.Errorf("lifecycle: toggle %s: %w", ref, shared.ErrInvalidTransition)
	}
	next := !e.Active
	updated, err := m.store.Update(ctx, ref, Patch{Active: &next})
	if err != nil {
		return nil, err
	}
	m.changed(ctx, ref)
	m.record(ctx, "lifecycle.toggle_active", ref, map[string]any{"active": next})
	return updated, nil
}

// Update applies field changes to a live entity.
func (m *Manager) Update(ctx context.Context, ref Ref, fields map[string]any) (*Entity, error) {
	e, err := m.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if e.State() == StateSoftDeleted {
		return nil, fmt.Errorf("lifecycle: update %s: %w", ref, shared.ErrInvalidTransition)
	}
	updated, err := m.store.Update(ctx, ref, Patch{Fields: fields})
	if err != nil {
		return nil, err
	}
	m.changed(ctx, ref)
	m.record(ctx, "lifecycle.update", ref, fields)
	return updated, nil
}

// List returns either the live view or the deleted view, never a mix.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]Entity, error) {
	if !filter.Type.Valid() {
		return nil, fmt.Errorf("lifecycle: list %q: %w", filter.Type, shared.ErrEntityNotFound)
	}
	rows, err := m.store.List(ctx, filter.Type, filter.ShowDeleted)
	if err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(rows))
	for _, e := range rows {
		if (e.DeletedAt != nil) != filter.ShowDeleted {
			continue
		}
		if filter.Region != "" && !strings.EqualFold(e.Region, filter.Region) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// changed invalidates derived views after an employee mutation. Failures are logged.
func (m *Manager) changed(ctx context.Context, ref Ref) {
	if m.invalidator == nil || ref.Type != EntityEmployee {
		return
	}
	if err := m.invalidator.Bump(ctx); err != nil {
		m.logger.Warn("invalidate employee views", slog.String("entity", ref.String()), slog.Any("error", err))
	}
}

func (m *Manager) record(ctx context.Context, action string, ref Ref, meta map[string]any) {
	if m.audit == nil {
		return
	}
	entry := shared.AuditLog{
		Action:   action,
		Entity:   string(ref.Type),
		EntityID: ref.ID,
		Meta:     meta,
		At:       m.clock.Now(),
	}
	if actor := rbac.PrincipalFromContext(ctx); actor != nil {
		entry.ActorID = actor.ID
	}
	if err := m.audit.Record(ctx, entry); err != nil {
		m.logger.Warn("audit lifecycle mutation", slog.String("action", action), slog.Any("error", err))
	}
}

// IsTerminal reports whether err means the entity no longer exists.
func IsTerminal(err error) bool {
	return errors.Is(err, shared.ErrEntityNotFound) || errors.Is(err, shared.ErrAlreadyPurged)
}
