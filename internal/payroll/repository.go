package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/nomina/internal/platform/db"
	"github.com/odyssey-erp/nomina/internal/shared"
)

// LineItemSource fetches the stored line items of one employee and period. A missing
// record yields an empty slice and no error.
type LineItemSource interface {
	FetchLineItems(ctx context.Context, employeeID, period string) ([]LineItem, error)
}

// RecordStore persists whole payroll records.
type RecordStore interface {
	LineItemSource
	SaveRecord(ctx context.Context, rec Record) error
}

// PGRepository implements RecordStore on PostgreSQL.
type PGRepository struct {
	pool  *pgxpool.Pool
	clock shared.Clock
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool, clock shared.Clock) *PGRepository {
	return &PGRepository{pool: pool, clock: clock}
}

// FetchLineItems implements LineItemSource.
func (r *PGRepository) FetchLineItems(ctx context.Context, employeeID, period string) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT concept_id, name, kind, amount::text
		FROM payroll_line_items WHERE employee_id = $1 AND period = $2 ORDER BY position`, employeeID, period)
	if err != nil {
		return nil, fmt.Errorf("payroll: fetch %s/%s: %w: %v", employeeID, period, shared.ErrCollaboratorUnavailable, err)
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var (
			item   LineItem
			kind   string
			amount string
		)
		if err := rows.Scan(&item.ConceptID, &item.Name, &kind, &amount); err != nil {
			return nil, err
		}
		item.Kind = Kind(kind)
		item.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("payroll: decode amount %q: %w", amount, shared.ErrInvalidAmount)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payroll: fetch %s/%s: %w: %v", employeeID, period, shared.ErrCollaboratorUnavailable, err)
	}
	return items, nil
}

// SaveRecord replaces the stored record in one transaction. The totals columns are a
// reporting snapshot recomputed from the items written alongside them.
func (r *PGRepository) SaveRecord(ctx context.Context, rec Record) error {
	now := pgtype.Timestamptz{Time: r.clock.Now(), Valid: true}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO payroll_records (employee_id, period, total_perceptions, total_deductions, net_pay, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (employee_id, period) DO UPDATE SET
				total_perceptions = EXCLUDED.total_perceptions,
				total_deductions = EXCLUDED.total_deductions,
				net_pay = EXCLUDED.net_pay,
				updated_at = EXCLUDED.updated_at`,
			rec.EmployeeID, rec.Period, rec.TotalPerceptions().String(), rec.TotalDeductions().String(), rec.NetPay().String(), now); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM payroll_line_items WHERE employee_id = $1 AND period = $2`, rec.EmployeeID, rec.Period); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for i, item := range rec.LineItems {
			batch.Queue(`INSERT INTO payroll_line_items (employee_id, period, position, concept_id, name, kind, amount)
				VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)`,
				rec.EmployeeID, rec.Period, i, item.ConceptID, item.Name, string(item.Kind), item.Amount.String())
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("payroll: save %s/%s: %w", rec.EmployeeID, rec.Period, shared.ErrEntityNotFound)
		}
		return fmt.Errorf("payroll: save %s/%s: %w", rec.EmployeeID, rec.Period, err)
	}
	return nil
}

type recordKey struct {
	employeeID string
	period     string
}

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[recordKey][]LineItem
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[recordKey][]LineItem)}
}

// FetchLineItems implements LineItemSource.
func (m *MemoryRepository) FetchLineItems(_ context.Context, employeeID, period string) ([]LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.records[recordKey{employeeID, period}]
	out := make([]LineItem, len(items))
	copy(out, items)
	return out, nil
}

// SaveRecord implements RecordStore.
func (m *MemoryRepository) SaveRecord(_ context.Context, rec Record) error {
	items := make([]LineItem, len(rec.LineItems))
	copy(items, rec.LineItems)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey{rec.EmployeeID, rec.Period}] = items
	return nil
}

var (
	_ RecordStore = (*PGRepository)(nil)
	_ RecordStore = (*MemoryRepository)(nil)
)
