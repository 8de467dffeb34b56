package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/nomina/internal/shared"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window implements Repository.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	query, args := buildWindowQuery(filters, offset, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCollaboratorUnavailable, err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row   TimelineRow
			at    pgtype.Timestamptz
			actor pgtype.Text
			meta  []byte
		)
		if err := rows.Scan(&at, &actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		row.At, _ = shared.NormalizeTimestamp(at)
		row.Actor = actor.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("decode meta: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func buildWindowQuery(filters TimelineFilters, offset, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From.UTC())
	}
	if !filters.To.IsZero() {
		add("occurred_at < $%d", filters.To.UTC().Add(24*time.Hour))
	}
	if v := strings.TrimSpace(filters.Actor); v != "" {
		add("actor_id = $%d", v)
	}
	if v := strings.TrimSpace(filters.Entity); v != "" {
		add("entity = $%d", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		add("action = $%d", v)
	}
	var b strings.Builder
	b.WriteString(`SELECT occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at DESC, id DESC")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

var _ Repository = (*PGRepository)(nil)
