package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const timelineSelect = `SELECT id, occurred_at, actor, action, entity, entity_id, meta
	FROM audit_logs
	WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
	  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
	  AND ($3::text IS NULL OR actor = $3)
	  AND ($4::text IS NULL OR entity = $4)
	  AND ($5::text IS NULL OR entity_id = $5)
	  AND ($6::text IS NULL OR action = $6)
	ORDER BY occurred_at DESC, id DESC`

// PGRepository reads the timeline from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns up to limit rows starting at offset.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	args := append(filterArgs(filters), offset, limit)
	return r.query(ctx, timelineSelect+` OFFSET $7 LIMIT $8`, args...)
}

// All returns every matching row.
func (r *PGRepository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	return r.query(ctx, timelineSelect, filterArgs(filters)...)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var out TimelineRow
		var meta []byte
		err := row.Scan(&out.ID, &out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta)
		out.Meta = meta
		return out, err
	})
}

func filterArgs(f TimelineFilters) []any {
	return []any{
		optionalTime(f.From),
		optionalTime(f.To),
		optionalText(f.Actor),
		optionalText(f.Entity),
		optionalText(f.EntityID),
		optionalText(f.Action),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func optionalText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
