package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/storeledger/internal/platform/db"
)

// PGRepository persists settings in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const settingColumns = `key, value, description, updated_at`

// List returns every setting ordered by key.
func (r *PGRepository) List(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingColumns+` FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSetting)
}

// Get loads one setting.
func (r *PGRepository) Get(ctx context.Context, key string) (Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+settingColumns+` FROM settings WHERE key = $1`, key)
	if err != nil {
		return Setting{}, err
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSetting)
	if errors.Is(err, pgx.ErrNoRows) {
		return Setting{}, &KeyNotFoundError{Key: key}
	}
	return s, err
}

// Upsert writes every change in one transaction.
func (r *PGRepository) Upsert(ctx context.Context, changes []Change, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range changes {
			batch.Queue(`INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
				c.Key, c.Value, at)
		}
		results := tx.SendBatch(ctx, batch)
		for _, c := range changes {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("settings: upsert %s: %w", c.Key, err)
			}
		}
		return results.Close()
	})
}

func scanSetting(row pgx.CollectableRow) (Setting, error) {
	var s Setting
	err := row.Scan(&s.Key, &s.Value, &s.Description, &s.UpdatedAt)
	return s, err
}
