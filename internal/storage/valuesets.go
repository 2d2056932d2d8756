package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ValueSetRepo persists the reconciled value set collection.
type ValueSetRepo struct {
	pool *pgxpool.Pool
}

func NewValueSetRepo(pool *pgxpool.Pool) *ValueSetRepo {
	return &ValueSetRepo{pool: pool}
}

// StoredHashes returns the content hashes currently stored.
func (r *ValueSetRepo) StoredHashes(ctx context.Context) ([]string, error) {
	return queryHashes(ctx, r.pool, `SELECT content_hash FROM value_sets`)
}

// ValueSetBodies returns all raw value set bodies.
// Implements the value set cache's source interface.
func (r *ValueSetRepo) ValueSetBodies(ctx context.Context) ([][]byte, error) {
	rows, err := r.pool.Query(ctx, `SELECT raw_body FROM value_sets`)
	if err != nil {
		return nil, fmt.Errorf("failed to read value sets: %w", err)
	}
	defer rows.Close()
	return scanBodies(rows)
}

// Reconcile applies the hash-diff result in one transaction, mirroring
// RuleRepo.Reconcile.
func (r *ValueSetRepo) Reconcile(ctx context.Context, keepHashes []string, newRecords []ValueSetRecord) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM value_sets WHERE content_hash != ALL($1)`, keepHashes,
		); err != nil {
			return fmt.Errorf("failed to delete stale value sets: %w", err)
		}

		for _, rec := range newRecords {
			if _, err := tx.Exec(ctx,
				`INSERT INTO value_sets (content_hash, identifier, version, raw_body)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (content_hash) DO NOTHING`,
				rec.ContentHash, rec.Identifier, rec.Version, rec.RawBody,
			); err != nil {
				return fmt.Errorf("failed to insert value set %s: %w", rec.Identifier, err)
			}
		}
		return nil
	})
}
