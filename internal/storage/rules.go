package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RuleRepo persists the reconciled business rule set.
type RuleRepo struct {
	pool *pgxpool.Pool
}

func NewRuleRepo(pool *pgxpool.Pool) *RuleRepo {
	return &RuleRepo{pool: pool}
}

// StoredHashes returns the content hashes currently stored, the identity
// set the hash-diff sync works against.
func (r *RuleRepo) StoredHashes(ctx context.Context) ([]string, error) {
	return queryHashes(ctx, r.pool, `SELECT content_hash FROM rules`)
}

// RuleBodies returns the raw rule bodies for one jurisdiction.
// Implements the rule cache's source interface.
func (r *RuleRepo) RuleBodies(ctx context.Context, jurisdiction string) ([][]byte, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT raw_body FROM rules WHERE jurisdiction = $1`, jurisdiction)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules for %s: %w", jurisdiction, err)
	}
	defer rows.Close()
	return scanBodies(rows)
}

// Reconcile applies the hash-diff result in one transaction: records whose
// hash is absent from keepHashes are deleted, newRecords are inserted.
// keepHashes is the full authoritative hash set (survivors plus new).
func (r *RuleRepo) Reconcile(ctx context.Context, keepHashes []string, newRecords []RuleRecord) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM rules WHERE content_hash != ALL($1)`, keepHashes,
		); err != nil {
			return fmt.Errorf("failed to delete stale rules: %w", err)
		}

		for _, rec := range newRecords {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rules (content_hash, identifier, version, jurisdiction, raw_body)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (content_hash) DO NOTHING`,
				rec.ContentHash, rec.Identifier, rec.Version, rec.Jurisdiction, rec.RawBody,
			); err != nil {
				return fmt.Errorf("failed to insert rule %s: %w", rec.Identifier, err)
			}
		}
		return nil
	})
}

func queryHashes(ctx context.Context, pool *pgxpool.Pool, sql string) ([]string, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list content hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan content hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func scanBodies(rows pgx.Rows) ([][]byte, error) {
	var bodies [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan body: %w", err)
		}
		bodies = append(bodies, body)
	}
	return bodies, rows.Err()
}
