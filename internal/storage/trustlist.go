package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrustListRepo persists the reconciled signer certificate set.
type TrustListRepo struct {
	pool *pgxpool.Pool
}

func NewTrustListRepo(pool *pgxpool.Pool) *TrustListRepo {
	return &TrustListRepo{pool: pool}
}

// Kids returns the kids currently stored.
func (r *TrustListRepo) Kids(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT kid FROM trust_list`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trust list kids: %w", err)
	}
	defer rows.Close()

	var kids []string
	for rows.Next() {
		var kid string
		if err := rows.Scan(&kid); err != nil {
			return nil, fmt.Errorf("failed to scan kid: %w", err)
		}
		kids = append(kids, kid)
	}
	return kids, rows.Err()
}

// Certificate returns one certificate by kid, or pgx.ErrNoRows.
func (r *TrustListRepo) Certificate(ctx context.Context, kid string) (*TrustListItem, error) {
	var item TrustListItem
	err := r.pool.QueryRow(ctx,
		`SELECT kid, raw_certificate, created_at FROM trust_list WHERE kid = $1`, kid,
	).Scan(&item.Kid, &item.RawCertificate, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Reconcile replaces the stored set with fresh in one transaction:
// certificates whose kid is not in fresh are deleted, new kids are inserted,
// surviving rows are left untouched.
func (r *TrustListRepo) Reconcile(ctx context.Context, fresh []TrustListItem) error {
	kids := make([]string, len(fresh))
	for i, item := range fresh {
		kids[i] = item.Kid
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM trust_list WHERE kid != ALL($1)`, kids,
		); err != nil {
			return fmt.Errorf("failed to delete stale certificates: %w", err)
		}

		for _, item := range fresh {
			if _, err := tx.Exec(ctx,
				`INSERT INTO trust_list (kid, raw_certificate)
				 VALUES ($1, $2)
				 ON CONFLICT (kid) DO NOTHING`,
				item.Kid, item.RawCertificate,
			); err != nil {
				return fmt.Errorf("failed to insert certificate %s: %w", item.Kid, err)
			}
		}
		return nil
	})
}
