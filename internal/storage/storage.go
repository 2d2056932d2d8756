// Package storage holds the pgx repositories for the synchronized data
// sets: signer certificates (trust list), business rules and value sets.
//
// The sync jobs exclusively own the writes; the request path reads through
// the caches in internal/rules. Reconciliation writes the authoritative set
// in one transaction: delete-not-in-fresh-set, then insert-new-by-identity.
// Records that survive a reconciliation keep their original insertion
// metadata (they are never re-written).
package storage

import (
	"time"
)

// TrustListItem is one signer certificate, content-identified by kid.
type TrustListItem struct {
	Kid            string
	RawCertificate []byte
	CreatedAt      time.Time
}

// RuleRecord is one stored business rule, content-identified by the SHA-256
// hash of its canonical raw body.
type RuleRecord struct {
	ContentHash  string
	Identifier   string
	Version      string
	Jurisdiction string
	RawBody      []byte
	CreatedAt    time.Time
}

// ValueSetRecord is one stored value set, content-identified like rules.
type ValueSetRecord struct {
	ContentHash string
	Identifier  string
	Version     string
	RawBody     []byte
	CreatedAt   time.Time
}
