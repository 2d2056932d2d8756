package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/gateway"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/storage"
)

// Invalidator drops a read-through cache so the next read sees the
// reconciled storage state.
type Invalidator interface {
	Invalidate()
}

// RuleFeed is the slice of the gateway client the rule sync needs.
type RuleFeed interface {
	RuleIndex(ctx context.Context) ([]gateway.RuleIndexEntry, error)
	Rule(ctx context.Context, country, hash string) ([]byte, error)
}

// RuleStore is the slice of the rule repository the sync works against.
type RuleStore interface {
	StoredHashes(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, keepHashes []string, newRecords []storage.RuleRecord) error
}

// RuleSync reconciles the business rule set by hash diff: only bodies whose
// content hash is not yet stored are fetched. An index fetch error aborts
// the run; a single body fetch or hash mismatch only skips that entry for
// this run, the stale hash is then excluded from the keep set so the old
// record is not silently retained under a hash the upstream no longer lists.
type RuleSync struct {
	feed   RuleFeed
	store  RuleStore
	cache  Invalidator
	logger *slog.Logger
}

func NewRuleSync(feed RuleFeed, store RuleStore, cache Invalidator, logger *slog.Logger) *RuleSync {
	return &RuleSync{feed: feed, store: store, cache: cache, logger: logger}
}

func (s *RuleSync) Name() string { return "rule-sync" }

func (s *RuleSync) Run(ctx context.Context) error {
	index, err := s.feed.RuleIndex(ctx)
	if err != nil {
		return newUpstreamError("failed to fetch rule index", err)
	}

	stored, err := s.store.StoredHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored rule hashes: %w", err)
	}
	have := make(map[string]bool, len(stored))
	for _, h := range stored {
		have[h] = true
	}

	keep := make([]string, 0, len(index))
	var fresh []storage.RuleRecord
	skipped := 0
	for _, entry := range index {
		if have[entry.Hash] {
			// survivor, body already stored and its metadata untouched
			keep = append(keep, entry.Hash)
			continue
		}

		body, err := s.feed.Rule(ctx, entry.Country, entry.Hash)
		if err != nil {
			skipped++
			s.logger.Warn("skipping rule body fetch",
				slog.String("identifier", entry.Identifier),
				slog.String("hash", entry.Hash),
				slog.String("error", err.Error()))
			continue
		}
		if hash, err := crypto.HashJSON(body); err != nil || hash != entry.Hash {
			skipped++
			s.logger.Warn("rule body does not match its content hash",
				slog.String("identifier", entry.Identifier),
				slog.String("hash", entry.Hash))
			continue
		}

		keep = append(keep, entry.Hash)
		fresh = append(fresh, storage.RuleRecord{
			ContentHash:  entry.Hash,
			Identifier:   entry.Identifier,
			Version:      entry.Version,
			Jurisdiction: entry.Country,
			RawBody:      body,
		})
	}

	// an empty index is authoritative because the fetch above succeeded
	if err := s.store.Reconcile(ctx, keep, fresh); err != nil {
		return fmt.Errorf("rule reconciliation failed: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}

	s.logger.Info("rules synchronized",
		slog.Int("kept", len(keep)-len(fresh)),
		slog.Int("added", len(fresh)),
		slog.Int("skipped", skipped))
	return nil
}
