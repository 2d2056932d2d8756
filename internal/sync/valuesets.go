package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/gateway"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/storage"
)

// ValueSetFeed is the slice of the gateway client the value set sync needs.
type ValueSetFeed interface {
	ValueSetIndex(ctx context.Context) ([]gateway.ValueSetIndexEntry, error)
	ValueSet(ctx context.Context, hash string) ([]byte, error)
}

// ValueSetStore is the slice of the value set repository the sync works against.
type ValueSetStore interface {
	StoredHashes(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, keepHashes []string, newRecords []storage.ValueSetRecord) error
}

// ValueSetSync reconciles the value set collection by the same hash diff as
// the rule sync: index fetch errors abort the run, per-entry body failures
// skip that entry.
type ValueSetSync struct {
	feed   ValueSetFeed
	store  ValueSetStore
	cache  Invalidator
	logger *slog.Logger
}

func NewValueSetSync(feed ValueSetFeed, store ValueSetStore, cache Invalidator, logger *slog.Logger) *ValueSetSync {
	return &ValueSetSync{feed: feed, store: store, cache: cache, logger: logger}
}

func (s *ValueSetSync) Name() string { return "valueset-sync" }

func (s *ValueSetSync) Run(ctx context.Context) error {
	index, err := s.feed.ValueSetIndex(ctx)
	if err != nil {
		return newUpstreamError("failed to fetch value set index", err)
	}

	stored, err := s.store.StoredHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored value set hashes: %w", err)
	}
	have := make(map[string]bool, len(stored))
	for _, h := range stored {
		have[h] = true
	}

	keep := make([]string, 0, len(index))
	var fresh []storage.ValueSetRecord
	skipped := 0
	for _, entry := range index {
		if have[entry.Hash] {
			keep = append(keep, entry.Hash)
			continue
		}

		body, err := s.feed.ValueSet(ctx, entry.Hash)
		if err != nil {
			skipped++
			s.logger.Warn("skipping value set body fetch",
				slog.String("id", entry.ID),
				slog.String("hash", entry.Hash),
				slog.String("error", err.Error()))
			continue
		}
		if hash, err := crypto.HashJSON(body); err != nil || hash != entry.Hash {
			skipped++
			s.logger.Warn("value set body does not match its content hash",
				slog.String("id", entry.ID),
				slog.String("hash", entry.Hash))
			continue
		}

		keep = append(keep, entry.Hash)
		fresh = append(fresh, storage.ValueSetRecord{
			ContentHash: entry.Hash,
			Identifier:  entry.ID,
			RawBody:     body,
		})
	}

	if err := s.store.Reconcile(ctx, keep, fresh); err != nil {
		return fmt.Errorf("value set reconciliation failed: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}

	s.logger.Info("value sets synchronized",
		slog.Int("kept", len(keep)-len(fresh)),
		slog.Int("added", len(fresh)),
		slog.Int("skipped", skipped))
	return nil
}
