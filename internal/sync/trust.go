// Package sync holds the scheduled reconciliation jobs that keep local
// trust material (signer certificates, rules, value sets) consistent with
// the upstream gateway, plus the scheduler that runs them under a
// cluster-wide lock.
package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/gateway"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/storage"
)

// TrustFeed is the slice of the gateway client the trust sync needs.
type TrustFeed interface {
	KidList(ctx context.Context) ([]string, error)
	NextCertificate(ctx context.Context, resumeToken string) (*gateway.Certificate, error)
}

// TrustStore is the slice of the trust list repository the sync writes to.
type TrustStore interface {
	Reconcile(ctx context.Context, fresh []storage.TrustListItem) error
}

// TrustSync reconciles the signer certificate set: one call for the
// authoritative kid set, then the resume-token paginated certificate feed.
// Any page-fetch error aborts the whole run and keeps the prior trust data.
type TrustSync struct {
	feed   TrustFeed
	store  TrustStore
	logger *slog.Logger
}

func NewTrustSync(feed TrustFeed, store TrustStore, logger *slog.Logger) *TrustSync {
	return &TrustSync{feed: feed, store: store, logger: logger}
}

func (s *TrustSync) Name() string { return "trust-sync" }

func (s *TrustSync) Run(ctx context.Context) error {
	kids, err := s.feed.KidList(ctx)
	if err != nil {
		return newUpstreamError("failed to fetch authoritative kid set", err)
	}

	authoritative := make(map[string]bool, len(kids))
	for _, kid := range kids {
		authoritative[kid] = true
	}

	var fresh []storage.TrustListItem
	skipped := 0
	token := ""
	for {
		cert, err := s.feed.NextCertificate(ctx, token)
		if err != nil {
			// abort the entire run, previous trust data stays in place
			return newUpstreamError("certificate feed aborted", err)
		}
		if cert == nil {
			break
		}
		token = cert.NextResumeToken

		// accept only certificates the authoritative set vouches for
		if !authoritative[cert.Kid] || len(cert.Body) == 0 {
			skipped++
			s.logger.Warn("skipping certificate page",
				slog.String("kid", cert.Kid),
				slog.Bool("in_authoritative_set", authoritative[cert.Kid]),
				slog.Int("body_bytes", len(cert.Body)))
			continue
		}

		fresh = append(fresh, storage.TrustListItem{
			Kid:            cert.Kid,
			RawCertificate: cert.Body,
		})
	}

	// an empty fresh set is authoritative here: both the kid set fetch and
	// the full page walk succeeded, so the upstream genuinely has nothing
	if err := s.store.Reconcile(ctx, fresh); err != nil {
		return fmt.Errorf("trust list reconciliation failed: %w", err)
	}

	s.logger.Info("trust list synchronized",
		slog.Int("certificates", len(fresh)),
		slog.Int("skipped", skipped))
	return nil
}
