// keyresolver.go handles discovering and caching the public keys used to
// verify inbound access tokens.
//
// Three resolver backends are supported:
//   - StaticResolver: the service's own key store (kid = key alias)
//   - DocumentResolver: a remote identity document listing verification
//     methods; fetched on demand and cached by kid
//   - JWKSResolver: a plain JWKS endpoint, auto-refreshed in the background
//
// Resolvers are chained: the first backend that knows the kid wins.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/identity"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// KeyResolver maps a token kid to a verification key.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid string) (any, error)
}

// StaticResolver resolves kids against the service's own signing keys.
type StaticResolver struct {
	keys *crypto.KeyStore
}

func NewStaticResolver(keys *crypto.KeyStore) *StaticResolver {
	return &StaticResolver{keys: keys}
}

func (r *StaticResolver) ResolveKey(_ context.Context, kid string) (any, error) {
	key, err := r.keys.SigningKey(kid)
	if err != nil {
		return nil, NewKeyNotFoundError(fmt.Sprintf("key not found: %s", kid))
	}
	return &key.PublicKey, nil
}

// DocumentResolver resolves kids against a remote identity document.
//
// The document is fetched lazily: on a cache miss the resolver refetches,
// but never more often than minRefresh; independent of misses a fetch older
// than maxRefresh is considered stale and renewed on next use.
type DocumentResolver struct {
	url        string
	httpClient *http.Client
	minRefresh time.Duration
	maxRefresh time.Duration
	logger     *slog.Logger

	mu        sync.RWMutex
	keys      map[string]any
	fetchedAt time.Time
}

func NewDocumentResolver(url string, timeout, minRefresh, maxRefresh time.Duration, logger *slog.Logger) *DocumentResolver {
	return &DocumentResolver{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		minRefresh: minRefresh,
		maxRefresh: maxRefresh,
		logger:     logger,
		keys:       make(map[string]any),
	}
}

func (r *DocumentResolver) ResolveKey(ctx context.Context, kid string) (any, error) {
	r.mu.RLock()
	key, ok := r.keys[kid]
	fetchedAt := r.fetchedAt
	r.mu.RUnlock()

	if ok && time.Since(fetchedAt) < r.maxRefresh {
		return key, nil
	}

	// miss or stale - refetch unless we refetched very recently
	if time.Since(fetchedAt) >= r.minRefresh {
		if err := r.refresh(ctx); err != nil {
			// a failed refresh does not invalidate previously cached keys
			if ok {
				r.logger.Warn("identity document refresh failed, using cached key",
					slog.String("kid", kid),
					slog.String("error", err.Error()))
				return key, nil
			}
			return nil, WrapKeyNotFoundError(err, fmt.Sprintf("failed to resolve key %s", kid))
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.keys[kid]; ok {
		return key, nil
	}
	return nil, NewKeyNotFoundError(fmt.Sprintf("key not found: %s", kid))
}

// refresh downloads and parses the identity document, replacing the kid map
// in one swap.
func (r *DocumentResolver) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch identity document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity document fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read identity document: %w", err)
	}

	var doc identity.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to parse identity document: %w", err)
	}

	keys := make(map[string]any, len(doc.VerificationMethod))
	for _, method := range doc.VerificationMethod {
		if len(method.PublicKeyJwk) == 0 {
			continue
		}

		jwkKey, err := jwk.ParseKey(method.PublicKeyJwk)
		if err != nil {
			r.logger.Warn("skipping verification method with unparseable JWK",
				slog.String("id", method.ID),
				slog.String("error", err.Error()))
			continue
		}

		kid, ok := jwkKey.KeyID()
		if !ok || kid == "" {
			r.logger.Warn("skipping verification method without kid",
				slog.String("id", method.ID))
			continue
		}

		pub, err := crypto.JWKToPublicKey(jwkKey)
		if err != nil {
			r.logger.Warn("skipping verification method with unsupported key type",
				slog.String("id", method.ID),
				slog.String("kid", kid),
				slog.String("error", err.Error()))
			continue
		}

		keys[kid] = pub
	}

	r.mu.Lock()
	r.keys = keys
	r.fetchedAt = time.Now()
	r.mu.Unlock()

	r.logger.Debug("identity document refreshed",
		slog.String("url", r.url),
		slog.Int("keys", len(keys)))
	return nil
}

// JWKSResolver resolves kids against a JWKS endpoint. The underlying cache
// refreshes in the background via httprc; lookups never block on the remote.
type JWKSResolver struct {
	url   string
	cache *jwk.Cache
}

// NewJWKSResolver registers url with an auto-refreshing JWK cache.
// The initial fetch happens in the background so startup is not blocked.
func NewJWKSResolver(ctx context.Context, url string, minRefresh, maxRefresh time.Duration) (*JWKSResolver, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, WrapKeyNotFoundError(err, "failed to create JWK cache")
	}

	if err := cache.Register(ctx, url,
		jwk.WithMinInterval(minRefresh),
		jwk.WithMaxInterval(maxRefresh),
		jwk.WithWaitReady(false),
	); err != nil {
		return nil, WrapKeyNotFoundError(err, "failed to register JWKS endpoint")
	}

	return &JWKSResolver{url: url, cache: cache}, nil
}

func (r *JWKSResolver) ResolveKey(ctx context.Context, kid string) (any, error) {
	keySet, err := r.cache.Lookup(ctx, r.url)
	if err != nil {
		return nil, WrapKeyNotFoundError(err, "failed to lookup JWK set")
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, NewKeyNotFoundError(fmt.Sprintf("key not found: %s", kid))
	}
	return crypto.JWKToPublicKey(key)
}

// ChainResolver tries each resolver in order and returns the first hit.
// When every backend fails, the returned error carries all backend errors so
// a resolution failure stays diagnosable.
type ChainResolver []KeyResolver

func (c ChainResolver) ResolveKey(ctx context.Context, kid string) (any, error) {
	var errs []error
	for _, r := range c {
		key, err := r.ResolveKey(ctx, kid)
		if err == nil {
			return key, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, NewKeyNotFoundError(fmt.Sprintf("key not found: %s", kid))
	}
	return nil, WrapKeyNotFoundError(errors.Join(errs...), fmt.Sprintf("key not found: %s", kid))
}
