// codec.go builds and parses the compact JWS tokens used on the wire.
//
// All tokens are ES256 compact serializations with kid and typ in the
// protected header. Parsing resolves the verification key from the kid and
// verifies the signature before any claim is read.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
)

const tokenType = "JWT"

// Codec signs outbound tokens with the key store's active signing key and
// verifies inbound tokens against keys resolved by kid.
type Codec struct {
	keys     *crypto.KeyStore
	resolver KeyResolver
	issuer   string
	leeway   time.Duration
}

// NewCodec creates a codec. issuer is stamped into outbound payloads by the
// callers; leeway is the clock skew tolerated when checking exp/iat.
func NewCodec(keys *crypto.KeyStore, resolver KeyResolver, issuer string, leeway time.Duration) *Codec {
	return &Codec{keys: keys, resolver: resolver, issuer: issuer, leeway: leeway}
}

// Issuer returns the issuer URL stamped into outbound tokens.
func (c *Codec) Issuer() string { return c.issuer }

// Sign serializes payload as JSON and signs it as a compact ES256 JWS under
// the active signing key. The key alias becomes the kid header.
func (c *Codec) Sign(payload any) (string, error) {
	alias, key, err := c.keys.ActiveSigningKey()
	if err != nil {
		return "", WrapSigningError(err, "no active signing key")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", WrapSigningError(err, "failed to marshal payload")
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, alias); err != nil {
		return "", WrapSigningError(err, "failed to set kid header")
	}
	if err := hdrs.Set(jws.TypeKey, tokenType); err != nil {
		return "", WrapSigningError(err, "failed to set typ header")
	}

	signed, err := jws.Sign(raw, jws.WithKey(jwa.ES256(), key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", WrapSigningError(err, "failed to sign token")
	}
	return string(signed), nil
}

// verify checks the compact serialization's signature against the key
// resolved for its kid and returns the payload bytes. Only ES256 is
// accepted; the algorithm comes from our own allowlist, never from the
// attacker-controlled header alone.
func (c *Codec) verify(ctx context.Context, serialized string) ([]byte, error) {
	if serialized == "" {
		return nil, NewInvalidTokenError("token is empty")
	}

	msg, err := jws.Parse([]byte(serialized))
	if err != nil {
		return nil, WrapInvalidTokenError(err, "failed to parse token")
	}

	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, NewInvalidTokenError(fmt.Sprintf("expected 1 signature, got %d", len(sigs)))
	}

	hdr := sigs[0].ProtectedHeaders()

	alg, ok := hdr.Algorithm()
	if !ok {
		return nil, NewInvalidTokenError("alg is required in token header")
	}
	if alg != jwa.ES256() {
		return nil, NewInvalidTokenError(fmt.Sprintf("unsupported token algorithm: %s", alg))
	}

	kid, ok := hdr.KeyID()
	if !ok || kid == "" {
		return nil, NewInvalidTokenError("kid is required in token header")
	}

	key, err := c.resolver.ResolveKey(ctx, kid)
	if err != nil {
		return nil, err
	}

	payload, err := jws.Verify([]byte(serialized), jws.WithKey(jwa.ES256(), key))
	if err != nil {
		return nil, WrapInvalidTokenError(err, "token signature verification failed")
	}
	return payload, nil
}

// ParseAccessToken verifies a bearer access token and returns its payload.
// Expired tokens (beyond leeway) are rejected.
func (c *Codec) ParseAccessToken(ctx context.Context, serialized string) (*AccessTokenPayload, error) {
	payload, err := c.verify(ctx, serialized)
	if err != nil {
		return nil, err
	}

	var access AccessTokenPayload
	if err := json.Unmarshal(payload, &access); err != nil {
		return nil, WrapInvalidTokenError(err, "failed to parse access token payload")
	}

	if access.JTI == "" {
		return nil, NewInvalidTokenError("access token has no jti")
	}
	if access.Subject == "" {
		return nil, NewInvalidTokenError("access token has no sub")
	}

	now := time.Now()
	if access.ExpiresAt > 0 && now.Add(-c.leeway).After(time.Unix(access.ExpiresAt, 0)) {
		return nil, NewExpiredTokenError("access token expired")
	}
	if access.IssuedAt > 0 && time.Unix(access.IssuedAt, 0).After(now.Add(c.leeway)) {
		return nil, NewInvalidTokenError("access token issued in the future")
	}

	return &access, nil
}

// ParseResultToken verifies a result token and returns its payload.
// Used by the status channel and by tests; the submission path only builds.
func (c *Codec) ParseResultToken(ctx context.Context, serialized string) (*ResultTokenPayload, error) {
	payload, err := c.verify(ctx, serialized)
	if err != nil {
		return nil, err
	}

	var result ResultTokenPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, WrapInvalidTokenError(err, "failed to parse result token payload")
	}
	return &result, nil
}
