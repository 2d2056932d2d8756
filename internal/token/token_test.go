package token

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/identity"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/rules"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testKeyStore(t *testing.T) *crypto.KeyStore {
	t.Helper()

	ks := crypto.NewKeyStore()
	ecKey, err := crypto.GenerateECKeyPair()
	require.NoError(t, err)
	require.NoError(t, ks.AddECKey("validationservicesign", ecKey))
	require.NoError(t, ks.SetActiveSigningAlias("validationservicesign"))
	return ks
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	ks := testKeyStore(t)
	return NewCodec(ks, NewStaticResolver(ks), "https://validation.example.com", 30*time.Second)
}

func testAccessToken(subject string) *AccessTokenPayload {
	now := time.Now()
	return &AccessTokenPayload{
		JTI:       uuid.NewString(),
		Issuer:    "https://decorator.example.com",
		IssuedAt:  now.Unix(),
		Subject:   subject,
		ExpiresAt: now.Add(time.Hour).Unix(),
		Type:      AccessTokenTypeFull,
		Version:   "1.0",
		Conditions: &AccessTokenConditions{
			Lang: "en",
			Type: []string{"v", "r"},
		},
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	c := testCodec(t)
	issued := testAccessToken("subject-1")

	serialized, err := c.Sign(issued)
	require.NoError(t, err)
	require.Len(t, strings.Split(serialized, "."), 3)

	parsed, err := c.ParseAccessToken(context.Background(), serialized)
	require.NoError(t, err)
	require.Equal(t, issued.JTI, parsed.JTI)
	require.Equal(t, issued.Subject, parsed.Subject)
	require.Equal(t, AccessTokenTypeFull, parsed.Type)
	require.NotNil(t, parsed.Conditions)
	require.Equal(t, []string{"v", "r"}, parsed.Conditions.Type)
}

func TestParseAccessTokenRejectsTampering(t *testing.T) {
	c := testCodec(t)

	serialized, err := c.Sign(testAccessToken("subject-1"))
	require.NoError(t, err)

	// swap the payload for one naming a different subject, keep the signature
	parts := strings.Split(serialized, ".")
	other, err := c.Sign(testAccessToken("subject-2"))
	require.NoError(t, err)
	otherParts := strings.Split(other, ".")

	forged := strings.Join([]string{parts[0], otherParts[1], parts[2]}, ".")
	_, err = c.ParseAccessToken(context.Background(), forged)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsUnknownKid(t *testing.T) {
	signer := testCodec(t)

	// verifier trusts a different key store
	verifierKS := testKeyStore(t)
	verifier := NewCodec(verifierKS, NewStaticResolver(verifierKS), "https://validation.example.com", 30*time.Second)

	serialized, err := signer.Sign(testAccessToken("subject-1"))
	require.NoError(t, err)

	// same alias, different key material: signature must not verify
	_, err = verifier.ParseAccessToken(context.Background(), serialized)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	c := testCodec(t)

	expired := testAccessToken("subject-1")
	expired.IssuedAt = time.Now().Add(-2 * time.Hour).Unix()
	expired.ExpiresAt = time.Now().Add(-time.Hour).Unix()

	serialized, err := c.Sign(expired)
	require.NoError(t, err)

	_, err = c.ParseAccessToken(context.Background(), serialized)
	require.Error(t, err)

	var te *TokenError
	require.ErrorAs(t, err, &te)
	require.Equal(t, ErrCodeExpiredToken, te.Code())
}

func TestParseAccessTokenAllowsLeeway(t *testing.T) {
	c := testCodec(t)

	// expired 10s ago, inside the 30s leeway
	barely := testAccessToken("subject-1")
	barely.ExpiresAt = time.Now().Add(-10 * time.Second).Unix()

	serialized, err := c.Sign(barely)
	require.NoError(t, err)

	_, err = c.ParseAccessToken(context.Background(), serialized)
	require.NoError(t, err)
}

func TestParseAccessTokenRejectsMissingClaims(t *testing.T) {
	c := testCodec(t)

	noJTI := testAccessToken("subject-1")
	noJTI.JTI = ""
	serialized, err := c.Sign(noJTI)
	require.NoError(t, err)
	_, err = c.ParseAccessToken(context.Background(), serialized)
	require.Error(t, err)

	noSub := testAccessToken("")
	serialized, err = c.Sign(noSub)
	require.NoError(t, err)
	_, err = c.ParseAccessToken(context.Background(), serialized)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	c := testCodec(t)

	for _, input := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		if _, err := c.ParseAccessToken(context.Background(), input); err == nil {
			t.Errorf("ParseAccessToken(%q) expected error, got nil", input)
		}
	}
}

func TestResultTokenRoundTrip(t *testing.T) {
	c := testCodec(t)

	confirmation, err := c.Sign(&ConfirmationTokenPayload{
		JTI:       uuid.NewString(),
		Subject:   "subject-1",
		Issuer:    c.Issuer(),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Result:    rules.OutcomeOK,
	})
	require.NoError(t, err)

	issued := &ResultTokenPayload{
		Subject:   "subject-1",
		Issuer:    c.Issuer(),
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Result:    rules.OutcomeOK,
		Results: []rules.Result{
			{Identifier: "TR-001", Result: rules.OutcomeOK, Type: rules.ResultTypeTechnicalVerification},
		},
		Confirmation: confirmation,
	}

	serialized, err := c.Sign(issued)
	require.NoError(t, err)

	parsed, err := c.ParseResultToken(context.Background(), serialized)
	require.NoError(t, err)
	require.Equal(t, rules.OutcomeOK, parsed.Result)
	require.Len(t, parsed.Results, 1)
	require.Equal(t, confirmation, parsed.Confirmation)
}

type failingResolver struct {
	err error
}

func (f failingResolver) ResolveKey(context.Context, string) (any, error) {
	return nil, f.err
}

func TestChainResolverReportsBackendErrors(t *testing.T) {
	docErr := errors.New("identity document unreachable")
	jwksErr := errors.New("jwks endpoint returned 502")
	chain := ChainResolver{failingResolver{docErr}, failingResolver{jwksErr}}

	_, err := chain.ResolveKey(context.Background(), "mystery-kid")
	require.Error(t, err)
	require.Contains(t, err.Error(), "mystery-kid")

	// every backend failure stays reachable for diagnosis
	require.ErrorIs(t, err, docErr)
	require.ErrorIs(t, err, jwksErr)
}

func TestDocumentResolver(t *testing.T) {
	ks := crypto.NewKeyStore()
	ecKey, err := crypto.GenerateECKeyPair()
	require.NoError(t, err)
	require.NoError(t, ks.AddECKey("decoratorsign", ecKey))
	require.NoError(t, ks.SetActiveSigningAlias("decoratorsign"))

	provider := identity.NewProvider("https://decorator.example.com", ks)
	doc, err := provider.Document()
	require.NoError(t, err)

	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	resolver := NewDocumentResolver(srv.URL, 5*time.Second, time.Minute, time.Hour, slog.Default())

	key, err := resolver.ResolveKey(context.Background(), "decoratorsign")
	require.NoError(t, err)
	require.NotNil(t, key)
	require.Equal(t, 1, fetches)

	// second lookup is served from cache
	_, err = resolver.ResolveKey(context.Background(), "decoratorsign")
	require.NoError(t, err)
	require.Equal(t, 1, fetches)

	// unknown kid does not trigger a refetch inside the min refresh window
	_, err = resolver.ResolveKey(context.Background(), "unknown")
	require.Error(t, err)
	require.Equal(t, 1, fetches)
}

func TestDocumentResolverEndToEnd(t *testing.T) {
	// decorator signs access tokens; the service verifies them with keys
	// discovered from the decorator's identity document
	decoratorKS := crypto.NewKeyStore()
	decoratorKey, err := crypto.GenerateECKeyPair()
	require.NoError(t, err)
	require.NoError(t, decoratorKS.AddECKey("decoratorsign", decoratorKey))
	require.NoError(t, decoratorKS.SetActiveSigningAlias("decoratorsign"))
	decorator := NewCodec(decoratorKS, NewStaticResolver(decoratorKS), "https://decorator.example.com", 30*time.Second)

	provider := identity.NewProvider("https://decorator.example.com", decoratorKS)
	doc, err := provider.Document()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	serviceKS := testKeyStore(t)
	resolver := ChainResolver{
		NewStaticResolver(serviceKS),
		NewDocumentResolver(srv.URL, 5*time.Second, time.Minute, time.Hour, slog.Default()),
	}
	service := NewCodec(serviceKS, resolver, "https://validation.example.com", 30*time.Second)

	serialized, err := decorator.Sign(testAccessToken("subject-1"))
	require.NoError(t, err)

	parsed, err := service.ParseAccessToken(context.Background(), serialized)
	require.NoError(t, err)
	require.Equal(t, "subject-1", parsed.Subject)
}
