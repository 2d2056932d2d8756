package validation

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/replay"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/rules"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/session"
	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/token"
)

// InitRequest opens a validation session.
type InitRequest struct {
	// Subject is optional; one is allocated when absent.
	Subject string `json:"subject,omitempty"`

	// PubKey is the wallet's public key (base64 DER, SubjectPublicKeyInfo)
	// later used to verify the signature over the submitted credential.
	PubKey  string `json:"pubKey"`
	KeyType string `json:"keyType"`

	// Callback is an optional URL the result token is POSTed to.
	Callback string `json:"callback,omitempty"`
}

// InitResponse tells the wallet what to encrypt and verify against.
type InitResponse struct {
	Subject  string  `json:"subject"`
	Exp      int64   `json:"exp"`
	Audience string  `json:"aud"`
	EncKey   jwk.Key `json:"encKey"`
	SignKey  jwk.Key `json:"sigKey"`
}

// SubmitRequest carries the encrypted credential envelope.
type SubmitRequest struct {
	// Kid names the service encryption key the symmetric key is wrapped for.
	Kid string `json:"kid"`

	// DCC is the encrypted credential (base64).
	DCC string `json:"dcc"`

	// Sig is the wallet's signature over the plaintext credential (base64).
	Sig string `json:"sig"`

	// EncKey is the wrapped symmetric key (base64).
	EncKey string `json:"encKey"`

	EncScheme string `json:"encScheme"`
	SigAlg    string `json:"sigAlg,omitempty"`
}

// Service wires the protocol steps together. All per-submission state lives
// in the replay guard and the session store.
type Service struct {
	sessions  session.Store
	guard     replay.Guard
	codec     *token.Codec
	keys      *crypto.KeyStore
	encAlias  string
	ruleCache *rules.RuleCache
	valueSets *rules.ValueSetCache
	engine    Engine
	notifier  *CallbackNotifier
	expire    time.Duration
	logger    *slog.Logger
}

type Config struct {
	Sessions      session.Store
	Guard         replay.Guard
	Codec         *token.Codec
	Keys          *crypto.KeyStore
	EncKeyAlias   string
	RuleCache     *rules.RuleCache
	ValueSetCache *rules.ValueSetCache
	Engine        Engine
	Notifier      *CallbackNotifier
	Expire        time.Duration
	Logger        *slog.Logger
}

func NewService(cfg Config) *Service {
	return &Service{
		sessions:  cfg.Sessions,
		guard:     cfg.Guard,
		codec:     cfg.Codec,
		keys:      cfg.Keys,
		encAlias:  cfg.EncKeyAlias,
		ruleCache: cfg.RuleCache,
		valueSets: cfg.ValueSetCache,
		engine:    cfg.Engine,
		notifier:  cfg.Notifier,
		expire:    cfg.Expire,
		logger:    cfg.Logger,
	}
}

// Initialize opens an OPEN session for the subject and returns the service's
// current public keys. A repeated init for the same subject overwrites the
// previous session with a fresh expiry.
func (s *Service) Initialize(ctx context.Context, req *InitRequest) (*InitResponse, error) {
	if req.PubKey == "" {
		return nil, newError(ErrCodeBadRequest, "pubKey is required")
	}
	der, err := base64.StdEncoding.DecodeString(req.PubKey)
	if err != nil {
		return nil, wrapError(ErrCodeBadRequest, err, "pubKey is not valid base64")
	}
	if _, err := x509.ParsePKIXPublicKey(der); err != nil {
		return nil, wrapError(ErrCodeBadRequest, err, "pubKey is not a valid public key")
	}

	subject := req.Subject
	if subject == "" {
		subject = uuid.NewString()
	}

	sess := &session.Session{
		Subject:   subject,
		Status:    session.StatusOpen,
		PublicKey: req.PubKey,
		KeyType:   req.KeyType,
		ExpiresAt: time.Now().Add(s.expire),
		Callback:  req.Callback,
	}
	if err := s.sessions.Store(ctx, sess); err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to store session")
	}

	encKey, err := s.keys.EncryptionKey(s.encAlias)
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "no encryption key available")
	}
	encJWK, err := crypto.RSAPublicKeyToJWK(&encKey.PublicKey, s.encAlias, s.keys.Certificate(s.encAlias))
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to build encryption JWK")
	}

	signAlias, signKey, err := s.keys.ActiveSigningKey()
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "no signing key available")
	}
	signJWK, err := crypto.ECPublicKeyToJWK(&signKey.PublicKey, signAlias, s.keys.Certificate(signAlias))
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to build signing JWK")
	}

	s.logger.Info("session initialized", slog.String("subject", subject))

	return &InitResponse{
		Subject:  subject,
		Exp:      sess.ExpiresAt.Unix(),
		Audience: s.codec.Issuer() + "/validate",
		EncKey:   encJWK,
		SignKey:  signJWK,
	}, nil
}

// Submit processes one encrypted credential under a bearer access token and
// returns the signed result token. The access token's jti is consumed even
// when a later step fails; retries need a fresh token.
func (s *Service) Submit(ctx context.Context, bearer string, req *SubmitRequest) (string, error) {
	access, err := s.codec.ParseAccessToken(ctx, bearer)
	if err != nil {
		return "", wrapError(ErrCodeAuth, err, "access token rejected")
	}

	admitted, err := s.guard.Admit(ctx, access.JTI, time.Unix(access.ExpiresAt, 0))
	if err != nil {
		return "", wrapError(ErrCodeInternal, err, "replay guard unavailable")
	}
	if !admitted {
		return "", newError(ErrCodeAuth, "access token already used")
	}

	sess, err := s.sessions.Fetch(ctx, access.Subject)
	if errors.Is(err, session.ErrNotFound) {
		return "", newError(ErrCodeSessionGone, "no open session for subject")
	}
	if err != nil {
		return "", wrapError(ErrCodeInternal, err, "failed to fetch session")
	}
	if sess.Status != session.StatusOpen {
		return "", newError(ErrCodeSessionGone, "session already consumed")
	}

	plaintext, err := s.decrypt(req)
	if err != nil {
		return "", err
	}
	if err := s.verifyWalletSignature(sess, plaintext, req.Sig); err != nil {
		return "", err
	}

	results, err := s.evaluate(ctx, access, plaintext)
	if err != nil {
		return "", err
	}
	verdict := rules.Evaluate(results)

	resultToken, err := s.buildResultToken(access, sess, verdict, results)
	if err != nil {
		return "", err
	}

	sess.Status = session.StatusReady
	sess.ResultToken = resultToken
	if err := s.sessions.Update(ctx, sess); err != nil {
		// the store only lets one submission win the OPEN to READY transition
		if errors.Is(err, session.ErrConsumed) || errors.Is(err, session.ErrNotFound) {
			return "", wrapError(ErrCodeSessionGone, err, "session already consumed")
		}
		return "", wrapError(ErrCodeInternal, err, "failed to persist result")
	}

	if sess.Callback != "" && s.notifier != nil {
		s.notifier.Notify(sess.Callback, resultToken)
	}

	s.logger.Info("submission processed",
		slog.String("subject", sess.Subject),
		slog.String("verdict", string(verdict)),
		slog.Int("results", len(results)))

	return resultToken, nil
}

// Status returns the result token once the session is READY. ready is false
// while the session is still OPEN.
//
// The channel is not public: callers authenticate with a bearer access token
// whose subject matches the polled one. The token's jti is not consumed
// here, polling repeats with the same token until the result is picked up.
func (s *Service) Status(ctx context.Context, bearer, subject string) (resultToken string, ready bool, err error) {
	access, err := s.codec.ParseAccessToken(ctx, bearer)
	if err != nil {
		return "", false, wrapError(ErrCodeAuth, err, "access token rejected")
	}
	if access.Subject != subject {
		return "", false, newError(ErrCodeAuth, "access token subject mismatch")
	}

	sess, err := s.sessions.Fetch(ctx, subject)
	if errors.Is(err, session.ErrNotFound) {
		return "", false, newError(ErrCodeNotFound, "no session for subject")
	}
	if err != nil {
		return "", false, wrapError(ErrCodeInternal, err, "failed to fetch session")
	}

	if sess.Status != session.StatusReady {
		return "", false, nil
	}
	return sess.ResultToken, true, nil
}

func (s *Service) decrypt(req *SubmitRequest) ([]byte, error) {
	scheme, err := crypto.ParseScheme(req.EncScheme)
	if err != nil {
		return nil, wrapError(ErrCodeCrypto, err, "unsupported encryption scheme")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(req.DCC)
	if err != nil {
		return nil, wrapError(ErrCodeBadRequest, err, "dcc is not valid base64")
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(req.EncKey)
	if err != nil {
		return nil, wrapError(ErrCodeBadRequest, err, "encKey is not valid base64")
	}

	privateKey, err := s.keys.EncryptionKey(req.Kid)
	if err != nil {
		return nil, wrapError(ErrCodeCrypto, err, "unknown encryption key")
	}

	plaintext, err := crypto.Decrypt(scheme, &crypto.EncryptedData{
		DataEncrypted: ciphertext,
		EncKey:        wrappedKey,
	}, privateKey, nil)
	if err != nil {
		return nil, wrapError(ErrCodeCrypto, err, "credential decryption failed")
	}
	return plaintext, nil
}

func (s *Service) verifyWalletSignature(sess *session.Session, plaintext []byte, sig string) error {
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return wrapError(ErrCodeBadRequest, err, "sig is not valid base64")
	}

	der, err := base64.StdEncoding.DecodeString(sess.PublicKey)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "stored session key is corrupt")
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return wrapError(ErrCodeInternal, err, "stored session key is corrupt")
	}

	ok, err := crypto.VerifyWithKey(plaintext, sigBytes, pub)
	if err != nil {
		return wrapError(ErrCodeCrypto, err, "signature verification failed")
	}
	if !ok {
		return newError(ErrCodeCrypto, "credential signature mismatch")
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, access *token.AccessTokenPayload, plaintext []byte) ([]rules.Result, error) {
	conditions := access.Conditions
	if conditions == nil {
		conditions = &token.AccessTokenConditions{}
	}

	// the destination country's rules govern acceptance
	jurisdictionRules, err := s.ruleCache.Rules(ctx, conditions.CountryOfArrival)
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to load rules")
	}
	valueSets, err := s.valueSets.ValueSets(ctx)
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "failed to load value sets")
	}

	results, err := s.engine.Validate(ctx, &EngineInput{
		Credential:     plaintext,
		Conditions:     conditions,
		ValidationType: access.Type,
		Rules:          jurisdictionRules,
		ValueSets:      valueSets,
	})
	if err != nil {
		return nil, wrapError(ErrCodeInternal, err, "rule engine failed")
	}
	return results, nil
}

func (s *Service) buildResultToken(access *token.AccessTokenPayload, sess *session.Session, verdict rules.Outcome, results []rules.Result) (string, error) {
	now := time.Now()
	exp := sess.ExpiresAt.Unix()

	var category []string
	if access.Conditions != nil {
		category = access.Conditions.Category
	}

	confirmation, err := s.codec.Sign(&token.ConfirmationTokenPayload{
		JTI:       uuid.NewString(),
		Subject:   sess.Subject,
		Issuer:    s.codec.Issuer(),
		IssuedAt:  now.Unix(),
		ExpiresAt: exp,
		Result:    verdict,
		Category:  category,
	})
	if err != nil {
		return "", wrapError(ErrCodeInternal, err, "failed to sign confirmation token")
	}

	resultToken, err := s.codec.Sign(&token.ResultTokenPayload{
		Subject:      sess.Subject,
		Issuer:       s.codec.Issuer(),
		IssuedAt:     now.Unix(),
		ExpiresAt:    exp,
		Category:     category,
		Result:       verdict,
		Results:      results,
		Confirmation: confirmation,
	})
	if err != nil {
		return "", wrapError(ErrCodeInternal, err, "failed to sign result token")
	}
	return resultToken, nil
}
