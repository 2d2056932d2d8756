// redis.go is the multi-instance session store. Session payloads are
// encrypted at rest so a compromised Redis instance does not leak wallet
// keys or verdicts: the AES-128-GCM key and nonce are derived per subject
// with HKDF-SHA256 from key material only the service instances hold.
//
// The lifecycle status is additionally kept in a plaintext marker key next
// to the encrypted payload. The status carries no sensitive data and lets
// the OPEN to READY transition run as a Lua compare-and-set without the
// script having to decrypt anything.
package session

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/hkdf"
)

const (
	redisKeyPrefix    = "session:subject:"
	redisStatusPrefix = "session:status:"

	derivedKeySize   = 16
	derivedNonceSize = 12
)

// completeScript transitions a session to a terminal status only while the
// marker still says OPEN. KEYS[1] is the status marker, KEYS[2] the payload;
// ARGV[1] is the new ciphertext, ARGV[2] the new status.
var completeScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if not status then
	return -1
end
if status ~= 'OPEN' then
	return 0
end
local ttl = redis.call('PTTL', KEYS[2])
if ttl <= 0 then
	return -1
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
return 1
`)

// RedisStore persists encrypted sessions with a TTL equal to the session's
// remaining lifetime, so Redis expires them on its own.
type RedisStore struct {
	client *redis.Client

	// ikm is the input key material for HKDF, taken from the service
	// signing key. All instances share it, none of it reaches Redis.
	ikm []byte
}

func NewRedisStore(client *redis.Client, ikm []byte) (*RedisStore, error) {
	if len(ikm) == 0 {
		return nil, fmt.Errorf("session store key material is empty")
	}
	return &RedisStore{client: client, ikm: ikm}, nil
}

func (r *RedisStore) Store(ctx context.Context, s *Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s is already expired", s.Subject)
	}

	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ciphertext, err := r.seal(s.Subject, plaintext)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+s.Subject, ciphertext, ttl)
		pipe.Set(ctx, redisStatusPrefix+s.Subject, string(s.Status), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Fetch(ctx context.Context, subject string) (*Session, error) {
	ciphertext, err := r.client.Get(ctx, redisKeyPrefix+subject).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	plaintext, err := r.open(subject, ciphertext)
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Expired(time.Now()) {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ciphertext, err := r.seal(s.Subject, plaintext)
	if err != nil {
		return err
	}

	res, err := completeScript.Run(ctx, r.client,
		[]string{redisStatusPrefix + s.Subject, redisKeyPrefix + s.Subject},
		ciphertext, string(s.Status)).Int()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrConsumed
	default:
		return ErrNotFound
	}
}

// derive produces the per-subject AES key and GCM nonce. The subject acts
// as the HKDF salt, so every subject gets an independent key stream.
func (r *RedisStore) derive(subject string) (key, nonce []byte, err error) {
	reader := hkdf.New(sha256.New, r.ikm, []byte(subject), []byte("session-at-rest"))

	key = make([]byte, derivedKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	nonce = make([]byte, derivedNonceSize)
	if _, err := io.ReadFull(reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to derive session nonce: %w", err)
	}
	return key, nonce, nil
}

func (r *RedisStore) seal(subject string, plaintext []byte) ([]byte, error) {
	key, nonce, err := r.derive(subject)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesgcm.Seal(nil, nonce, plaintext, []byte(subject)), nil
}

func (r *RedisStore) open(subject string, ciphertext []byte) ([]byte, error) {
	key, nonce, err := r.derive(subject)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, []byte(subject))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}
	return plaintext, nil
}
