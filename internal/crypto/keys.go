// this file contains the key store that holds the service's long-lived key
// material: the RSA pair used to unwrap credential envelopes and the ECDSA
// P-256 pair(s) used to sign tokens and validation results.
//
// Keys are loaded from PEM files in PKCS#8 format
// (https://datatracker.ietf.org/doc/html/rfc5208) and addressed by alias.

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"sort"
	"sync"
	"time"
)

// KeyUse mirrors the JWK "use" parameter and selects which keys an identity
// document consumer is interested in.
type KeyUse string

const (
	KeyUseEncryption KeyUse = "enc"
	KeyUseSignature  KeyUse = "sig"
)

// KeyStore holds the service key pairs indexed by alias. It is safe for
// concurrent readers once populated; AddRSAKey/AddECKey are only called
// during startup and in tests.
type KeyStore struct {
	mu       sync.RWMutex
	rsaKeys  map[string]*rsa.PrivateKey
	ecKeys   map[string]*ecdsa.PrivateKey
	certs    map[string][]byte
	activeEC string
}

// NewKeyStore returns an empty key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		rsaKeys: make(map[string]*rsa.PrivateKey),
		ecKeys:  make(map[string]*ecdsa.PrivateKey),
		certs:   make(map[string][]byte),
	}
}

// LoadKeyStore builds a key store from two PKCS#8 PEM files: the RSA
// envelope decryption key and the ECDSA signing key. activeSignAlias selects
// which signing alias new tokens are signed with (it must match signAlias or
// a key added later).
func LoadKeyStore(encKeyFile, signKeyFile, encAlias, signAlias, activeSignAlias string) (*KeyStore, error) {
	ks := NewKeyStore()

	encKey, err := readRSAPrivateKeyFromPEMFile(encKeyFile)
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to load encryption key %q", encAlias))
	}
	if err := ks.AddRSAKey(encAlias, encKey); err != nil {
		return nil, err
	}

	signKey, err := readECPrivateKeyFromPEMFile(signKeyFile)
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to load signing key %q", signAlias))
	}
	if err := ks.AddECKey(signAlias, signKey); err != nil {
		return nil, err
	}

	if err := ks.SetActiveSigningAlias(activeSignAlias); err != nil {
		return nil, err
	}
	return ks, nil
}

// AddRSAKey registers an RSA key pair under alias and self-signs the
// certificate published alongside it.
func (ks *KeyStore) AddRSAKey(alias string, key *rsa.PrivateKey) error {
	if alias == "" {
		return NewInvalidParameterError("key alias is empty")
	}
	if key == nil {
		return NewInvalidParameterError("key is nil")
	}
	cert, err := selfSignCertificate(alias, &key.PublicKey, key)
	if err != nil {
		return err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.rsaKeys[alias] = key
	ks.certs[alias] = cert
	return nil
}

// AddECKey registers an ECDSA key pair under alias and self-signs the
// certificate published alongside it.
func (ks *KeyStore) AddECKey(alias string, key *ecdsa.PrivateKey) error {
	if alias == "" {
		return NewInvalidParameterError("key alias is empty")
	}
	if key == nil {
		return NewInvalidParameterError("key is nil")
	}
	if key.Curve != elliptic.P256() {
		return NewKeyManagementError(fmt.Sprintf("signing key %q is not a P-256 key", alias))
	}
	cert, err := selfSignCertificate(alias, &key.PublicKey, key)
	if err != nil {
		return err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.ecKeys[alias] = key
	ks.certs[alias] = cert
	return nil
}

// Certificate returns the DER-encoded self-signed certificate for alias, or
// nil for an unknown alias.
func (ks *KeyStore) Certificate(alias string) []byte {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.certs[alias]
}

// selfSignCertificate issues the certificate carried in the x5c entry of the
// key's published JWK. The key pair is its own issuer; consumers pin the
// service identity via the identity document, not a CA chain.
func selfSignCertificate(alias string, pub, priv any) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to generate certificate serial")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: alias},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(2, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to self-sign certificate for %q", alias))
	}
	return der, nil
}

// SetActiveSigningAlias marks which signing key signs newly issued tokens.
// Rotated-out keys stay in the store so existing tokens keep verifying.
func (ks *KeyStore) SetActiveSigningAlias(alias string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, ok := ks.ecKeys[alias]; !ok {
		return NewKeyManagementError(fmt.Sprintf("active signing alias %q has no key", alias))
	}
	ks.activeEC = alias
	return nil
}

// EncryptionKey returns the RSA key pair registered under alias.
func (ks *KeyStore) EncryptionKey(alias string) (*rsa.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.rsaKeys[alias]
	if !ok {
		return nil, NewKeyManagementError(fmt.Sprintf("no encryption key for alias %q", alias))
	}
	return key, nil
}

// SigningKey returns the ECDSA key pair registered under alias.
func (ks *KeyStore) SigningKey(alias string) (*ecdsa.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.ecKeys[alias]
	if !ok {
		return nil, NewKeyManagementError(fmt.Sprintf("no signing key for alias %q", alias))
	}
	return key, nil
}

// ActiveSigningKey returns the alias and key pair used to sign new tokens.
func (ks *KeyStore) ActiveSigningKey() (string, *ecdsa.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.ecKeys[ks.activeEC]
	if !ok {
		return "", nil, NewKeyManagementError("no active signing key configured")
	}
	return ks.activeEC, key, nil
}

// RSAAliases returns the registered encryption key aliases in sorted order.
func (ks *KeyStore) RSAAliases() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	aliases := make([]string, 0, len(ks.rsaKeys))
	for a := range ks.rsaKeys {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return aliases
}

// ECAliases returns the registered signing key aliases in sorted order.
func (ks *KeyStore) ECAliases() []string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	aliases := make([]string, 0, len(ks.ecKeys))
	for a := range ks.ecKeys {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	return aliases
}

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size.
// minimum key size is 2048 bits (4096 is recommended) - key size must be a multiple of 256
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, NewInvalidParameterError("key size must be at least 2048 bits")
	}
	if bits%256 != 0 {
		return nil, NewInvalidParameterError("key size should be a multiple of 256")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to generate key pair")
	}
	return privateKey, nil
}

// GenerateECKeyPair generates a new ECDSA P-256 key pair.
func GenerateECKeyPair() (*ecdsa.PrivateKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to generate key pair")
	}
	return privateKey, nil
}

// SavePrivateKeyToPEMFile saves a private key to a PEM file in PKCS#8 format.
func SavePrivateKeyToPEMFile(privateKey any, filename string) error {
	privBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return WrapKeyManagementError(err, "failed to marshal private key")
	}

	pemBlock := &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privBytes,
	}

	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return WrapKeyManagementError(err, "failed to create file")
	}
	defer file.Close()

	if err := pem.Encode(file, pemBlock); err != nil {
		return WrapKeyManagementError(err, "failed to encode PEM")
	}
	return nil
}

func readPKCS8PrivateKeyFromPEMFile(filename string) (any, error) {
	pemData, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("PEM block is not a private key (type: %s)", block.Type)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
	}
	return key, nil
}

func readRSAPrivateKeyFromPEMFile(filename string) (*rsa.PrivateKey, error) {
	key, err := readPKCS8PrivateKeyFromPEMFile(filename)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}
	return privateKey, nil
}

func readECPrivateKeyFromPEMFile(filename string) (*ecdsa.PrivateKey, error) {
	key, err := readPKCS8PrivateKeyFromPEMFile(filename)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an ECDSA private key")
	}
	return privateKey, nil
}
