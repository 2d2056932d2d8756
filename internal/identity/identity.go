// Package identity builds the service identity document: a DID-style JSON
// document listing the service's public keys as verification methods.
// Wallets use it to discover the envelope encryption key, decorators use it
// to discover the token verification keys.
package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eu-digital-green-certificates/dgca-validation-service-sub000/internal/crypto"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const verificationMethodType = "JsonWebKey2020"

// Document is the published identity document.
type Document struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
}

// VerificationMethod is a single public key entry in the identity document.
type VerificationMethod struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Controller   string          `json:"controller"`
	PublicKeyJwk json.RawMessage `json:"publicKeyJwk"`
}

// Provider builds identity documents from the service key store.
type Provider struct {
	serviceURL string
	keys       *crypto.KeyStore
}

// NewProvider creates a provider rooted at serviceURL. A trailing slash on
// serviceURL is dropped so method IDs are stable.
func NewProvider(serviceURL string, keys *crypto.KeyStore) *Provider {
	return &Provider{
		serviceURL: strings.TrimSuffix(serviceURL, "/"),
		keys:       keys,
	}
}

// Document returns the full identity document: every encryption key and
// every signing key in the store, each as one verification method.
func (p *Provider) Document() (*Document, error) {
	doc := &Document{
		ID: p.serviceURL + "/identity",
	}

	for _, alias := range p.keys.RSAAliases() {
		key, err := p.keys.EncryptionKey(alias)
		if err != nil {
			return nil, err
		}
		jwkKey, err := crypto.RSAPublicKeyToJWK(&key.PublicKey, alias, p.keys.Certificate(alias))
		if err != nil {
			return nil, err
		}
		method, err := p.method(alias, jwkKey)
		if err != nil {
			return nil, err
		}
		doc.VerificationMethod = append(doc.VerificationMethod, method)
	}

	for _, alias := range p.keys.ECAliases() {
		key, err := p.keys.SigningKey(alias)
		if err != nil {
			return nil, err
		}
		jwkKey, err := crypto.ECPublicKeyToJWK(&key.PublicKey, alias, p.keys.Certificate(alias))
		if err != nil {
			return nil, err
		}
		method, err := p.method(alias, jwkKey)
		if err != nil {
			return nil, err
		}
		doc.VerificationMethod = append(doc.VerificationMethod, method)
	}

	return doc, nil
}

// FilteredDocument returns the identity document reduced to verification
// methods matching element (the path segment after /identity/, e.g.
// "verificationMethod") and, when non-empty, the method type fragment
// (e.g. "JsonWebKey2020"). Unknown elements or types yield an empty method
// list, not an error.
func (p *Provider) FilteredDocument(element, methodType string) (*Document, error) {
	doc, err := p.Document()
	if err != nil {
		return nil, err
	}
	if element == "" {
		return doc, nil
	}

	prefix := fmt.Sprintf("%s/identity/%s/", p.serviceURL, element)
	filtered := make([]VerificationMethod, 0, len(doc.VerificationMethod))
	for _, m := range doc.VerificationMethod {
		if !strings.HasPrefix(m.ID, prefix) {
			continue
		}
		if methodType != "" && m.Type != methodType {
			continue
		}
		filtered = append(filtered, m)
	}
	doc.VerificationMethod = filtered
	return doc, nil
}

func (p *Provider) method(alias string, key jwk.Key) (VerificationMethod, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return VerificationMethod{}, fmt.Errorf("failed to marshal JWK for %q: %w", alias, err)
	}

	return VerificationMethod{
		ID:           fmt.Sprintf("%s/identity/verificationMethod/%s#%s", p.serviceURL, verificationMethodType, alias),
		Type:         verificationMethodType,
		Controller:   p.serviceURL,
		PublicKeyJwk: raw,
	}, nil
}
