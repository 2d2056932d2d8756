// JWK (JSON Web Key) conversions between the key store's native key types
// and the JWK representation published in the identity document.
// Reference: https://datatracker.ietf.org/doc/html/rfc7517 (JSON Web Key standard)

package crypto

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"

	"github.com/lestrrat-go/jwx/v3/cert"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// RSAPublicKeyToJWK converts an RSA envelope encryption key to JWK format.
// certDER, when present, is published as the key's x5c certificate chain.
func RSAPublicKeyToJWK(publicKey *rsa.PublicKey, keyID string, certDER []byte) (jwk.Key, error) {
	if publicKey == nil {
		return nil, NewInvalidParameterError("public key is nil")
	}
	if keyID == "" {
		return nil, NewInvalidParameterError("keyID is required")
	}

	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to create JWK from RSA public key")
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key ID")
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RSA_OAEP_256()); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set algorithm")
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForEncryption); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key usage")
	}
	if err := setCertChain(key, certDER); err != nil {
		return nil, err
	}

	return key, nil
}

// ECPublicKeyToJWK converts an ECDSA P-256 signing key to JWK format.
// certDER, when present, is published as the key's x5c certificate chain.
func ECPublicKeyToJWK(publicKey *ecdsa.PublicKey, keyID string, certDER []byte) (jwk.Key, error) {
	if publicKey == nil {
		return nil, NewInvalidParameterError("public key is nil")
	}
	if keyID == "" {
		return nil, NewInvalidParameterError("keyID is required")
	}

	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to create JWK from EC public key")
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key ID")
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set algorithm")
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, WrapKeyManagementError(err, "failed to set key usage")
	}
	if err := setCertChain(key, certDER); err != nil {
		return nil, err
	}

	return key, nil
}

// setCertChain attaches certDER as the single x5c entry. The x5c parameter
// carries base64 standard encoding of the DER certificate (RFC 7517 §4.7).
func setCertChain(key jwk.Key, certDER []byte) error {
	if len(certDER) == 0 {
		return nil
	}

	var chain cert.Chain
	if err := chain.AddString(base64.StdEncoding.EncodeToString(certDER)); err != nil {
		return WrapKeyManagementError(err, "failed to build certificate chain")
	}
	if err := key.Set(jwk.X509CertChainKey, &chain); err != nil {
		return WrapKeyManagementError(err, "failed to set certificate chain")
	}
	return nil
}

// JWKToPublicKey exports a JWK to its native Go public key type.
// ECDSA and RSA keys are supported; anything else is a key management error.
func JWKToPublicKey(key jwk.Key) (any, error) {
	if key == nil {
		return nil, NewInvalidParameterError("key is nil")
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, WrapKeyManagementError(err, "failed to export key")
	}

	switch pub := raw.(type) {
	case *ecdsa.PublicKey, *rsa.PublicKey:
		return pub, nil
	case *ecdsa.PrivateKey:
		return &pub.PublicKey, nil
	case *rsa.PrivateKey:
		return &pub.PublicKey, nil
	default:
		return nil, NewKeyManagementError("key is not an EC or RSA key")
	}
}
