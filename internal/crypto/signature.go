package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// Sign computes an ECDSA P-256 signature over the SHA-256 digest of data.
// The signature is ASN.1 DER encoded.
func Sign(data []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, NewInvalidParameterError("signing key is nil")
	}

	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, WrapSignatureError(err, "failed to sign data")
	}
	return sig, nil
}

// Verify reports whether sig is a valid ASN.1 DER ECDSA signature over the
// SHA-256 digest of data. A signature that does not verify is a false return,
// not an error; errors are reserved for unusable inputs.
func Verify(data, sig []byte, key *ecdsa.PublicKey) (bool, error) {
	if key == nil {
		return false, NewInvalidParameterError("verification key is nil")
	}
	if len(sig) == 0 {
		return false, nil
	}

	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(key, digest[:], sig), nil
}

// VerifyWithKey dispatches verification on the concrete public key type.
// Only ECDSA keys are supported for result signatures.
func VerifyWithKey(data, sig []byte, key any) (bool, error) {
	switch k := key.(type) {
	case *ecdsa.PublicKey:
		return Verify(data, sig, k)
	default:
		return false, NewSignatureError(fmt.Sprintf("unsupported verification key type %T", key))
	}
}
