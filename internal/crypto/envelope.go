// envelope.go implements the hybrid encryption schemes used to protect
// credential transport between the wallet and the validation service.
//
// Each scheme wraps a freshly generated AES-256 key with RSA-OAEP (SHA-256,
// MGF1-SHA-256) and encrypts the payload with the scheme's symmetric cipher.
// The scheme set is closed: scheme names arriving on the wire are parsed into
// the Scheme type and anything else is rejected up front.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Scheme identifies a hybrid encryption construction. The two values below
// are the exact identifiers used on the wire.
type Scheme string

const (
	// SchemeRSAOAEPWithSHA256AESCBC: AES-256-CBC payload cipher with PKCS#7
	// padding, AES key wrapped with RSA-OAEP(SHA-256).
	SchemeRSAOAEPWithSHA256AESCBC Scheme = "RSAOAEPWithSHA256AESCBC"

	// SchemeRSAOAEPWithSHA256AESGCM: AES-256-GCM payload cipher (the IV is
	// used as the GCM nonce, 128-bit tag), same RSA-OAEP key wrap.
	SchemeRSAOAEPWithSHA256AESGCM Scheme = "RSAOAEPWithSHA256AESGCM"
)

const (
	aesKeySize = 32
	ivSize     = 16
)

// ParseScheme validates a wire-level scheme name.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(name) {
	case SchemeRSAOAEPWithSHA256AESCBC, SchemeRSAOAEPWithSHA256AESGCM:
		return Scheme(name), nil
	default:
		return "", NewUnsupportedSchemeError(fmt.Sprintf("unsupported encryption scheme: %q", name))
	}
}

// EncryptedData is the scheme-agnostic envelope produced by Encrypt:
// the payload ciphertext plus the RSA-wrapped symmetric key.
type EncryptedData struct {
	DataEncrypted []byte
	EncKey        []byte
}

// normalizeIV applies the IV contract shared by both schemes: an absent IV
// defaults to 16 zero bytes (a known-weak default kept for wallet
// compatibility), a present IV must be exactly 16 bytes.
func normalizeIV(iv []byte) ([]byte, error) {
	if len(iv) == 0 {
		return make([]byte, ivSize), nil
	}
	if len(iv) != ivSize || len(iv)%8 != 0 {
		return nil, NewInvalidParameterError(fmt.Sprintf("iv must be %d bytes, got %d", ivSize, len(iv)))
	}
	return iv, nil
}

// Encrypt encrypts plaintext under the given scheme for the holder of the
// RSA private key matching publicKey. A nil iv selects the zero-IV default.
func Encrypt(scheme Scheme, plaintext []byte, publicKey *rsa.PublicKey, iv []byte) (*EncryptedData, error) {
	if publicKey == nil {
		return nil, NewInvalidParameterError("public key is nil")
	}

	iv, err := normalizeIV(iv)
	if err != nil {
		return nil, err
	}

	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, WrapInternalError(err, "failed to generate AES key")
	}

	var ciphertext []byte
	switch scheme {
	case SchemeRSAOAEPWithSHA256AESCBC:
		ciphertext, err = encryptCBC(plaintext, key, iv)
	case SchemeRSAOAEPWithSHA256AESGCM:
		ciphertext, err = encryptGCM(plaintext, key, iv)
	default:
		return nil, NewUnsupportedSchemeError(fmt.Sprintf("unsupported encryption scheme: %q", scheme))
	}
	if err != nil {
		return nil, err
	}

	encKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, key, nil)
	if err != nil {
		return nil, WrapInternalError(err, "failed to wrap AES key")
	}

	return &EncryptedData{DataEncrypted: ciphertext, EncKey: encKey}, nil
}

// Decrypt reverses Encrypt. It fails closed: any key-unwrap, padding or tag
// error is reported as a decryption error and no partial plaintext is ever
// returned.
func Decrypt(scheme Scheme, data *EncryptedData, privateKey *rsa.PrivateKey, iv []byte) ([]byte, error) {
	if data == nil {
		return nil, NewInvalidParameterError("encrypted data is nil")
	}
	if privateKey == nil {
		return nil, NewInvalidParameterError("private key is nil")
	}

	iv, err := normalizeIV(iv)
	if err != nil {
		return nil, err
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, data.EncKey, nil)
	if err != nil {
		return nil, WrapDecryptionError(err, "failed to unwrap AES key")
	}

	switch scheme {
	case SchemeRSAOAEPWithSHA256AESCBC:
		return decryptCBC(data.DataEncrypted, key, iv)
	case SchemeRSAOAEPWithSHA256AESGCM:
		return decryptGCM(data.DataEncrypted, key, iv)
	default:
		return nil, NewUnsupportedSchemeError(fmt.Sprintf("unsupported encryption scheme: %q", scheme))
	}
}

func encryptCBC(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create AES cipher")
	}

	padded := padPKCS7(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func decryptCBC(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, WrapDecryptionError(err, "failed to create AES cipher")
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, NewDecryptionError("ciphertext is not a whole number of blocks")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := unpadPKCS7(plaintext, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return unpadded, nil
}

func encryptGCM(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create AES cipher")
	}

	// the 16-byte transport IV doubles as the GCM nonce
	aesgcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, WrapInternalError(err, "failed to create GCM cipher")
	}

	return aesgcm.Seal(nil, iv, plaintext, nil), nil
}

func decryptGCM(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, WrapDecryptionError(err, "failed to create AES cipher")
	}

	aesgcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, WrapDecryptionError(err, "failed to create GCM cipher")
	}

	plaintext, err := aesgcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, WrapDecryptionError(err, "authentication failed")
	}
	return plaintext, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, NewDecryptionError("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, NewDecryptionError("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, NewDecryptionError("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
