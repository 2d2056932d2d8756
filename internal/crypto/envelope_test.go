package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
)

var testCredential = []byte(`{"credential":"HC1:NCFOXN...","format":"dcc"}`)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Scheme
		wantErr bool
	}{
		{name: "cbc scheme", input: "RSAOAEPWithSHA256AESCBC", want: SchemeRSAOAEPWithSHA256AESCBC},
		{name: "gcm scheme", input: "RSAOAEPWithSHA256AESGCM", want: SchemeRSAOAEPWithSHA256AESGCM},
		{name: "unknown scheme", input: "RSAOAEPWithSHA256AESCTR", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "wrong case", input: "rsaoaepwithsha256aescbc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScheme(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseScheme(%q) expected error, got nil", tt.input)
				}
				var ce *CryptoError
				if !errors.As(err, &ce) || ce.Code() != ErrCodeUnsupportedScheme {
					t.Errorf("ParseScheme(%q) error code = %v, want %v", tt.input, err, ErrCodeUnsupportedScheme)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheme(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheme(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testRSAKey(t)
	iv := []byte("0123456789abcdef")

	tests := []struct {
		name   string
		scheme Scheme
		iv     []byte
	}{
		{name: "cbc with explicit iv", scheme: SchemeRSAOAEPWithSHA256AESCBC, iv: iv},
		{name: "cbc with default iv", scheme: SchemeRSAOAEPWithSHA256AESCBC, iv: nil},
		{name: "gcm with explicit iv", scheme: SchemeRSAOAEPWithSHA256AESGCM, iv: iv},
		{name: "gcm with default iv", scheme: SchemeRSAOAEPWithSHA256AESGCM, iv: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encrypt(tt.scheme, testCredential, &key.PublicKey, tt.iv)
			if err != nil {
				t.Fatalf("Encrypt() returned error: %v", err)
			}
			if bytes.Contains(data.DataEncrypted, testCredential) {
				t.Fatal("ciphertext contains plaintext")
			}

			plaintext, err := Decrypt(tt.scheme, data, key, tt.iv)
			if err != nil {
				t.Fatalf("Decrypt() returned error: %v", err)
			}
			if !bytes.Equal(plaintext, testCredential) {
				t.Errorf("Decrypt() = %q, want %q", plaintext, testCredential)
			}
		})
	}
}

func TestEncryptInvalidIV(t *testing.T) {
	key := testRSAKey(t)

	for _, n := range []int{8, 12, 15, 17, 32} {
		_, err := Encrypt(SchemeRSAOAEPWithSHA256AESCBC, testCredential, &key.PublicKey, make([]byte, n))
		if err == nil {
			t.Fatalf("Encrypt() with %d-byte iv expected error, got nil", n)
		}
		var ce *CryptoError
		if !errors.As(err, &ce) || ce.Code() != ErrCodeInvalidParameter {
			t.Errorf("Encrypt() with %d-byte iv error code = %v, want %v", n, err, ErrCodeInvalidParameter)
		}
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := testRSAKey(t)
	other := testRSAKey(t)

	for _, scheme := range []Scheme{SchemeRSAOAEPWithSHA256AESCBC, SchemeRSAOAEPWithSHA256AESGCM} {
		data, err := Encrypt(scheme, testCredential, &key.PublicKey, nil)
		if err != nil {
			t.Fatalf("Encrypt() returned error: %v", err)
		}

		_, err = Decrypt(scheme, data, other, nil)
		if err == nil {
			t.Fatalf("Decrypt(%s) with wrong key expected error, got nil", scheme)
		}
		var ce *CryptoError
		if !errors.As(err, &ce) || ce.Code() != ErrCodeDecryption {
			t.Errorf("Decrypt(%s) error code = %v, want %v", scheme, err, ErrCodeDecryption)
		}
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := testRSAKey(t)

	data, err := Encrypt(SchemeRSAOAEPWithSHA256AESGCM, testCredential, &key.PublicKey, nil)
	if err != nil {
		t.Fatalf("Encrypt() returned error: %v", err)
	}

	data.DataEncrypted[0] ^= 0xff
	if _, err := Decrypt(SchemeRSAOAEPWithSHA256AESGCM, data, key, nil); err == nil {
		t.Fatal("Decrypt() of tampered GCM ciphertext expected error, got nil")
	}
}

func TestDecryptWrongIV(t *testing.T) {
	key := testRSAKey(t)
	iv := []byte("0123456789abcdef")

	data, err := Encrypt(SchemeRSAOAEPWithSHA256AESGCM, testCredential, &key.PublicKey, iv)
	if err != nil {
		t.Fatalf("Encrypt() returned error: %v", err)
	}

	// GCM authenticates the nonce, so a different IV must fail closed
	if _, err := Decrypt(SchemeRSAOAEPWithSHA256AESGCM, data, key, nil); err == nil {
		t.Fatal("Decrypt() with mismatched iv expected error, got nil")
	}
}

func TestDecryptCBCBadPadding(t *testing.T) {
	key := testRSAKey(t)

	data, err := Encrypt(SchemeRSAOAEPWithSHA256AESCBC, testCredential, &key.PublicKey, nil)
	if err != nil {
		t.Fatalf("Encrypt() returned error: %v", err)
	}

	// truncate to a non-block-aligned length
	data.DataEncrypted = data.DataEncrypted[:len(data.DataEncrypted)-1]
	_, err = Decrypt(SchemeRSAOAEPWithSHA256AESCBC, data, key, nil)
	if err == nil {
		t.Fatal("Decrypt() of truncated CBC ciphertext expected error, got nil")
	}
	var ce *CryptoError
	if !errors.As(err, &ce) || ce.Code() != ErrCodeDecryption {
		t.Errorf("Decrypt() error code = %v, want %v", err, ErrCodeDecryption)
	}
}

func TestPKCS7Padding(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 100} {
		data := bytes.Repeat([]byte{0xaa}, n)
		padded := padPKCS7(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("padPKCS7(%d bytes) length %d is not block aligned", n, len(padded))
		}
		unpadded, err := unpadPKCS7(padded, 16)
		if err != nil {
			t.Fatalf("unpadPKCS7 returned error: %v", err)
		}
		if !bytes.Equal(unpadded, data) {
			t.Errorf("unpadPKCS7 round trip failed for %d bytes", n)
		}
	}

	// corrupt padding byte values
	bad := bytes.Repeat([]byte{0x11}, 16)
	bad[15] = 0
	if _, err := unpadPKCS7(bad, 16); err == nil {
		t.Error("unpadPKCS7 with zero padding byte expected error, got nil")
	}
	bad[15] = 17
	if _, err := unpadPKCS7(bad, 16); err == nil {
		t.Error("unpadPKCS7 with oversized padding byte expected error, got nil")
	}
}
