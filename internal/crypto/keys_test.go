package crypto

import (
	"crypto/ecdsa"
	"crypto/x509"
	"path/filepath"
	"testing"
)

func TestKeyStoreAliases(t *testing.T) {
	ks := NewKeyStore()

	rsaKey := testRSAKey(t)
	ecKey := testECKey(t)

	if err := ks.AddRSAKey("enc", rsaKey); err != nil {
		t.Fatalf("AddRSAKey() returned error: %v", err)
	}
	if err := ks.AddECKey("sign", ecKey); err != nil {
		t.Fatalf("AddECKey() returned error: %v", err)
	}
	if err := ks.SetActiveSigningAlias("sign"); err != nil {
		t.Fatalf("SetActiveSigningAlias() returned error: %v", err)
	}

	got, err := ks.EncryptionKey("enc")
	if err != nil {
		t.Fatalf("EncryptionKey() returned error: %v", err)
	}
	if got != rsaKey {
		t.Error("EncryptionKey() returned a different key")
	}

	alias, signKey, err := ks.ActiveSigningKey()
	if err != nil {
		t.Fatalf("ActiveSigningKey() returned error: %v", err)
	}
	if alias != "sign" || signKey != ecKey {
		t.Errorf("ActiveSigningKey() = %q, want %q", alias, "sign")
	}

	if _, err := ks.EncryptionKey("missing"); err == nil {
		t.Error("EncryptionKey() for unknown alias expected error, got nil")
	}
	if _, err := ks.SigningKey("missing"); err == nil {
		t.Error("SigningKey() for unknown alias expected error, got nil")
	}
	if err := ks.SetActiveSigningAlias("missing"); err == nil {
		t.Error("SetActiveSigningAlias() for unknown alias expected error, got nil")
	}
}

func TestKeyStoreSelfSignsCertificates(t *testing.T) {
	ks := NewKeyStore()
	ecKey := testECKey(t)

	if err := ks.AddECKey("sign", ecKey); err != nil {
		t.Fatalf("AddECKey() returned error: %v", err)
	}

	der := ks.Certificate("sign")
	if len(der) == 0 {
		t.Fatal("Certificate() returned no certificate for registered alias")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}
	if cert.Subject.CommonName != "sign" {
		t.Errorf("certificate CN = %q, want %q", cert.Subject.CommonName, "sign")
	}

	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&ecKey.PublicKey) {
		t.Error("certificate public key does not match the registered key")
	}
	if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		t.Errorf("certificate is not self-signed: %v", err)
	}

	if ks.Certificate("missing") != nil {
		t.Error("Certificate() for unknown alias expected nil")
	}
}

func TestKeyStoreRejectsBadInput(t *testing.T) {
	ks := NewKeyStore()

	if err := ks.AddRSAKey("", testRSAKey(t)); err == nil {
		t.Error("AddRSAKey() with empty alias expected error, got nil")
	}
	if err := ks.AddRSAKey("enc", nil); err == nil {
		t.Error("AddRSAKey() with nil key expected error, got nil")
	}
	if err := ks.AddECKey("sign", nil); err == nil {
		t.Error("AddECKey() with nil key expected error, got nil")
	}
}

func TestLoadKeyStoreFromPEMFiles(t *testing.T) {
	dir := t.TempDir()
	encFile := filepath.Join(dir, "enc.pem")
	signFile := filepath.Join(dir, "sign.pem")

	rsaKey, err := GenerateRSAKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateRSAKeyPair() returned error: %v", err)
	}
	ecKey, err := GenerateECKeyPair()
	if err != nil {
		t.Fatalf("GenerateECKeyPair() returned error: %v", err)
	}

	if err := SavePrivateKeyToPEMFile(rsaKey, encFile); err != nil {
		t.Fatalf("SavePrivateKeyToPEMFile() returned error: %v", err)
	}
	if err := SavePrivateKeyToPEMFile(ecKey, signFile); err != nil {
		t.Fatalf("SavePrivateKeyToPEMFile() returned error: %v", err)
	}

	ks, err := LoadKeyStore(encFile, signFile, "enc", "sign", "sign")
	if err != nil {
		t.Fatalf("LoadKeyStore() returned error: %v", err)
	}

	if _, err := ks.EncryptionKey("enc"); err != nil {
		t.Errorf("EncryptionKey() returned error: %v", err)
	}
	if _, err := ks.SigningKey("sign"); err != nil {
		t.Errorf("SigningKey() returned error: %v", err)
	}

	// swapped files must fail key type checks
	if _, err := LoadKeyStore(signFile, encFile, "enc", "sign", "sign"); err == nil {
		t.Error("LoadKeyStore() with swapped key files expected error, got nil")
	}
}

func TestGenerateRSAKeyPairValidation(t *testing.T) {
	if _, err := GenerateRSAKeyPair(1024); err == nil {
		t.Error("GenerateRSAKeyPair(1024) expected error, got nil")
	}
	if _, err := GenerateRSAKeyPair(2100); err == nil {
		t.Error("GenerateRSAKeyPair(2100) expected error, got nil")
	}
}
