package identity

import (
	"crypto/x509"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateIdentity(t *testing.T) {
	ks, err := NewLocalKeystore()
	if err != nil {
		t.Fatalf("NewLocalKeystore failed: %v", err)
	}
	id, err := Generate(ks)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	cert := id.Certificate()
	now := time.Now()
	if now.Before(cert.NotBefore) {
		t.Error("certificate not yet valid immediately after generation")
	}
	if now.After(cert.NotAfter) {
		t.Error("certificate already expired after generation")
	}
	if cert.IsCA {
		t.Error("identity certificate must not be a CA")
	}

	hasServer, hasClient := false, false
	for _, u := range cert.ExtKeyUsage {
		switch u {
		case x509.ExtKeyUsageServerAuth:
			hasServer = true
		case x509.ExtKeyUsageClientAuth:
			hasClient = true
		}
	}
	if !hasServer || !hasClient {
		t.Error("certificate must allow both server and client auth")
	}

	if id.Expired(now) {
		t.Error("fresh identity reported expired")
	}
	if !id.Expired(now.Add(2 * certValidity)) {
		t.Error("identity not reported expired far in the future")
	}
}

func TestIdentityPEMRoundTrip(t *testing.T) {
	ks, err := NewLocalKeystore()
	if err != nil {
		t.Fatalf("NewLocalKeystore failed: %v", err)
	}
	id, err := Generate(ks)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	loaded, err := Load(id.CertificatePEM(), ks)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Address() != id.Address() {
		t.Errorf("loaded identity changed address: %s vs %s", loaded.Address(), id.Address())
	}
}

func TestLoadRejectsForeignKey(t *testing.T) {
	id, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral failed: %v", err)
	}
	other, err := NewLocalKeystore()
	if err != nil {
		t.Fatalf("NewLocalKeystore failed: %v", err)
	}

	if _, err := Load(id.CertificatePEM(), other); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("Load with foreign keystore: got %v, want ErrKeyMismatch", err)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	ks, err := NewLocalKeystore()
	if err != nil {
		t.Fatalf("NewLocalKeystore failed: %v", err)
	}

	if _, err := Load([]byte("not pem at all"), ks); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("Load garbage: got %v, want ErrInvalidPEM", err)
	}
}

func TestIdentityFilePersistence(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "peer.crt")
	keyPath := filepath.Join(dir, "peer.key")

	ks, err := NewLocalKeystore()
	if err != nil {
		t.Fatalf("NewLocalKeystore failed: %v", err)
	}
	id, err := Generate(ks)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := id.SaveCertificate(certPath); err != nil {
		t.Fatalf("SaveCertificate failed: %v", err)
	}
	if err := ks.SaveKeyFile(keyPath); err != nil {
		t.Fatalf("SaveKeyFile failed: %v", err)
	}

	loadedKS, err := LoadLocalKeystoreFile(keyPath)
	if err != nil {
		t.Fatalf("LoadLocalKeystoreFile failed: %v", err)
	}
	loaded, err := LoadFile(certPath, loadedKS)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// A restarted process with persisted identity keeps its address.
	if loaded.Address() != id.Address() {
		t.Errorf("persisted identity changed address: %s vs %s", loaded.Address(), id.Address())
	}
}

func TestTLSCertificate(t *testing.T) {
	id, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral failed: %v", err)
	}

	tlsCert := id.TLSCertificate()
	if len(tlsCert.Certificate) != 1 {
		t.Fatalf("chain length: got %d, want 1", len(tlsCert.Certificate))
	}
	if tlsCert.Leaf == nil {
		t.Error("leaf not populated")
	}
	if tlsCert.PrivateKey == nil {
		t.Error("private key not populated")
	}
	if DeriveAddressFromDER(tlsCert.Certificate[0]) != id.Address() {
		t.Error("TLS certificate DER does not derive the identity address")
	}
}
