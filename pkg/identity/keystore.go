package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidPEM reports PEM data that is missing or of the wrong block type.
var ErrInvalidPEM = errors.New("identity: invalid PEM data")

// Keystore holds a peer's private key and performs operations with it.
// Nothing outside the keystore sees raw key bytes; deployments backed
// by an external key service implement this interface and keep the key
// there.
type Keystore interface {
	// Signer exposes the key for certificate creation and the TLS
	// handshake.
	Signer() crypto.Signer

	// Sign produces a detached signature over data.
	Sign(data []byte) ([]byte, error)

	// Verify checks a detached signature against a public key.
	Verify(data, sig []byte, pub crypto.PublicKey) bool
}

// LocalKeystore is an in-process Keystore around an ECDSA P-256 key.
type LocalKeystore struct {
	key *ecdsa.PrivateKey
}

var _ Keystore = (*LocalKeystore)(nil)

// NewLocalKeystore generates a fresh P-256 key.
func NewLocalKeystore() (*LocalKeystore, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &LocalKeystore{key: key}, nil
}

// Signer returns the underlying key as a crypto.Signer.
func (ks *LocalKeystore) Signer() crypto.Signer {
	return ks.key
}

// Sign signs the SHA-256 digest of data, returning an ASN.1 DER signature.
func (ks *LocalKeystore) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, ks.key, digest[:])
}

// Verify checks an ASN.1 DER signature over the SHA-256 digest of data.
func (ks *LocalKeystore) Verify(data, sig []byte, pub crypto.PublicKey) bool {
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(ecdsaPub, digest[:], sig)
}

// ExportKeyPEM encodes the private key to PEM format.
func (ks *LocalKeystore) ExportKeyPEM() ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(ks.key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: der,
	}), nil
}

// SaveKeyFile writes the private key to a PEM file with restricted
// permissions.
func (ks *LocalKeystore) SaveKeyFile(path string) error {
	data, err := ks.ExportKeyPEM()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadLocalKeystorePEM decodes a PEM-encoded ECDSA private key.
func LoadLocalKeystorePEM(data []byte) (*LocalKeystore, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return &LocalKeystore{key: key}, nil
}

// LoadLocalKeystoreFile reads a private key from a PEM file.
func LoadLocalKeystoreFile(path string) (*LocalKeystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadLocalKeystorePEM(data)
}
