package identity

import (
	"crypto"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Validity bounds for generated identity certificates.
const (
	// certBackdate tolerates clock skew between peers.
	certBackdate = 1 * time.Hour

	// certValidity is how long a generated certificate lives.
	certValidity = 365 * 24 * time.Hour
)

// ErrKeyMismatch reports a loaded certificate whose public key does not
// belong to the supplied keystore.
var ErrKeyMismatch = errors.New("identity: certificate public key does not match keystore")

// Identity is a peer's certificate plus the keystore holding its key.
// It is read-only after creation and safe to share across connections.
type Identity struct {
	cert *x509.Certificate
	ks   Keystore
	addr PeerAddress
}

// Generate creates a fresh self-signed certificate with the keystore's
// key and derives the identity's address from it.
func Generate(ks Keystore) (*Identity, error) {
	signer := ks.Signer()

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "weft peer",
			Organization: []string{"weft"},
		},
		NotBefore:             now.Add(-certBackdate),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse created certificate: %w", err)
	}

	return &Identity{cert: cert, ks: ks, addr: DeriveAddress(cert)}, nil
}

// GenerateEphemeral creates a once-per-process identity with a fresh
// in-process key.
func GenerateEphemeral() (*Identity, error) {
	ks, err := NewLocalKeystore()
	if err != nil {
		return nil, err
	}
	return Generate(ks)
}

// Load rebuilds an identity from a persisted PEM certificate and the
// keystore holding its key. The certificate must have been created for
// that key.
func Load(certPEM []byte, ks Keystore) (*Identity, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidPEM
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	pub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(ks.Signer().Public()) {
		return nil, ErrKeyMismatch
	}

	return &Identity{cert: cert, ks: ks, addr: DeriveAddress(cert)}, nil
}

// LoadFile reads a persisted certificate from a PEM file.
func LoadFile(path string, ks Keystore) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data, ks)
}

// Address returns the peer address derived from the certificate.
func (id *Identity) Address() PeerAddress {
	return id.addr
}

// Certificate returns the identity certificate.
func (id *Identity) Certificate() *x509.Certificate {
	return id.cert
}

// Keystore returns the keystore holding the identity's key.
func (id *Identity) Keystore() Keystore {
	return id.ks
}

// CertificatePEM encodes the certificate to PEM format.
func (id *Identity) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: id.cert.Raw,
	})
}

// SaveCertificate writes the certificate to a PEM file.
func (id *Identity) SaveCertificate(path string) error {
	return os.WriteFile(path, id.CertificatePEM(), 0644)
}

// Expired reports whether the certificate is outside its validity
// window at the given time.
func (id *Identity) Expired(at time.Time) bool {
	return at.Before(id.cert.NotBefore) || at.After(id.cert.NotAfter)
}

// TLSCertificate returns the identity in the form the TLS stack
// consumes. The private key stays behind the keystore's signer.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.cert.Raw},
		PrivateKey:  id.ks.Signer(),
		Leaf:        id.cert,
	}
}
