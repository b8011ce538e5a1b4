package identity

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// Verification errors.
var (
	ErrIdentityMismatch       = errors.New("identity: peer address mismatch")
	ErrNoPeerCertificate      = errors.New("identity: no peer certificate presented")
	ErrCertificateExpired     = errors.New("identity: certificate has expired")
	ErrCertificateNotYetValid = errors.New("identity: certificate is not yet valid")
)

// VerifyPolicy decides whether a presented certificate chain is
// acceptable and which address it binds to. expected is the address the
// local end asserted when dialing, or zero for inbound connections
// where the peer is learned rather than asserted.
type VerifyPolicy interface {
	Verify(rawCerts [][]byte, expected PeerAddress) (PeerAddress, error)
}

// SelfSignedPolicy accepts any parseable certificate inside its
// validity window. Trust comes from the digest binding: the TLS
// handshake proves the peer holds the certificate's key, and the digest
// of that certificate is the peer's address. No chain building, no CA
// roots, no hostname checks.
type SelfSignedPolicy struct {
	// AllowExpired skips the validity window check. Off by default: an
	// expired certificate is rejected even though its digest still
	// matches the expected address.
	AllowExpired bool
}

var _ VerifyPolicy = (*SelfSignedPolicy)(nil)

// Verify implements VerifyPolicy.
func (p *SelfSignedPolicy) Verify(rawCerts [][]byte, expected PeerAddress) (PeerAddress, error) {
	var zero PeerAddress
	if len(rawCerts) == 0 {
		return zero, ErrNoPeerCertificate
	}

	// The leaf carries the identity. Extra chain certificates mean
	// nothing under digest trust and are ignored.
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return zero, fmt.Errorf("parse peer certificate: %w", err)
	}

	if !p.AllowExpired {
		now := time.Now()
		if now.Before(cert.NotBefore) {
			return zero, ErrCertificateNotYetValid
		}
		if now.After(cert.NotAfter) {
			return zero, ErrCertificateExpired
		}
	}

	addr := DeriveAddress(cert)
	if !expected.IsZero() && addr != expected {
		return zero, fmt.Errorf("%w: got %s, want %s",
			ErrIdentityMismatch, addr.ShortString(), expected.ShortString())
	}
	return addr, nil
}
