package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/weft-protocol/weft-go/pkg/identity"
)

// ALPNProtocol is the application protocol negotiated during the TLS
// handshake. Both sides must offer it; a peer that negotiates anything
// else is rejected.
const ALPNProtocol = "weft/1"

// NewClientTLSConfig builds the TLS configuration for an outbound
// connection. The peer's certificate is checked by policy rather than
// by chain building: the standard verifier is disabled and the policy
// runs as the VerifyPeerCertificate callback. When expected is
// non-zero the peer must present a certificate hashing to exactly that
// address.
func NewClientTLSConfig(id *identity.Identity, policy identity.VerifyPolicy, expected identity.PeerAddress) (*tls.Config, error) {
	if id == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("verify policy is required")
	}
	return &tls.Config{
		MinVersion:             tls.VersionTLS13,
		MaxVersion:             tls.VersionTLS13,
		Certificates:           []tls.Certificate{id.TLSCertificate()},
		NextProtos:             []string{ALPNProtocol},
		CurvePreferences:       []tls.CurveID{tls.X25519, tls.CurveP256},
		SessionTicketsDisabled: true,
		InsecureSkipVerify:     true, // certificates are self-signed; the policy callback verifies
		VerifyPeerCertificate:  policyCallback(policy, expected),
	}, nil
}

// NewServerTLSConfig builds the TLS configuration for inbound
// connections. Clients must present a certificate; which certificates
// are acceptable is decided by the policy, not by a CA pool.
func NewServerTLSConfig(id *identity.Identity, policy identity.VerifyPolicy) (*tls.Config, error) {
	if id == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("verify policy is required")
	}
	return &tls.Config{
		MinVersion:             tls.VersionTLS13,
		MaxVersion:             tls.VersionTLS13,
		Certificates:           []tls.Certificate{id.TLSCertificate()},
		NextProtos:             []string{ALPNProtocol},
		CurvePreferences:       []tls.CurveID{tls.X25519, tls.CurveP256},
		SessionTicketsDisabled: true,
		ClientAuth:             tls.RequireAnyClientCert,
		InsecureSkipVerify:     true, // certificates are self-signed; the policy callback verifies
		VerifyPeerCertificate:  policyCallback(policy, expected0),
	}, nil
}

// expected0 is the zero address: servers accept any verified identity.
var expected0 identity.PeerAddress

func policyCallback(policy identity.VerifyPolicy, expected identity.PeerAddress) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		_, err := policy.Verify(rawCerts, expected)
		return err
	}
}

// VerifyTLS13 checks that the connection negotiated TLS 1.3.
func VerifyTLS13(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("connection must use TLS 1.3, got version 0x%04x", state.Version)
	}
	return nil
}

// VerifyALPN checks that the connection negotiated the expected
// application protocol.
func VerifyALPN(state tls.ConnectionState) error {
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("connection must negotiate ALPN %q, got %q",
			ALPNProtocol, state.NegotiatedProtocol)
	}
	return nil
}

// VerifyConnectionState performs all post-handshake checks on an
// established connection.
func VerifyConnectionState(state tls.ConnectionState) error {
	if err := VerifyTLS13(state); err != nil {
		return err
	}
	if err := VerifyALPN(state); err != nil {
		return err
	}
	if len(state.PeerCertificates) == 0 {
		return identity.ErrNoPeerCertificate
	}
	return nil
}
