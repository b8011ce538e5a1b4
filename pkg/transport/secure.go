package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/weft-protocol/weft-go/pkg/identity"
)

// ErrHandshakeFailure indicates the TLS handshake could not be
// completed. Identity mismatches are reported separately via
// identity.ErrIdentityMismatch.
var ErrHandshakeFailure = errors.New("transport: TLS handshake failed")

// DefaultHandshakeTimeout bounds the TLS handshake when the caller
// does not configure one.
const DefaultHandshakeTimeout = 30 * time.Second

// SecuredConn is a TLS connection whose peer identity has been
// verified. The peer address is derived from the certificate the
// remote side proved possession of during the handshake.
type SecuredConn struct {
	*tls.Conn
	peer identity.PeerAddress
}

// Peer returns the verified address of the remote peer.
func (c *SecuredConn) Peer() identity.PeerAddress {
	return c.peer
}

// SecureOutbound runs the client side of the TLS handshake over conn.
// The expected address must match the identity the peer proves during
// the handshake; on any failure conn is closed.
func SecureOutbound(ctx context.Context, conn net.Conn, id *identity.Identity, policy identity.VerifyPolicy, expected identity.PeerAddress, timeout time.Duration) (*SecuredConn, error) {
	cfg, err := NewClientTLSConfig(id, policy, expected)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return completeHandshake(ctx, tls.Client(conn, cfg), expected, timeout)
}

// SecureInbound runs the server side of the TLS handshake over conn.
// Any peer passing the policy is accepted; the caller learns who
// connected from the returned connection. On any failure conn is
// closed.
func SecureInbound(ctx context.Context, conn net.Conn, id *identity.Identity, policy identity.VerifyPolicy, timeout time.Duration) (*SecuredConn, error) {
	cfg, err := NewServerTLSConfig(id, policy)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return completeHandshake(ctx, tls.Server(conn, cfg), identity.PeerAddress{}, timeout)
}

func completeHandshake(ctx context.Context, tlsConn *tls.Conn, expected identity.PeerAddress, timeout time.Duration) (*SecuredConn, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tlsConn.Close()
		// The policy runs inside the handshake; its verdict travels
		// out through the TLS error chain.
		if errors.Is(err, identity.ErrIdentityMismatch) {
			return nil, fmt.Errorf("handshake rejected peer: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailure, err)
	}

	state := tlsConn.ConnectionState()
	if err := VerifyConnectionState(state); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailure, err)
	}

	peer := identity.DeriveAddress(state.PeerCertificates[0])
	if !expected.IsZero() && peer != expected {
		tlsConn.Close()
		return nil, fmt.Errorf("%w: connected to %s, expected %s",
			identity.ErrIdentityMismatch, peer.ShortString(), expected.ShortString())
	}

	return &SecuredConn{Conn: tlsConn, peer: peer}, nil
}

// Dialer establishes secured outbound connections.
type Dialer struct {
	// Identity presented to peers during the handshake.
	Identity *identity.Identity

	// Policy used to verify peer certificates.
	Policy identity.VerifyPolicy

	// HandshakeTimeout bounds TCP connect plus TLS handshake.
	// Zero means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// Dial connects to address over TCP and secures the connection,
// requiring the remote side to prove the expected identity.
func (d *Dialer) Dial(ctx context.Context, address string, expected identity.PeerAddress) (*SecuredConn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	nd := &net.Dialer{Timeout: timeout}
	raw, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return SecureOutbound(ctx, raw, d.Identity, d.Policy, expected, timeout)
}
