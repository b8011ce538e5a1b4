package identity

import (
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// AddressSize is the size of a PeerAddress in bytes.
const AddressSize = 32

// ErrInvalidAddress reports address bytes or text of the wrong shape.
var ErrInvalidAddress = errors.New("identity: invalid peer address")

// PeerAddress names a peer on the network. It is the BLAKE2b-256 digest
// of the peer's certificate in DER form, so both ends of a connection
// derive the same pair of addresses from the certificates they
// exchanged.
//
// PeerAddress is comparable and usable as a map key. The zero value
// means "no address" and never matches a derived one.
type PeerAddress [AddressSize]byte

// DeriveAddress computes the address bound to a certificate.
func DeriveAddress(cert *x509.Certificate) PeerAddress {
	return DeriveAddressFromDER(cert.Raw)
}

// DeriveAddressFromDER computes the address bound to DER certificate bytes.
func DeriveAddressFromDER(der []byte) PeerAddress {
	return PeerAddress(blake2b.Sum256(der))
}

// ParsePeerAddress parses the lowercase hex form produced by String.
func ParsePeerAddress(s string) (PeerAddress, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return AddressFromBytes(raw)
}

// AddressFromBytes converts raw digest bytes into a PeerAddress.
func AddressFromBytes(b []byte) (PeerAddress, error) {
	var addr PeerAddress
	if len(b) != AddressSize {
		return addr, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidAddress, len(b), AddressSize)
	}
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns the digest as a fresh slice.
func (a PeerAddress) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// IsZero reports whether the address is the zero value.
func (a PeerAddress) IsZero() bool {
	return a == PeerAddress{}
}

// String returns the lowercase hex form of the digest.
func (a PeerAddress) String() string {
	return hex.EncodeToString(a[:])
}

// ShortString returns the first eight digest bytes in hex, for logs.
func (a PeerAddress) ShortString() string {
	return hex.EncodeToString(a[:8])
}
