package identity

import (
	"errors"
	"testing"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	id, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral failed: %v", err)
	}

	first := DeriveAddress(id.Certificate())
	second := DeriveAddressFromDER(id.Certificate().Raw)
	if first != second {
		t.Errorf("same certificate derived different addresses: %s vs %s", first, second)
	}
	if first != id.Address() {
		t.Errorf("identity address %s does not match derived %s", id.Address(), first)
	}
	if first.IsZero() {
		t.Error("derived address is zero")
	}
}

func TestDeriveAddressDistinct(t *testing.T) {
	a, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral failed: %v", err)
	}
	b, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral failed: %v", err)
	}

	if a.Address() == b.Address() {
		t.Error("two identities derived the same address")
	}
}

func TestPeerAddressStringRoundTrip(t *testing.T) {
	id, err := GenerateEphemeral()
	if err != nil {
		t.Fatalf("GenerateEphemeral failed: %v", err)
	}
	addr := id.Address()

	parsed, err := ParsePeerAddress(addr.String())
	if err != nil {
		t.Fatalf("ParsePeerAddress failed: %v", err)
	}
	if parsed != addr {
		t.Errorf("round trip changed address: %s vs %s", parsed, addr)
	}

	if len(addr.String()) != AddressSize*2 {
		t.Errorf("hex form length: got %d, want %d", len(addr.String()), AddressSize*2)
	}
	if len(addr.ShortString()) != 16 {
		t.Errorf("short form length: got %d, want 16", len(addr.ShortString()))
	}
}

func TestParsePeerAddressInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not hex", input: "zz"},
		{name: "too short", input: "abcd"},
		{name: "too long", input: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeffff"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePeerAddress(tt.input); !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ParsePeerAddress(%q): got %v, want ErrInvalidAddress", tt.input, err)
			}
		})
	}
}

func TestAddressFromBytes(t *testing.T) {
	raw := make([]byte, AddressSize)
	raw[0] = 0xAB

	addr, err := AddressFromBytes(raw)
	if err != nil {
		t.Fatalf("AddressFromBytes failed: %v", err)
	}
	if addr[0] != 0xAB {
		t.Errorf("first byte: got %#x", addr[0])
	}

	// The address must not alias the input.
	raw[0] = 0xCD
	if addr[0] != 0xAB {
		t.Error("address aliases input slice")
	}

	if _, err := AddressFromBytes(raw[:16]); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("short input: got %v, want ErrInvalidAddress", err)
	}
}

func TestPeerAddressZero(t *testing.T) {
	var zero PeerAddress
	if !zero.IsZero() {
		t.Error("zero value not reported as zero")
	}

	bytes := zero.Bytes()
	bytes[0] = 1
	if !zero.IsZero() {
		t.Error("Bytes() aliases the address")
	}
}
