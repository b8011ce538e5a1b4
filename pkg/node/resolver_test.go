package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-protocol/weft-go/pkg/identity"
)

func TestStaticResolver(t *testing.T) {
	peerA := identity.PeerAddress{0: 0xA}
	peerB := identity.PeerAddress{0: 0xB}

	r := StaticResolver{}
	r.Add(peerA, "192.0.2.1:9433")

	endpoint, err := r.Resolve(context.Background(), peerA)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1:9433", endpoint)

	_, err = r.Resolve(context.Background(), peerB)
	assert.ErrorIs(t, err, ErrUnknownPeer)

	// Add replaces an existing entry.
	r.Add(peerA, "192.0.2.2:9433")
	endpoint, err = r.Resolve(context.Background(), peerA)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.2:9433", endpoint)
}

func TestResolverFunc(t *testing.T) {
	peer := identity.PeerAddress{0: 1}
	called := false

	r := ResolverFunc(func(_ context.Context, p identity.PeerAddress) (string, error) {
		called = true
		assert.Equal(t, peer, p)
		return "203.0.113.5:1234", nil
	})

	endpoint, err := r.Resolve(context.Background(), peer)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "203.0.113.5:1234", endpoint)
}
