package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/weft-protocol/weft-go/pkg/identity"
)

// ErrUnknownPeer is returned when a resolver has no endpoint for the
// requested peer.
var ErrUnknownPeer = errors.New("node: no endpoint known for peer")

// Resolver maps a peer address to the "host:port" endpoint it can be
// dialed at. How the mapping is obtained (static config, discovery,
// a rendezvous service) is up to the implementation; the node only
// asks at dial time.
type Resolver interface {
	Resolve(ctx context.Context, peer identity.PeerAddress) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, peer identity.PeerAddress) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, peer identity.PeerAddress) (string, error) {
	return f(ctx, peer)
}

// StaticResolver resolves peers from a fixed table. Suitable for
// bootstrap lists and tests. Populate it before handing it to a node;
// the map is not synchronized for concurrent mutation.
type StaticResolver map[identity.PeerAddress]string

// Add registers the endpoint for a peer, replacing any previous entry.
func (r StaticResolver) Add(peer identity.PeerAddress, endpoint string) {
	r[peer] = endpoint
}

// Resolve implements Resolver.
func (r StaticResolver) Resolve(_ context.Context, peer identity.PeerAddress) (string, error) {
	endpoint, ok := r[peer]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPeer, peer.ShortString())
	}
	return endpoint, nil
}
