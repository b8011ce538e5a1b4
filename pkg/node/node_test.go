package node

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-protocol/weft-go/pkg/config"
	"github.com/weft-protocol/weft-go/pkg/identity"
	"github.com/weft-protocol/weft-go/pkg/mux"
	"github.com/weft-protocol/weft-go/pkg/transport"
	"github.com/weft-protocol/weft-go/pkg/wire"
)

// startNode creates and starts a node with a fresh ephemeral identity
// listening on a loopback port.
func startNode(t *testing.T, resolver Resolver, mutate func(*Config)) *Node {
	t.Helper()

	id, err := identity.GenerateEphemeral()
	require.NoError(t, err)

	cfg := Config{ListenAddress: "127.0.0.1:0"}
	if mutate != nil {
		mutate(&cfg)
	}

	n, err := New(id, resolver, cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() { n.Stop() })
	return n
}

// nodePair wires two listening nodes that can resolve each other.
func nodePair(t *testing.T, mutateA, mutateB func(*Config)) (*Node, *Node) {
	t.Helper()

	resolver := StaticResolver{}
	a := startNode(t, resolver, mutateA)
	b := startNode(t, resolver, mutateB)
	resolver.Add(a.Address(), a.ListenAddr().String())
	resolver.Add(b.Address(), b.ListenAddr().String())
	return a, b
}

func echoHandler(_ context.Context, _ identity.PeerAddress, payload []byte) ([]byte, error) {
	return append([]byte("echo:"), payload...), nil
}

func withEcho(cfg *Config) {
	cfg.RequestHandler = echoHandler
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewValidation(t *testing.T) {
	id, err := identity.GenerateEphemeral()
	require.NoError(t, err)

	_, err = New(nil, StaticResolver{}, Config{})
	assert.Error(t, err, "nil identity should be rejected")

	_, err = New(id, nil, Config{})
	assert.Error(t, err, "nil resolver should be rejected")

	bad := config.Default()
	bad.MaxConnections = 0
	_, err = New(id, StaticResolver{}, Config{Tunables: bad})
	assert.Error(t, err, "invalid tunables should be rejected")
}

func TestStartStopLifecycle(t *testing.T) {
	id, err := identity.GenerateEphemeral()
	require.NoError(t, err)

	n, err := New(id, StaticResolver{}, Config{ListenAddress: "127.0.0.1:0"})
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))
	require.NotNil(t, n.ListenAddr())
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, n.Stop())
	require.NoError(t, n.Stop(), "Stop must be idempotent")
	assert.ErrorIs(t, n.Start(context.Background()), ErrStopped)
}

func TestRequestResponse(t *testing.T) {
	a, b := nodePair(t, nil, withEcho)

	reply, err := a.Request(context.Background(), b.Address(), []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:ping"), reply)
	assert.Equal(t, 1, a.ConnectionCount())
}

func TestRequestBothDirectionsOneConnection(t *testing.T) {
	a, b := nodePair(t, withEcho, withEcho)
	ctx := context.Background()

	_, err := a.Request(ctx, b.Address(), []byte("from-a"))
	require.NoError(t, err)
	waitFor(t, func() bool { return b.ConnectionCount() == 1 },
		"accepted connection never reached the pool")

	// The reverse direction reuses the pooled inbound connection
	// instead of dialing back.
	reply, err := b.Request(ctx, a.Address(), []byte("from-b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:from-b"), reply)

	assert.Equal(t, 1, a.ConnectionCount())
	assert.Equal(t, 1, b.ConnectionCount())
	assert.Equal(t, []identity.PeerAddress{b.Address()}, a.ConnectedPeers())
	assert.Equal(t, []identity.PeerAddress{a.Address()}, b.ConnectedPeers())
}

func TestNotify(t *testing.T) {
	var mu sync.Mutex
	var gotPayload []byte
	var gotPeer identity.PeerAddress

	a, b := nodePair(t, nil, func(cfg *Config) {
		cfg.NotifyHandler = func(peer identity.PeerAddress, payload []byte) {
			mu.Lock()
			defer mu.Unlock()
			gotPeer = peer
			gotPayload = payload
		}
	})

	require.NoError(t, a.Notify(context.Background(), b.Address(), []byte("heads-up")))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotPayload != nil
	}, "notification never arrived")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("heads-up"), gotPayload)
	assert.Equal(t, a.Address(), gotPeer, "handler must see the sender's verified address")
}

func TestRequestRemoteFailure(t *testing.T) {
	a, b := nodePair(t, nil, func(cfg *Config) {
		cfg.RequestHandler = func(context.Context, identity.PeerAddress, []byte) ([]byte, error) {
			return nil, errors.New("store full")
		}
	})

	_, err := a.Request(context.Background(), b.Address(), []byte("put"))
	var remote *wire.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "store full", remote.Message)

	// A reported failure travels inside a response; the connection
	// stays pooled and usable.
	assert.Equal(t, 1, a.ConnectionCount())
}

func TestRequestUnresolvedPeer(t *testing.T) {
	a := startNode(t, StaticResolver{}, nil)

	unknown := identity.PeerAddress{0: 9}
	_, err := a.Request(context.Background(), unknown, []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownPeer)

	err = a.Notify(context.Background(), unknown, []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestRequestBeforeStart(t *testing.T) {
	id, err := identity.GenerateEphemeral()
	require.NoError(t, err)
	n, err := New(id, StaticResolver{}, Config{})
	require.NoError(t, err)

	_, err = n.Request(context.Background(), identity.PeerAddress{0: 1}, nil)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, n.Notify(context.Background(), identity.PeerAddress{0: 1}, nil), ErrNotStarted)
}

func TestOutboundOnlyNode(t *testing.T) {
	resolver := StaticResolver{}
	b := startNode(t, StaticResolver{}, withEcho)
	resolver.Add(b.Address(), b.ListenAddr().String())

	id, err := identity.GenerateEphemeral()
	require.NoError(t, err)
	a, err := New(id, resolver, Config{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop() })

	assert.Nil(t, a.ListenAddr(), "outbound-only node has no listener")

	reply, err := a.Request(context.Background(), b.Address(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:hello"), reply)
}

func TestConnectionReuseSingleResolve(t *testing.T) {
	b := startNode(t, StaticResolver{}, withEcho)

	var resolves atomic.Int32
	counting := ResolverFunc(func(context.Context, identity.PeerAddress) (string, error) {
		resolves.Add(1)
		return b.ListenAddr().String(), nil
	})
	a := startNode(t, counting, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Request(ctx, b.Address(), []byte("again"))
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), resolves.Load(), "repeat requests must reuse the pooled connection")
	assert.Equal(t, 1, a.ConnectionCount())
}

func TestConcurrentRequests(t *testing.T) {
	a, b := nodePair(t, nil, withEcho)

	const k = 16
	errs := make([]error, k)
	replies := make([][]byte, k)

	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i], errs[i] = a.Request(context.Background(), b.Address(), []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < k; i++ {
		require.NoError(t, errs[i], "request %d", i)
		assert.Equal(t, append([]byte("echo:"), byte(i)), replies[i], "request %d", i)
	}
	assert.Equal(t, 1, a.ConnectionCount(), "concurrent requests share one connection")
}

func TestDuplicateInboundDrained(t *testing.T) {
	b := startNode(t, StaticResolver{}, withEcho)

	id, err := identity.GenerateEphemeral()
	require.NoError(t, err)
	dialer := &transport.Dialer{Identity: id, Policy: &identity.SelfSignedPolicy{}}

	dial := func() *mux.Conn {
		sc, err := dialer.Dial(context.Background(), b.ListenAddr().String(), b.Address())
		require.NoError(t, err)
		return mux.New(sc, sc.Peer(), mux.DefaultConfig())
	}

	first := dial()
	t.Cleanup(func() { first.Close() })
	waitFor(t, func() bool { return b.ConnectionCount() == 1 },
		"first connection never reached the pool")

	// A second connection from the same identity loses to the pooled
	// one and is drained away.
	second := dial()
	t.Cleanup(func() { second.Close() })
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate inbound connection was not closed")
	}
	assert.Equal(t, 1, b.ConnectionCount())

	// The original connection still serves requests.
	reply, err := first.SendRequest(context.Background(), []byte("hi"), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:hi"), reply)
}

func TestDialedIdentityMismatch(t *testing.T) {
	resolver := StaticResolver{}
	b := startNode(t, StaticResolver{}, withEcho)

	// Claim some other identity lives at B's endpoint.
	imposter := identity.PeerAddress{0: 0xEE}
	resolver.Add(imposter, b.ListenAddr().String())
	a := startNode(t, resolver, nil)

	_, err := a.Request(context.Background(), imposter, []byte("x"))
	assert.ErrorIs(t, err, identity.ErrIdentityMismatch)
	assert.Equal(t, 0, a.ConnectionCount(), "rejected connection must not be pooled")
}

func TestIdleConnectionsSwept(t *testing.T) {
	tun := config.Default()
	tun.IdleTimeout = config.Duration(60 * time.Millisecond)
	mutate := func(cfg *Config) {
		cfg.Tunables = tun
		cfg.RequestHandler = echoHandler
	}
	a, b := nodePair(t, mutate, mutate)

	_, err := a.Request(context.Background(), b.Address(), []byte("once"))
	require.NoError(t, err)
	assert.Equal(t, 1, a.ConnectionCount())

	waitFor(t, func() bool { return a.ConnectionCount() == 0 },
		"idle connection never swept")
}

func TestStopClosesConnections(t *testing.T) {
	a, b := nodePair(t, nil, withEcho)

	_, err := a.Request(context.Background(), b.Address(), []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 1, a.ConnectionCount())

	require.NoError(t, a.Stop())
	assert.Equal(t, 0, a.ConnectionCount())

	_, err = a.Request(context.Background(), b.Address(), []byte("ping"))
	assert.ErrorIs(t, err, ErrNotStarted)
}
