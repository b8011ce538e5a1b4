package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weft-protocol/weft-go/pkg/config"
	"github.com/weft-protocol/weft-go/pkg/identity"
	"github.com/weft-protocol/weft-go/pkg/log"
	"github.com/weft-protocol/weft-go/pkg/mux"
	"github.com/weft-protocol/weft-go/pkg/pool"
	"github.com/weft-protocol/weft-go/pkg/transport"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("node: already started")
	ErrNotStarted     = errors.New("node: not started")
	ErrStopped        = errors.New("node: stopped")
)

// Config configures a Node.
type Config struct {
	// ListenAddress is the TCP address to accept peers on, e.g.
	// ":9433" or "127.0.0.1:0". Empty makes the node outbound-only.
	ListenAddress string

	// Tunables sets the runtime parameters. Nil means config.Default().
	Tunables *config.Tunables

	// Policy verifies peer certificates on both inbound and outbound
	// connections. Nil means a default SelfSignedPolicy.
	Policy identity.VerifyPolicy

	// Logger receives protocol events from every layer. Optional.
	Logger log.Logger

	// RequestHandler answers requests from peers. When nil every
	// inbound request fails with a "no request handler" result.
	RequestHandler mux.RequestHandler

	// NotifyHandler receives notifications from peers. When nil they
	// are dropped.
	NotifyHandler mux.NotifyHandler
}

// Node ties an identity, the secured transport, the request
// multiplexer and the connection pool into a single peer endpoint.
//
// A node is single-use: New, Start, exchange traffic, Stop. A stopped
// node cannot be restarted; create a new one.
type Node struct {
	id       *identity.Identity
	resolver Resolver
	cfg      Config
	tunables config.Tunables

	dialer *transport.Dialer
	pool   *pool.Pool

	listener net.Listener

	// State
	running atomic.Bool
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a node for the given identity. The resolver supplies
// dial endpoints for peers; everything else is optional.
func New(id *identity.Identity, resolver Resolver, cfg Config) (*Node, error) {
	if id == nil {
		return nil, fmt.Errorf("identity is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}

	tun := cfg.Tunables
	if tun == nil {
		tun = config.Default()
	}
	if err := tun.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tunables: %w", err)
	}
	if cfg.Policy == nil {
		cfg.Policy = &identity.SelfSignedPolicy{}
	}

	n := &Node{
		id:       id,
		resolver: resolver,
		cfg:      cfg,
		tunables: *tun,
	}
	n.dialer = &transport.Dialer{
		Identity:         id,
		Policy:           cfg.Policy,
		HandshakeTimeout: tun.HandshakeTimeout.Std(),
	}

	p, err := pool.New(pool.Config{
		Capacity:     tun.MaxConnections,
		DrainTimeout: tun.DrainTimeout.Std(),
		Logger:       cfg.Logger,
	}, n.dialPeer)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	n.pool = p

	return n, nil
}

// Start opens the listener (when configured) and starts the accept
// loop and the idle sweeper.
func (n *Node) Start(ctx context.Context) error {
	if n.stopped.Load() {
		return ErrStopped
	}
	if n.running.Load() {
		return ErrAlreadyStarted
	}

	n.ctx, n.cancel = context.WithCancel(ctx)

	if n.cfg.ListenAddress != "" {
		listener, err := net.Listen("tcp", n.cfg.ListenAddress)
		if err != nil {
			n.cancel()
			return fmt.Errorf("failed to listen: %w", err)
		}
		n.listener = listener
		n.logListener("", "LISTENING")
	}

	n.running.Store(true)

	if n.listener != nil {
		n.wg.Add(1)
		go n.acceptLoop()
	}

	n.wg.Add(1)
	go n.idleLoop()

	return nil
}

// Stop closes the listener, closes all pooled connections and waits
// for the node's goroutines to finish.
func (n *Node) Stop() error {
	if !n.running.Load() {
		return nil
	}

	n.running.Store(false)
	n.stopped.Store(true)
	n.cancel()

	if n.listener != nil {
		n.listener.Close()
		n.logListener("LISTENING", "CLOSED")
	}

	n.pool.Close()
	n.wg.Wait()

	return nil
}

// Address returns this node's own peer address.
func (n *Node) Address() identity.PeerAddress {
	return n.id.Address()
}

// ListenAddr returns the bound listener address, or nil for an
// outbound-only or unstarted node.
func (n *Node) ListenAddr() net.Addr {
	if n.listener != nil {
		return n.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of pooled connections.
func (n *Node) ConnectionCount() int {
	return n.pool.Len()
}

// ConnectedPeers returns the addresses of all pooled peers.
func (n *Node) ConnectedPeers() []identity.PeerAddress {
	return n.pool.Peers()
}

// Request sends payload to the peer and waits for its response,
// dialing or reusing a pooled connection as needed. A peer failure
// comes back as *wire.RemoteError.
func (n *Node) Request(ctx context.Context, peer identity.PeerAddress, payload []byte) ([]byte, error) {
	if !n.running.Load() {
		return nil, ErrNotStarted
	}
	conn, err := n.pool.Acquire(ctx, peer)
	if err != nil {
		return nil, err
	}
	return conn.SendRequest(ctx, payload, n.tunables.RequestTimeout.Std())
}

// Notify sends a fire-and-forget payload to the peer. Delivery is
// confirmed only as far as the local write.
func (n *Node) Notify(ctx context.Context, peer identity.PeerAddress, payload []byte) error {
	if !n.running.Load() {
		return ErrNotStarted
	}
	conn, err := n.pool.Acquire(ctx, peer)
	if err != nil {
		return err
	}
	return conn.Notify(payload)
}

// dialPeer is the pool's DialFunc: resolve, connect, secure, wrap.
func (n *Node) dialPeer(ctx context.Context, peer identity.PeerAddress) (*mux.Conn, error) {
	endpoint, err := n.resolver.Resolve(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", peer.ShortString(), err)
	}
	sc, err := n.dialer.Dial(ctx, endpoint, peer)
	if err != nil {
		return nil, err
	}
	return n.newMux(sc), nil
}

// newMux wraps a secured connection with the node's handlers and
// tunables. Used for both dialed and accepted connections.
func (n *Node) newMux(sc *transport.SecuredConn) *mux.Conn {
	return mux.New(sc, sc.Peer(), mux.Config{
		DefaultRequestTimeout: n.tunables.RequestTimeout.Std(),
		DrainTimeout:          n.tunables.DrainTimeout.Std(),
		MaxFramePayload:       n.tunables.MaxFramePayload,
		RequestHandler:        n.cfg.RequestHandler,
		NotifyHandler:         n.cfg.NotifyHandler,
		Logger:                n.cfg.Logger,
	})
}

// acceptLoop accepts incoming connections until the listener closes.
func (n *Node) acceptLoop() {
	defer n.wg.Done()

	// Transient failures (EMFILE and friends) back off instead of
	// spinning.
	backoff := transport.NewBackoffWithConfig(transport.BackoffConfig{
		Initial: 5 * time.Millisecond,
		Max:     time.Second,
	})
	for n.running.Load() {
		conn, err := n.listener.Accept()
		if err != nil {
			if !n.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			n.logError(fmt.Errorf("accept error: %w", err), "accept")
			select {
			case <-time.After(backoff.Next()):
			case <-n.ctx.Done():
				return
			}
			continue
		}
		backoff.Reset()

		n.wg.Add(1)
		go n.handleInbound(conn)
	}
}

// handleInbound secures an accepted connection and hands it to the
// pool.
func (n *Node) handleInbound(conn net.Conn) {
	defer n.wg.Done()

	sc, err := transport.SecureInbound(n.ctx, conn, n.id, n.cfg.Policy, n.tunables.HandshakeTimeout.Std())
	if err != nil {
		n.logError(err, fmt.Sprintf("inbound handshake from %s", conn.RemoteAddr()))
		return
	}

	mc := n.newMux(sc)
	if !n.pool.AddIncoming(mc) {
		if !n.running.Load() {
			mc.Close()
			return
		}
		// A live connection to this peer already holds the pool slot.
		// Nothing local is pending on the duplicate, so Drain closes
		// it promptly; the peer sees a clean shutdown and reuses the
		// surviving connection.
		mc.Drain()
	}
}

// idleLoop periodically closes pooled connections that have seen no
// traffic for IdleTimeout.
func (n *Node) idleLoop() {
	defer n.wg.Done()

	idle := n.tunables.IdleTimeout.Std()
	interval := idle / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.pool.CloseIdle(idle)
		}
	}
}

func (n *Node) logListener(oldState, newState string) {
	if n.cfg.Logger == nil {
		return
	}
	addr := ""
	if n.listener != nil {
		addr = n.listener.Addr().String()
	}
	n.cfg.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		RemoteAddr: addr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (n *Node) logError(err error, where string) {
	if n.cfg.Logger == nil {
		return
	}
	n.cfg.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: where,
		},
	})
}
