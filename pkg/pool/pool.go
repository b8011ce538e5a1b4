package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/weft-protocol/weft-go/pkg/config"
	"github.com/weft-protocol/weft-go/pkg/identity"
	"github.com/weft-protocol/weft-go/pkg/log"
	"github.com/weft-protocol/weft-go/pkg/mux"
)

// Pool errors.
var (
	ErrPoolClosed       = errors.New("pool: pool closed")
	ErrCapacityExceeded = errors.New("pool: capacity exceeded")
	ErrAcquireCancelled = errors.New("pool: acquire cancelled")
	ErrPeerMismatch     = errors.New("pool: dialed connection identity mismatch")
)

// DialFunc establishes a new multiplexed connection to peer.
type DialFunc func(ctx context.Context, peer identity.PeerAddress) (*mux.Conn, error)

// Config carries the pool tunables.
type Config struct {
	// Capacity is the maximum number of cached connections. Required.
	Capacity int

	// DrainTimeout bounds how long an evicted connection is given to
	// finish its in-flight requests before it is force-closed.
	// Zero means mux.DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Logger receives cache events. Nil disables logging.
	Logger log.Logger
}

// DefaultConfig returns a Config using the standard tunables.
func DefaultConfig() Config {
	def := config.Default()
	return Config{
		Capacity:     def.MaxConnections,
		DrainTimeout: def.DrainTimeout.Std(),
	}
}

// Pool caches one live connection per peer, evicting the least
// recently used when capacity is reached. Evicted connections drain
// gracefully so their in-flight requests still resolve.
type Pool struct {
	cfg    Config
	dial   DialFunc
	flight singleflight.Group
	logger log.Logger
	closed atomic.Bool

	// mu serializes cache mutations so a cached connection only ever
	// leaves through the eviction callback. Add must never overwrite
	// an existing key in place.
	mu    sync.Mutex
	cache *lru.Cache[identity.PeerAddress, *mux.Conn]
}

// New creates a pool that dials absent peers with dial.
func New(cfg Config, dial DialFunc) (*Pool, error) {
	if dial == nil {
		return nil, errors.New("pool: dial function is required")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool: capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = mux.DefaultDrainTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	p := &Pool{cfg: cfg, dial: dial, logger: cfg.Logger}
	cache, err := lru.NewWithEvict[identity.PeerAddress, *mux.Conn](cfg.Capacity, p.onEvict)
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

// Acquire returns the cached connection for peer, dialing if absent.
// Concurrent acquirers of the same absent peer share a single dial and
// all receive the same connection or the same error. Dial errors are
// not cached; the next Acquire retries.
//
// ctx cancels only this caller's wait, not a dial shared with others.
func (p *Pool) Acquire(ctx context.Context, peer identity.PeerAddress) (*mux.Conn, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	if conn, ok := p.cache.Get(peer); ok {
		if conn.State() == mux.StateOpen {
			p.logCache(log.CacheHit, peer)
			return conn, nil
		}
		// A dead entry counts as absent.
		p.removeStale(peer, conn)
	}
	p.logCache(log.CacheMiss, peer)

	ch := p.flight.DoChan(peer.String(), func() (any, error) {
		return p.establish(context.WithoutCancel(ctx), peer)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*mux.Conn), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrAcquireCancelled, ctx.Err())
	}
}

// establish runs inside a singleflight group: exactly one goroutine
// per absent peer executes it at a time.
func (p *Pool) establish(ctx context.Context, peer identity.PeerAddress) (*mux.Conn, error) {
	// Another flight may have just finished filling the cache.
	if conn, ok := p.cache.Get(peer); ok && conn.State() == mux.StateOpen {
		return conn, nil
	}
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	p.logCache(log.CacheDial, peer)
	conn, err := p.dial(ctx, peer)
	if err != nil {
		return nil, err
	}
	if conn.Peer() != peer {
		conn.Close()
		return nil, fmt.Errorf("%w: wanted %s, connection reports %s",
			ErrPeerMismatch, peer.ShortString(), conn.Peer().ShortString())
	}

	winner, err := p.insert(peer, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if winner != conn {
		// An inbound connection for peer landed while the dial was in
		// flight and keeps the slot. The surplus dial drains.
		conn.Drain()
	}
	return winner, nil
}

// insert adopts conn as the cache entry for peer. If a live
// connection for peer appeared in the meantime, that one keeps the
// slot and is returned instead, with conn left to the caller. A dead
// entry in the way is removed first, so it leaves through the
// eviction callback rather than being overwritten.
func (p *Pool) insert(peer identity.PeerAddress, conn *mux.Conn) (*mux.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if existing, ok := p.cache.Peek(peer); ok {
		if existing.State() == mux.StateOpen {
			return existing, nil
		}
		p.cache.Remove(peer)
		p.logCache(log.CacheRemove, peer)
	}
	if evicted := p.cache.Add(peer, conn); evicted {
		p.logCache(log.CacheEvict, peer)
	}
	if p.cache.Len() > p.cfg.Capacity {
		// The cache evicts on insert, so this fires only when it
		// could not make room.
		p.cache.Remove(peer)
		return nil, ErrCapacityExceeded
	}
	return conn, nil
}

// removeStale drops the entry for peer only while it still holds
// stale, leaving a replacement that landed concurrently in place.
func (p *Pool) removeStale(peer identity.PeerAddress, stale *mux.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.cache.Peek(peer); ok && cur == stale {
		p.cache.Remove(peer)
		p.logCache(log.CacheRemove, peer)
	}
}

// AddIncoming registers an inbound connection so later Acquires for
// its peer reuse it. An existing live entry wins; the incoming
// connection is then left to its caller and reports false.
func (p *Pool) AddIncoming(conn *mux.Conn) bool {
	if conn == nil || p.closed.Load() {
		return false
	}
	peer := conn.Peer()
	if peer.IsZero() {
		return false
	}

	winner, err := p.insert(peer, conn)
	return err == nil && winner == conn
}

// Remove drops the cached connection for peer, draining it. Reports
// whether an entry was present.
func (p *Pool) Remove(peer identity.PeerAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	present := p.cache.Remove(peer)
	if present {
		p.logCache(log.CacheRemove, peer)
	}
	return present
}

// CloseIdle removes every cached connection whose last activity is
// older than maxIdle. Returns the number removed.
func (p *Pool) CloseIdle(maxIdle time.Duration) int {
	if p.closed.Load() {
		return 0
	}

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, peer := range p.cache.Keys() {
		conn, ok := p.cache.Peek(peer)
		if !ok {
			continue
		}
		if conn.LastActivity().Before(cutoff) {
			if p.cache.Remove(peer) {
				p.logCache(log.CacheExpire, peer)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of cached connections.
func (p *Pool) Len() int {
	return p.cache.Len()
}

// Peers returns the cached peer addresses, least recently used first.
func (p *Pool) Peers() []identity.PeerAddress {
	return p.cache.Keys()
}

// Contains reports whether peer is cached, without refreshing recency.
func (p *Pool) Contains(peer identity.PeerAddress) bool {
	return p.cache.Contains(peer)
}

// Close force-closes every cached connection. Idempotent; subsequent
// Acquires fail with ErrPoolClosed.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	p.cache.Purge()
	p.mu.Unlock()
	return nil
}

// onEvict runs inside the cache lock for every removal, so connection
// teardown is pushed to a goroutine. Before pool close, evicted
// connections drain; after, they are cut off.
func (p *Pool) onEvict(peer identity.PeerAddress, conn *mux.Conn) {
	force := p.closed.Load()
	drainBound := p.cfg.DrainTimeout

	go func() {
		if force {
			conn.Close()
			return
		}
		conn.Drain()
		select {
		case <-conn.Done():
		case <-time.After(drainBound + time.Second):
			conn.Close()
		}
	}()
}

func (p *Pool) logCache(action log.CacheAction, peer identity.PeerAddress) {
	p.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerPool,
		Category:  log.CategoryCache,
		Peer:      peer.String(),
		Cache: &log.CacheEvent{
			Action:  action,
			Entries: p.cache.Len(),
		},
	})
}
