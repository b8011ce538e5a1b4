package mux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/weft-protocol/weft-go/pkg/identity"
	"github.com/weft-protocol/weft-go/pkg/log"
	"github.com/weft-protocol/weft-go/pkg/transport"
	"github.com/weft-protocol/weft-go/pkg/wire"
)

// Mux errors.
var (
	ErrRequestTimeout     = errors.New("mux: request timed out")
	ErrRequestCancelled   = errors.New("mux: request cancelled")
	ErrConnectionClosed   = errors.New("mux: connection closed")
	ErrConnectionDraining = fmt.Errorf("%w: draining", ErrConnectionClosed)
)

// Default tunables.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultDrainTimeout   = 5 * time.Second
)

// RequestHandler answers an inbound request. The returned bytes become
// the response data; a returned error is delivered to the remote caller
// as a failed result carrying the error message.
type RequestHandler func(ctx context.Context, peer identity.PeerAddress, payload []byte) ([]byte, error)

// NotifyHandler receives an inbound fire-and-forget notification.
type NotifyHandler func(peer identity.PeerAddress, payload []byte)

// Config carries the tunables and handlers for a Conn.
type Config struct {
	// DefaultRequestTimeout applies when SendRequest is called with a
	// non-positive timeout. Zero means DefaultRequestTimeout.
	DefaultRequestTimeout time.Duration

	// DrainTimeout bounds how long Drain waits for in-flight requests
	// before force-closing. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration

	// MaxFramePayload limits frame payloads in both directions.
	// Zero means wire.DefaultMaxPayload.
	MaxFramePayload uint32

	// RequestHandler answers inbound requests. When nil every inbound
	// request fails with a "no request handler" result.
	RequestHandler RequestHandler

	// NotifyHandler receives inbound notifications. When nil they are
	// dropped.
	NotifyHandler NotifyHandler

	// Logger receives frame and message events. Nil disables logging.
	Logger log.Logger

	// ConnID identifies this connection in log events. Generated when
	// empty.
	ConnID string
}

// DefaultConfig returns a Config with default tunables and no handlers.
func DefaultConfig() Config {
	return Config{
		DefaultRequestTimeout: DefaultRequestTimeout,
		DrainTimeout:          DefaultDrainTimeout,
		MaxFramePayload:       wire.DefaultMaxPayload,
	}
}

type result struct {
	data []byte
	err  error
}

type pendingEntry struct {
	ch    chan result
	timer *time.Timer
}

// Conn multiplexes concurrent request/response exchanges and
// notifications over a single bidirectional stream.
//
// All methods are safe for concurrent use. One Conn owns its stream:
// a single read loop dispatches inbound frames, and writes are
// serialized by the framer.
type Conn struct {
	conn   net.Conn
	peer   identity.PeerAddress
	cfg    Config
	framer *transport.Framer
	logger log.Logger
	id     string

	state atomic.Int32

	pendingMu sync.Mutex
	pending   map[uint64]*pendingEntry
	nextID    uint64

	handlerCtx    context.Context
	handlerCancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}

	lastActivity atomic.Int64
}

// New wraps conn in a multiplexer and starts its read loop. peer is
// the verified address of the remote side (zero when unknown).
func New(conn net.Conn, peer identity.PeerAddress, cfg Config) *Conn {
	if cfg.DefaultRequestTimeout <= 0 {
		cfg.DefaultRequestTimeout = DefaultRequestTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.MaxFramePayload == 0 {
		cfg.MaxFramePayload = wire.DefaultMaxPayload
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	if cfg.ConnID == "" {
		cfg.ConnID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:          conn,
		peer:          peer,
		cfg:           cfg,
		framer:        transport.NewFramerWithMaxPayload(conn, cfg.MaxFramePayload),
		logger:        cfg.Logger,
		id:            cfg.ConnID,
		pending:       make(map[uint64]*pendingEntry),
		nextID:        1,
		handlerCtx:    ctx,
		handlerCancel: cancel,
		done:          make(chan struct{}),
	}
	c.state.Store(int32(StateOpen))
	c.framer.SetLogger(cfg.Logger, cfg.ConnID)
	c.touch()

	go c.readLoop()
	return c
}

// ID returns the connection identifier used in log events.
func (c *Conn) ID() string {
	return c.id
}

// Peer returns the verified address of the remote side.
func (c *Conn) Peer() identity.PeerAddress {
	return c.peer
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Pending returns the number of in-flight outbound requests.
func (c *Conn) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// LastActivity returns the time of the most recent frame in either
// direction.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// LocalAddr returns the local address of the underlying connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote address of the underlying connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done returns a channel closed once the connection reaches Closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// SendRequest sends payload as a request and blocks until the matching
// response arrives, the timeout fires, ctx is done, or the connection
// closes. A non-positive timeout uses the configured default.
//
// A failed result from the peer is returned as a *wire.RemoteError.
func (c *Conn) SendRequest(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.cfg.DefaultRequestTimeout
	}

	id, entry, err := c.register(timeout)
	if err != nil {
		return nil, err
	}

	frame := &wire.Frame{Op: wire.OpRequest, RequestID: id, Payload: payload}
	if err := c.framer.WriteFrame(frame); err != nil {
		c.unregister(id)
		if errors.Is(err, wire.ErrMalformedFrame) {
			// Local encode refusal (oversize payload); the stream is
			// untouched and stays usable.
			return nil, err
		}
		c.closeWithReason(fmt.Sprintf("write request: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	c.touch()
	c.logMessage(log.DirectionOut, wire.OpRequest, id, len(payload), nil)

	select {
	case res := <-entry.ch:
		return res.data, res.err
	case <-ctx.Done():
		c.resolve(id, result{err: fmt.Errorf("%w: %v", ErrRequestCancelled, ctx.Err())})
		// A response racing the cancellation may have resolved the
		// entry first; either way exactly one result is buffered.
		res := <-entry.ch
		return res.data, res.err
	}
}

// Notify sends payload as a fire-and-forget notification. Only local
// failures are reported; the peer never responds.
func (c *Conn) Notify(payload []byte) error {
	switch c.State() {
	case StateDraining:
		return ErrConnectionDraining
	case StateClosed:
		return ErrConnectionClosed
	}

	frame := &wire.Frame{Op: wire.OpNotify, RequestID: wire.NotifyRequestID, Payload: payload}
	if err := c.framer.WriteFrame(frame); err != nil {
		if errors.Is(err, wire.ErrMalformedFrame) {
			return err
		}
		c.closeWithReason(fmt.Sprintf("write notify: %v", err))
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	c.touch()
	c.logMessage(log.DirectionOut, wire.OpNotify, wire.NotifyRequestID, len(payload), nil)
	return nil
}

// register allocates a request ID and installs a pending entry with
// its deadline timer. Refused once the connection leaves Open.
func (c *Conn) register(timeout time.Duration) (uint64, *pendingEntry, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	// Checked under the pending lock so a concurrent Close cannot
	// slip between the state check and the table insert.
	switch c.State() {
	case StateDraining:
		return 0, nil, ErrConnectionDraining
	case StateClosed:
		return 0, nil, ErrConnectionClosed
	}

	// IDs are unique among in-flight requests; 0 is reserved for
	// notifications.
	var id uint64
	for {
		id = c.nextID
		c.nextID++
		if id == 0 {
			continue
		}
		if _, live := c.pending[id]; !live {
			break
		}
	}

	entry := &pendingEntry{ch: make(chan result, 1)}
	entry.timer = time.AfterFunc(timeout, func() {
		c.resolve(id, result{err: ErrRequestTimeout})
	})
	c.pending[id] = entry
	return id, entry, nil
}

// resolve delivers res to the pending request id and removes it.
// Exactly one caller wins; later calls for the same id are no-ops.
// Returns whether this call performed the resolution.
func (c *Conn) resolve(id uint64, res result) bool {
	c.pendingMu.Lock()
	entry, ok := c.pending[id]
	if !ok {
		c.pendingMu.Unlock()
		return false
	}
	delete(c.pending, id)
	remaining := len(c.pending)
	c.pendingMu.Unlock()

	entry.timer.Stop()
	entry.ch <- res

	if remaining == 0 && c.State() == StateDraining {
		c.Close()
	}
	return true
}

// unregister removes a pending entry without delivering a result.
// Used when the request frame never reached the wire.
func (c *Conn) unregister(id uint64) {
	c.pendingMu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if ok {
		entry.timer.Stop()
	}
}

// Drain stops new outbound traffic and closes once all in-flight
// requests resolve, or after the drain timeout, whichever is first.
// Inbound requests are answered until the connection closes.
func (c *Conn) Drain() {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateDraining)) {
		return
	}
	c.logState(StateOpen, StateDraining, "drain requested")

	c.pendingMu.Lock()
	empty := len(c.pending) == 0
	c.pendingMu.Unlock()
	if empty {
		c.Close()
		return
	}

	time.AfterFunc(c.cfg.DrainTimeout, func() {
		c.Close()
	})
}

// Close transitions to Closed, closes the underlying connection, and
// resolves every pending request with ErrConnectionClosed. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))

		c.handlerCancel()
		c.conn.Close()

		c.pendingMu.Lock()
		entries := c.pending
		c.pending = make(map[uint64]*pendingEntry)
		c.pendingMu.Unlock()

		for _, entry := range entries {
			entry.timer.Stop()
			entry.ch <- result{err: ErrConnectionClosed}
		}

		c.logState(prev, StateClosed, "")
		close(c.done)
	})
	return nil
}

func (c *Conn) closeWithReason(reason string) {
	if c.State() != StateClosed {
		c.logError(reason)
	}
	c.Close()
}

// readLoop reads frames until the stream ends and dispatches them in
// wire order.
func (c *Conn) readLoop() {
	for {
		frame, err := c.framer.ReadFrame()
		if err != nil {
			switch {
			case err == io.EOF, errors.Is(err, net.ErrClosed):
				// Peer closed cleanly or Close already ran.
				c.Close()
			case errors.Is(err, wire.ErrMalformedFrame):
				c.closeWithReason(fmt.Sprintf("malformed frame: %v", err))
			case c.State() == StateClosed:
				c.Close()
			default:
				c.closeWithReason(fmt.Sprintf("read: %v", err))
			}
			return
		}
		c.touch()

		switch frame.Op {
		case wire.OpResponse:
			c.handleResponse(frame)
		case wire.OpRequest:
			go c.handleRequest(frame)
		case wire.OpNotify:
			// Inline so notifications keep their wire order.
			c.handleNotify(frame)
		}
	}
}

func (c *Conn) handleResponse(f *wire.Frame) {
	res, err := wire.DecodeResult(f.Payload)

	var r result
	var status *wire.Status
	switch {
	case err != nil:
		// Framing is intact, only this response is unusable.
		r = result{err: fmt.Errorf("decode response: %w", err)}
	default:
		status = &res.Status
		if rerr := res.Err(); rerr != nil {
			r = result{err: rerr}
		} else {
			r = result{data: res.Data}
		}
	}

	c.logMessage(log.DirectionIn, wire.OpResponse, f.RequestID, len(f.Payload), status)
	if !c.resolve(f.RequestID, r) {
		// Timed out, cancelled, or never sent. Drop it.
		c.logError(fmt.Sprintf("unmatched response for request %d", f.RequestID))
	}
}

func (c *Conn) handleRequest(f *wire.Frame) {
	c.logMessage(log.DirectionIn, wire.OpRequest, f.RequestID, len(f.Payload), nil)

	var res *wire.Result
	if c.cfg.RequestHandler == nil {
		res = wire.FailedResult("no request handler")
	} else if data, err := c.cfg.RequestHandler(c.handlerCtx, c.peer, f.Payload); err != nil {
		res = wire.FailedResult(err.Error())
	} else {
		res = wire.OKResult(data)
	}

	payload, err := wire.EncodeResult(res)
	if err != nil {
		c.logError(fmt.Sprintf("encode result for request %d: %v", f.RequestID, err))
		payload, _ = wire.EncodeResult(wire.FailedResult("internal encoding failure"))
	}

	frame := &wire.Frame{Op: wire.OpResponse, RequestID: f.RequestID, Payload: payload}
	if err := c.framer.WriteFrame(frame); err != nil {
		if c.State() != StateClosed && !errors.Is(err, net.ErrClosed) {
			c.closeWithReason(fmt.Sprintf("write response: %v", err))
		}
		return
	}
	c.touch()
	c.logMessage(log.DirectionOut, wire.OpResponse, f.RequestID, len(payload), &res.Status)
}

func (c *Conn) handleNotify(f *wire.Frame) {
	c.logMessage(log.DirectionIn, wire.OpNotify, f.RequestID, len(f.Payload), nil)
	if c.cfg.NotifyHandler != nil {
		c.cfg.NotifyHandler(c.peer, f.Payload)
	}
}

func (c *Conn) peerLabel() string {
	if c.peer.IsZero() {
		return ""
	}
	return c.peer.String()
}

func (c *Conn) logMessage(dir log.Direction, op wire.Opcode, reqID uint64, payloadSize int, status *wire.Status) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerMux,
		Category:     log.CategoryMessage,
		Peer:         c.peerLabel(),
		Message: &log.MessageEvent{
			Op:          op,
			RequestID:   reqID,
			PayloadSize: payloadSize,
			Status:      status,
		},
	})
}

func (c *Conn) logState(from, to State, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerMux,
		Category:     log.CategoryState,
		Peer:         c.peerLabel(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (c *Conn) logError(msg string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerMux,
		Category:     log.CategoryError,
		Peer:         c.peerLabel(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerMux,
			Message: msg,
		},
	})
}
