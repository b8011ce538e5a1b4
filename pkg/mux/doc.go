// Package mux multiplexes request/response exchanges over a single
// connection.
//
// A Conn owns one bidirectional stream. Any number of goroutines may
// issue requests concurrently; each is tagged with a unique request id
// and parked in a pending table until the matching response arrives.
// Responses may come back in any order. Notifications share the stream
// but carry id 0 and are never tracked.
//
// # Lifecycle
//
//	Open --Drain()--> Draining --pending empties / timeout--> Closed
//	Open --Close() or fatal error--> Closed
//
// Draining refuses new outbound traffic while in-flight requests
// finish; inbound requests are still answered so the remote side is
// never left hanging mid-exchange. Closed is terminal: every pending
// request resolves with ErrConnectionClosed and Done() is closed.
//
// # Failure handling
//
// Each pending request resolves exactly once. Timeouts and
// cancellations affect only their own request; the connection stays
// usable and a late response is discarded. Write failures and
// malformed inbound frames are connection-fatal because the stream can
// no longer be trusted.
package mux
