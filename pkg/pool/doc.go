// Package pool caches live connections by peer address.
//
// The cache holds at most one connection per peer and at most Capacity
// connections overall, evicting the least recently used entry when an
// insert needs room. Recency follows Acquire order, so hot peers stay
// cached while quiet ones age out.
//
// Concurrent Acquires of the same absent peer collapse into a single
// dial: exactly one handshake runs and every waiter receives the same
// connection or the same error. Failed dials are never cached.
//
// Evicted connections are not cut off. They drain in the background,
// letting in-flight requests resolve before the close; only pool
// shutdown closes connections abruptly.
package pool
