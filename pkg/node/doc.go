// Package node ties the lower layers into a complete peer endpoint.
//
// A Node owns one identity, one optional listener, and one connection
// pool. Outbound traffic resolves the peer through a Resolver, dials,
// secures and pools the connection; inbound connections are accepted,
// secured and added to the same pool, so a single connection carries
// traffic in both directions regardless of who dialed.
//
// Example usage:
//
//	id, _ := identity.GenerateEphemeral()
//
//	resolver := node.StaticResolver{}
//	resolver.Add(peerAddr, "198.51.100.7:9433")
//
//	n, err := node.New(id, resolver, node.Config{
//		ListenAddress: ":9433",
//		RequestHandler: func(ctx context.Context, peer identity.PeerAddress, payload []byte) ([]byte, error) {
//			return []byte("pong"), nil
//		},
//	})
//	if err != nil {
//		...
//	}
//	if err := n.Start(ctx); err != nil {
//		...
//	}
//	defer n.Stop()
//
//	reply, err := n.Request(ctx, peerAddr, []byte("ping"))
//
// # Lifecycle
//
// A node is single-use: New, Start, exchange traffic, Stop. Stop
// closes the listener, drains nothing (pooled connections are closed
// outright) and waits for the accept loop and idle sweeper to exit.
// A stopped node cannot be restarted.
//
// # Scope
//
// The node does not discover peers. Resolve is the entire boundary:
// anything that can map a peer address to "host:port" (a static table,
// DNS, a rendezvous service) plugs in as a Resolver.
package node
