// Package transport secures and frames peer connections.
//
// The transport layer handles:
//   - TLS 1.3 connections with mutual peer authentication
//   - Identity verification against certificate digests
//   - Length-prefixed frame I/O over the secured stream
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Payloads             │
//	├────────────────────────────────┤
//	│   Frame Header (13 bytes)      │
//	├────────────────────────────────┤
//	│         TLS 1.3                │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # TLS Requirements
//
// TLS 1.3 is required with no fallback to earlier versions. Both sides
// present self-signed certificates and authenticate each other by
// certificate digest rather than by chain building: the standard chain
// verifier is disabled and an identity.VerifyPolicy runs in its place.
// The handshake itself proves possession of the certificate key, so a
// peer's address is exactly the hash of the certificate it presented.
//
// ALPN is mandatory. Connections that negotiate anything other than
// "weft/1" are rejected after the handshake.
//
// # Framing
//
// Frames are written as a single buffer so concurrent writers never
// interleave. The reader validates declared lengths before allocating
// and distinguishes a clean close between frames (io.EOF) from a
// stream dying mid-frame (wire.ErrTruncated).
package transport
