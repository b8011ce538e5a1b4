// Package identity implements peer identity for the weft protocol.
//
// A peer's identity is a self-signed X.509 certificate over an ECDSA
// P-256 key. The peer's address is the BLAKE2b-256 digest of the
// certificate in DER form: whoever proves possession of the
// certificate's private key during the TLS handshake owns the address.
// There is no certificate authority and no hostname; the digest is the
// entire trust anchor.
//
// # Key Custody
//
// Private keys live behind the Keystore interface. LocalKeystore is the
// in-process implementation; deployments backed by an external key
// service provide their own and the key material never enters this
// process.
//
// # Verification Policy
//
// What makes a presented certificate acceptable is pluggable via
// VerifyPolicy. The default SelfSignedPolicy accepts any parseable
// certificate inside its validity window and checks only the digest
// binding. Stricter deployments (pinning sets, CA-rooted chains)
// substitute their own policy without touching the transport.
package identity
