// Package wire defines the frame format and payload codec for the weft
// protocol.
//
// Every message on a connection is one frame: a fixed 13-byte header
// followed by a variable-length payload. All header integers are
// big-endian.
//
//	offset  size  field
//	0       4     length     bytes after this field (9 + payload size)
//	4       1     opcode     Request, Response, or Notify
//	5       8     requestId  matches Requests to Responses
//	13      n     payload
//
// # Opcodes
//
//   - Request: expects a Response carrying the same request id
//   - Response: answers exactly one earlier Request
//   - Notify: one-way, never answered, request id zero by convention
//
// # Error Classification
//
// Decoding distinguishes two failure kinds. ErrTruncated means the input
// ends before the frame does; the caller should await more bytes and
// retry. ErrMalformedFrame means the frame can never become valid
// (unknown opcode, impossible length) and is fatal for the connection
// that produced it.
//
// # Structured Payloads
//
// Payload bytes are opaque to the frame codec. Payloads with structured
// contents use deterministic CBOR (RFC 8949) with integer keys; Marshal
// and Unmarshal apply the shared encoder and decoder modes. Response
// payloads carry a Result envelope distinguishing success data from a
// remote failure message.
package wire
