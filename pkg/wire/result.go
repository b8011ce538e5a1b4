package wire

import (
	"fmt"
)

// Status reports the outcome of a remote request.
type Status uint8

const (
	// StatusOK means the request was handled and Data carries the answer.
	StatusOK Status = 0

	// StatusFailed means the remote handler rejected or failed the
	// request; Message carries the reason.
	StatusFailed Status = 1
)

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Result is the envelope carried in every Response payload. It lets a
// peer answer a Request with either data or an explicit failure instead
// of leaving the requester to time out.
//
// CBOR encoding:
//
//	{
//	  1: status,    // uint8: 0=OK, 1=Failed
//	  2: data,      // byte string, present on success
//	  3: message    // text string, present on failure
//	}
type Result struct {
	Status  Status `cbor:"1,keyasint"`
	Data    []byte `cbor:"2,keyasint,omitempty"`
	Message string `cbor:"3,keyasint,omitempty"`
}

// OKResult builds a success envelope around data.
func OKResult(data []byte) *Result {
	return &Result{Status: StatusOK, Data: data}
}

// FailedResult builds a failure envelope with the given reason.
func FailedResult(message string) *Result {
	return &Result{Status: StatusFailed, Message: message}
}

// Err returns nil for a successful result and a *RemoteError otherwise.
func (r *Result) Err() error {
	if r.Status.IsSuccess() {
		return nil
	}
	return &RemoteError{Message: r.Message}
}

// EncodeResult encodes a result envelope to CBOR bytes.
func EncodeResult(r *Result) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil result", ErrMalformedFrame)
	}
	return Marshal(r)
}

// DecodeResult decodes CBOR bytes into a result envelope.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decoding result: %v", ErrMalformedFrame, err)
	}
	return &r, nil
}

// RemoteError is a failure reported by the remote end of a request. The
// request itself completed; the peer's handler declined it.
type RemoteError struct {
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "remote error"
	}
	return fmt.Sprintf("remote error: %s", e.Message)
}
