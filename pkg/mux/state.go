package mux

// State is the lifecycle state of a multiplexed connection.
type State int32

const (
	// StateOpen accepts outbound requests and notifies.
	StateOpen State = iota

	// StateDraining refuses new outbound traffic while in-flight
	// requests complete. Inbound requests are still answered.
	StateDraining

	// StateClosed is terminal. All pending requests have been
	// resolved and the underlying connection is closed.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
