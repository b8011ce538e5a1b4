package log

// MultiLogger fans one event stream out to several loggers, typically
// a FileLogger for capture plus a SlogAdapter for the console.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger returns a logger forwarding every event to each of
// sinks in order.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: append([]Logger(nil), sinks...)}
}

// Log forwards event to every sink.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
