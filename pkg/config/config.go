// Package config holds the runtime tunables consumed by the transport,
// multiplexer, pool, and node layers. Values load from YAML; every
// field has a working default so an empty document is valid.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML documents can use strings like
// "30s" or "5m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML decodes a duration from a string like "30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Tunables is the flat set of runtime parameters.
type Tunables struct {
	// MaxConnections caps the connection cache.
	MaxConnections int `yaml:"maxConnections"`

	// HandshakeTimeout bounds TCP connect plus TLS handshake.
	HandshakeTimeout Duration `yaml:"handshakeTimeout"`

	// RequestTimeout is the default deadline for a request awaiting
	// its response.
	RequestTimeout Duration `yaml:"requestTimeout"`

	// DrainTimeout bounds how long a draining connection waits for
	// in-flight requests.
	DrainTimeout Duration `yaml:"drainTimeout"`

	// IdleTimeout is how long a cached connection may sit without
	// traffic before the idle sweep closes it.
	IdleTimeout Duration `yaml:"idleTimeout"`

	// MaxFramePayload limits frame payloads in bytes.
	MaxFramePayload uint32 `yaml:"maxFramePayload"`
}

// Default returns the standard tunables.
func Default() *Tunables {
	return &Tunables{
		MaxConnections:   64,
		HandshakeTimeout: Duration(30 * time.Second),
		RequestTimeout:   Duration(30 * time.Second),
		DrainTimeout:     Duration(5 * time.Second),
		IdleTimeout:      Duration(5 * time.Minute),
		MaxFramePayload:  1 << 20,
	}
}

// Validate checks that every tunable is usable.
func (t *Tunables) Validate() error {
	if t.MaxConnections <= 0 {
		return fmt.Errorf("maxConnections must be positive, got %d", t.MaxConnections)
	}
	if t.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshakeTimeout must be positive, got %s", t.HandshakeTimeout)
	}
	if t.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive, got %s", t.RequestTimeout)
	}
	if t.DrainTimeout <= 0 {
		return fmt.Errorf("drainTimeout must be positive, got %s", t.DrainTimeout)
	}
	if t.IdleTimeout <= 0 {
		return fmt.Errorf("idleTimeout must be positive, got %s", t.IdleTimeout)
	}
	if t.MaxFramePayload == 0 {
		return fmt.Errorf("maxFramePayload must be positive")
	}
	return nil
}

// Parse decodes tunables from YAML. Absent fields keep their defaults.
func Parse(data []byte) (*Tunables, error) {
	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parsing tunables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads and parses tunables from a YAML file.
func Load(path string) (*Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}
