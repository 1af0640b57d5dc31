package codec

import (
	"fmt"
	"sync"
)

// Format identifies a wire encoding. The numeric value is the tag byte
// written into envelopes, so existing values must never be renumbered.
type Format uint8

const (
	// FormatCDR is the default binary encoding.
	FormatCDR Format = iota
	// FormatJSON is the human-readable encoding.
	FormatJSON
	// FormatRaw passes payload bytes through untouched.
	FormatRaw
)

func (f Format) String() string {
	switch f {
	case FormatCDR:
		return "cdr"
	case FormatJSON:
		return "json"
	case FormatRaw:
		return "raw"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat maps a format name to its tag. Used by CLI surfaces.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "cdr":
		return FormatCDR, nil
	case "json":
		return FormatJSON, nil
	case "raw":
		return FormatRaw, nil
	default:
		return 0, fmt.Errorf("unknown codec format %q", s)
	}
}

// Codec encodes and decodes message values for a single format.
// Implementations must be safe for concurrent use.
type Codec interface {
	Format() Format
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps format tags to codecs. The zero value is not usable;
// construct with NewRegistry, which preloads all built-in formats.
// Safe for concurrent use: codecs may be registered while publishers
// are already encoding.
type Registry struct {
	mu       sync.RWMutex
	byFormat map[Format]Codec
}

// NewRegistry returns a registry with the JSON, CDR and Raw codecs
// registered.
func NewRegistry() *Registry {
	r := &Registry{byFormat: make(map[Format]Codec)}
	r.Register(JSON())
	r.Register(CDR())
	r.Register(Raw())
	return r
}

// Register adds or replaces the codec for its format.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	r.byFormat[c.Format()] = c
	r.mu.Unlock()
}

// Get returns the codec for a format tag. An unknown or corrupt tag
// yields a DecodeError with KindUnsupportedFormat rather than a panic.
func (r *Registry) Get(f Format) (Codec, error) {
	r.mu.RLock()
	c, ok := r.byFormat[f]
	r.mu.RUnlock()
	if !ok {
		return nil, &DecodeError{Format: f, Kind: KindUnsupportedFormat}
	}
	return c, nil
}

// Marshal encodes v with the codec registered for f.
func (r *Registry) Marshal(f Format, v any) ([]byte, error) {
	r.mu.RLock()
	c, ok := r.byFormat[f]
	r.mu.RUnlock()
	if !ok {
		return nil, &EncodeError{Format: f, Reason: "no codec registered"}
	}
	return c.Marshal(v)
}

// Unmarshal decodes data into v with the codec registered for f.
func (r *Registry) Unmarshal(f Format, data []byte, v any) error {
	c, err := r.Get(f)
	if err != nil {
		return err
	}
	return c.Unmarshal(data, v)
}
