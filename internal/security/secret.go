// Package security holds the in-memory types for share and key material.
package security

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
)

const redacted = "[REDACTED]"

// Secret holds sensitive bytes (Share B, sealed keys, credentials).
// Formatting, JSON and text encoding are redacted; SQL drivers receive the raw bytes.
type Secret []byte

func (s Secret) String() string { return redacted }

// Format redacts every verb, including %#v and %x.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// MarshalJSON never emits the bytes.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// MarshalText never emits the bytes.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Bytes returns a copy. The caller wipes it.
func (s Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, len(s))
	copy(out, s)
	return out
}

// Clone returns an independent Secret.
func (s Secret) Clone() Secret {
	return Secret(s.Bytes())
}

// Wipe zeroes the underlying bytes in place.
func (s Secret) Wipe() {
	clear(s)
}

// Value stores the raw bytes.
func (s Secret) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return []byte(s), nil
}

// Scan copies the driver buffer so the driver may reuse it.
func (s *Secret) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = Secret(append([]byte(nil), v...))
	case string:
		*s = Secret([]byte(v))
	default:
		return fmt.Errorf("unsupported scan type %T", src)
	}
	return nil
}

// FromBytes copies in into a new Secret.
func FromBytes(in []byte) Secret {
	return Secret(in).Clone()
}
