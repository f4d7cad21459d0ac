package lordn

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

const (
	uuidRawLength  = 16
	uuidHexLength  = 32
	uuidTextLength = 36
)

// ID is a UUID v7 identifier stored as 16 raw bytes.
//
//nolint:recvcheck // Scan requires a pointer receiver, Value uses value receiver for driver.Valuer.
type ID [16]byte

// Bytes returns a copy of the raw 16 bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, len(id))
	copy(out, id[:])

	return out
}

// IsZero reports whether the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the canonical UUID string representation.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// Scan implements sql.Scanner for BINARY(16) or textual UUIDs.
// NULL is treated as ErrInvalidID.
func (id *ID) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		return ErrInvalidID
	case []byte:
		return id.scanBytes(value)
	case string:
		parsed, err := ParseID(value)
		if err != nil {
			return err
		}
		*id = parsed

		return nil
	default:
		return fmt.Errorf("lordn: unsupported id type %T: %w", src, ErrInvalidID)
	}
}

// Value implements driver.Valuer for BINARY(16).
func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// ParseID parses a UUID string (canonical or 32 hex) into an ID.
func ParseID(value string) (ID, error) {
	if len(value) != uuidHexLength && len(value) != uuidTextLength {
		return ID{}, ErrInvalidID
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return ID{}, ErrInvalidID
	}

	return ID(parsed), nil
}

func (id *ID) scanBytes(value []byte) error {
	switch len(value) {
	case uuidRawLength:
		copy(id[:], value)

		return nil
	case uuidHexLength, uuidTextLength:
		parsed, err := ParseID(string(value))
		if err != nil {
			return err
		}
		*id = parsed

		return nil
	default:
		return ErrInvalidID
	}
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() (ID, error)

// New implements IDGenerator.
func (fn IDGeneratorFunc) New() (ID, error) {
	return fn()
}

// UUIDv7Generator produces time ordered UUID v7 identifiers.
// Identifiers from one process are strictly increasing.
type UUIDv7Generator struct{}

// NewUUIDv7Generator creates a UUID v7 generator.
func NewUUIDv7Generator() UUIDv7Generator {
	return UUIDv7Generator{}
}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (ID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("lordn: generate uuid v7: %w", err)
	}

	return ID(u), nil
}
