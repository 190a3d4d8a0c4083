package repospanner

import (
	"encoding/hex"
	"fmt"
)

const (
	// IDSize is the size of a SHA-1 object identifier in bytes.
	IDSize = 20

	// HexSize is the length of a hex-encoded object identifier.
	HexSize = IDSize * 2
)

// ObjectID is a SHA-1 content identifier naming a git object.
type ObjectID [IDSize]byte

// String returns the lower-case hex representation of the identifier.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// Dir returns the first two hex characters, the loose object fan-out directory.
func (id ObjectID) Dir() string {
	return hex.EncodeToString(id[:1])
}

// File returns the remaining 38 hex characters, the loose object file name.
func (id ObjectID) File() string {
	return hex.EncodeToString(id[1:])
}

// LoosePath returns the slash separated loose object path, e.g. "ab/cdef...".
func (id ObjectID) LoosePath() string {
	return id.Dir() + "/" + id.File()
}

// IsZero returns true if the identifier is all zeros.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(text []byte) error {
	if len(text) != HexSize {
		return fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidObjectID, HexSize, len(text))
	}
	if _, err := hex.Decode(id[:], text); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObjectID, err)
	}
	return nil
}

// ParseObjectID parses a 40 character hex object identifier.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return ObjectID{}, err
	}
	return id, nil
}
