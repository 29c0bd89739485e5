// README: Common identity and geography value objects shared across modules.
package types

import (
	"crypto/rand"
	"encoding/hex"
)

// ID is an opaque record identifier (32 hex chars).
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewID returns a random 128-bit identifier in hex.
func NewID() ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return ID(hex.EncodeToString(b[:]))
}
