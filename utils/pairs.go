package utils

import (
	"github.com/google/uuid"
)

// PairKey derives the canonical key for an unordered user pair, so that
// (a,b) and (b,a) always address the same lock and cooldown records.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// NewRoomName mints an unguessable room identifier.
func NewRoomName() string {
	return "rt-" + uuid.NewString()
}
