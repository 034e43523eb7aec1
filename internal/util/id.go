package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRef returns an opaque random identifier used for content-store refs.
func NewRef(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
