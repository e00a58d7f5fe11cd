// Package util holds small helpers shared by the service packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewToken returns size random bytes hex encoded, behind "prefix_" when a
// prefix is given.
func NewToken(prefix string, size int) string {
	if size <= 0 {
		size = 16
	}
	bytes := make([]byte, size)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
