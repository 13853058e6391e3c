// Package id provides unique identifier generation for cut batches.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generate creates a new unique batch ID.
// Format: cut-<timestamp>-<random>
// Example: cut-1701432000-a1b2c3d4
func Generate() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to nanoseconds if crypto/rand fails
		return fmt.Sprintf("cut-%d-%d", timestamp, time.Now().UnixNano())
	}
	return fmt.Sprintf("cut-%d-%s", timestamp, hex.EncodeToString(random))
}
