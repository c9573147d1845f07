// Package fileid provides a deterministic ID for seed files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "seed:"

// SeedID returns a stable ID for the given absolute path.
// Same path always yields the same ID.
func SeedID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:12])
}
