package store

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// digestBytes returns the base58-encoded SHA-256 digest of the blob. The
// encoding keeps digests short enough to read in logs and reports.
func digestBytes(blob []byte) string {
	sum := sha256.Sum256(blob)
	return base58.Encode(sum[:])
}
