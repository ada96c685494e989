// Package hashutil provides the content-hashing primitive shared by file
// hashes, directory context hashes, and the pack integrity root. Adapted
// from the teacher's internal/hash/hasher.go, generalized from a bare file
// path to any io.Reader so it can run against the inputfs abstraction.
package hashutil

import (
	"encoding/hex"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
)

const bufferSize = 32 * 1024 // 32KB buffer for streaming

// New returns a fresh incremental hasher using the same algorithm as
// HashReader and Sum, for callers that need to combine multiple writes
// (directory context hashing writes sorted names then child hashes).
func New() hash.Hash {
	return xxhash.New()
}

// Sum finalizes an incremental hasher into its hex digest.
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader streams r through the hash algorithm and returns its hex
// digest. Streaming keeps memory bounded for large files.
func HashReader(r io.Reader) (string, error) {
	h := xxhash.New()
	buf := make([]byte, bufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return Sum(h), nil
}

// HashBytes hashes a single byte slice directly, used for the pack
// integrity root's pairwise combination step.
func HashBytes(data []byte) string {
	h := xxhash.New()
	h.Write(data)
	return Sum(h)
}
