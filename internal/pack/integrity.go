package pack

import (
	"encoding/hex"
	"sort"

	"buildcache-go/internal/hashutil"
)

// integrityLeaf is one (id, etag, size) triple contributing to the pack's
// tamper-evidence digest.
type integrityLeaf struct {
	id   string
	etag string
	size int
}

// computeIntegrityRoot adapts the teacher's own pairwise merkle-combination
// algorithm (gittycat-merkle-go's internal/tree/builder.go: sort leaves,
// hash pairs, duplicate the odd node out, repeat until one hash remains)
// into a digest over (id, etag, size) triples rather than file content.
// Rehashed with xxhash instead of relying on an unverified external
// merkle-tree library (see DESIGN.md).
func computeIntegrityRoot(leaves []integrityLeaf) string {
	if len(leaves) == 0 {
		return hashutil.HashBytes([]byte("empty-pack"))
	}

	sort.Slice(leaves, func(i, j int) bool { return leaves[i].id < leaves[j].id })

	level := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = hashutil.HashBytes(leafBytes(l))
	}

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, combine(level[i], level[i+1]))
			} else {
				next = append(next, combine(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}

func leafBytes(l integrityLeaf) []byte {
	buf := make([]byte, 0, len(l.id)+len(l.etag)+8)
	buf = append(buf, l.id...)
	buf = append(buf, 0)
	buf = append(buf, l.etag...)
	buf = append(buf, 0)
	buf = append(buf, byte(l.size), byte(l.size>>8), byte(l.size>>16), byte(l.size>>24))
	return buf
}

func combine(left, right string) string {
	leftBytes, _ := hex.DecodeString(left)
	rightBytes, _ := hex.DecodeString(right)
	combined := make([]byte, 0, len(leftBytes)+len(rightBytes))
	combined = append(combined, leftBytes...)
	combined = append(combined, rightBytes...)
	return hashutil.HashBytes(combined)
}
