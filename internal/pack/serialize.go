package pack

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"buildcache-go/internal/snapshot"
)

func gobRegisterName(tag string, sample any) {
	gob.RegisterName(tag, sample)
}

// SyncMode governs how durably Serialize commits the rewritten pack file,
// modeled on the Commit-time durability knobs surveyed from the pack's
// other_examples byte-cache reference (SyncNone/Sync/SyncFull).
type SyncMode int

const (
	// SyncNone renames the temp file into place without an explicit
	// fsync; fastest, weakest durability guarantee.
	SyncNone SyncMode = iota
	// Sync fsyncs the temp file's contents before renaming.
	Sync
	// SyncFull fsyncs the temp file and, after rename, the containing
	// directory, so the rename itself survives a crash.
	SyncFull
)

// header is the fixed-format prefix of a serialized pack: version, etags,
// unserializable ids, lastAccess, and the embedded build snapshot.
type header struct {
	Version        string
	Etags          map[string]string
	Unserializable map[string]struct{}
	LastAccess     map[string]int64
	BuildSnapshot  *snapshot.Snapshot
	IntegrityRoot  string
}

// record is one on-disk entry, terminated by an empty-ID sentinel record,
// per spec.md §4.4: "a sequence of (id, entry) pairs terminated by a null
// id sentinel."
type record struct {
	ID      string
	HasData bool
	Tier    tier
	Size    int
	Payload []byte
}

// Serialize implements spec.md §4.4's Serialize: drains used into
// lastAccess at now (spec.md §3's "at serialize-time and GC-time" rollup,
// spec.md §8 property 7), then emits version, etags, unserializable,
// lastAccess, buildSnapshot, then the entry sequence, classifying each
// entry inline/lazy by its previous measured size (spec.md §4.4's
// "lastSizes[id]"), and updates that measurement from the size actually
// written this time — the one-generation lag that lets a size straddling
// MAX_INLINE_SIZE surface as a migration on next load (spec.md §8 property
// 8, scenario S6).
func (p *Pack) Serialize(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drainUsed(time.Now().UnixMilli())

	ids := p.sortedIDs()
	records := make([]record, 0, len(ids))
	leaves := make([]integrityLeaf, 0, len(ids))

	for _, id := range ids {
		if _, bad := p.unserializable[id]; bad {
			records = append(records, record{ID: id, HasData: false})
			continue
		}

		value := p.content[id]
		var buf bytes.Buffer
		// value's static type is `any`; encoding a pointer to it makes gob
		// send it as an interface, recording the dynamic type by name (via
		// RegisterType) so Decode can reconstruct it below.
		if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
			// Either NOT_SERIALIZABLE or an unexpected encode failure;
			// spec.md §7 treats both as "write false flag and proceed",
			// differing only in whether it's logged upstream.
			records = append(records, record{ID: id, HasData: false})
			continue
		}

		size := buf.Len()
		prevSize, known := p.lastSizes[id]
		entryTier := tierInline
		if known && prevSize > MaxInlineSize {
			entryTier = tierLazy
		}

		records = append(records, record{
			ID:      id,
			HasData: true,
			Tier:    entryTier,
			Size:    size,
			Payload: buf.Bytes(),
		})
		leaves = append(leaves, integrityLeaf{id: id, etag: p.etags[id], size: size})

		p.lastSizes[id] = size
	}

	h := header{
		Version:        p.version,
		Etags:          copyStrMap(p.etags),
		Unserializable: copySet(p.unserializable),
		LastAccess:     copyInt64Map(p.lastAccess),
		BuildSnapshot:  p.buildSnapshot,
		IntegrityRoot:  computeIntegrityRoot(leaves),
	}

	enc := gob.NewEncoder(w)
	if err := enc.Encode(&h); err != nil {
		return fmt.Errorf("pack: encode header: %w", err)
	}
	for _, r := range records {
		if err := enc.Encode(&r); err != nil {
			return fmt.Errorf("pack: encode entry %q: %w", r.ID, err)
		}
	}
	if err := enc.Encode(&record{ID: ""}); err != nil {
		return fmt.Errorf("pack: encode sentinel: %w", err)
	}

	p.invalid = false
	return nil
}

// ErrVersionMismatch is wrapped by Deserialize when the entries read back
// do not reproduce the header's integrity root; it is treated like a
// version mismatch, non-fatal, and callers should start fresh. Comparing
// the version string itself is left to the caller.
var ErrVersionMismatch = errors.New("pack: version mismatch")

// Deserialize reads a pack previously written by Serialize. It does not
// itself compare against an expected version; callers do that (spec.md
// §4.5 treats the comparison as the strategy's responsibility, not the
// pack's).
func Deserialize(r io.Reader) (*Pack, error) {
	dec := gob.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("pack: decode header: %w", err)
	}

	p := New(h.Version)
	p.etags = h.Etags
	p.unserializable = h.Unserializable
	p.lastAccess = h.LastAccess
	p.buildSnapshot = h.BuildSnapshot
	if p.etags == nil {
		p.etags = map[string]string{}
	}
	if p.unserializable == nil {
		p.unserializable = map[string]struct{}{}
	}
	if p.lastAccess == nil {
		p.lastAccess = map[string]int64{}
	}

	var leaves []integrityLeaf

	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("pack: decode entry: %w", err)
		}
		if rec.ID == "" {
			break
		}
		if !rec.HasData {
			p.unpackMissing(rec.ID)
			continue
		}

		var value any
		if err := gob.NewDecoder(bytes.NewReader(rec.Payload)).Decode(&value); err != nil {
			p.unpackMissing(rec.ID)
			continue
		}

		p.unpackEntry(rec.ID, rec.Tier, rec.Size, value)
		leaves = append(leaves, integrityLeaf{id: rec.ID, etag: p.etags[rec.ID], size: rec.Size})
	}

	if got := computeIntegrityRoot(leaves); got != h.IntegrityRoot {
		return nil, fmt.Errorf("pack: %w: integrity root mismatch", ErrVersionMismatch)
	}

	return p, nil
}

// unpackMissing implements spec.md §4.4's unpack for an entry that
// "carries no data": record id as unserializable and forget its size.
func (p *Pack) unpackMissing(id string) {
	p.unserializable[id] = struct{}{}
	delete(p.lastSizes, id)
}

// unpackEntry implements spec.md §4.4's migration policy: an entry that
// arrived inline but whose measured size exceeds MaxInlineSize (or
// arrived lazy but now fits) flips the pack to invalid so the next
// afterAllStored rewrites it in the correct tier.
func (p *Pack) unpackEntry(id string, incoming tier, size int, value any) {
	p.content[id] = value
	p.lastSizes[id] = size

	switch {
	case incoming == tierInline && size > MaxInlineSize:
		p.invalid = true // inline -> lazy
	case incoming == tierLazy && size <= MaxInlineSize:
		p.invalid = true // lazy -> inline
	}
}

// WriteAtomic serializes p to path via a temp-file-then-rename sequence,
// per spec.md §4.5: "the serializer is responsible for write-then-replace."
func (p *Pack) WriteAtomic(path string, mode SyncMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("pack: create temp file: %w", err)
	}

	if err := p.Serialize(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if mode != SyncNone {
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("pack: fsync temp file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("pack: close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("pack: rename into place: %w", err)
	}

	if mode == SyncFull {
		if dir, err := os.Open(dirOf(path)); err == nil {
			dir.Sync()
			dir.Close()
		}
	}

	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func copyStrMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyInt64Map(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
