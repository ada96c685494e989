// Package pack implements the Pack component from spec.md §4.4: a keyed
// in-memory artifact store with per-entry LRU-by-maxAge eviction and a
// two-tier (inline vs. lazy) on-disk representation.
//
// Serialization is built on encoding/gob, chosen per spec.md §9's own
// design note singling out "type tag registration for serialization" as
// the one piece of the original ecosystem worth replacing with "an
// explicit tag string passed to the serializer at binding time" — exactly
// what gob.RegisterName provides. RegisterType exposes that binding.
package pack

import (
	"errors"
	"sort"
	"sync"

	"buildcache-go/internal/snapshot"
)

func init() {
	// []byte is the common case for caller-supplied artifact payloads;
	// pre-bind it so Set/Get work out of the box without every caller
	// needing its own RegisterType call for the simplest payload shape.
	RegisterType("buildcache.bytes", []byte(nil))
}

// MaxInlineSize is the serialized-byte threshold spec.md §4.4 calls
// MAX_INLINE_SIZE, below which an entry is written inline and above which
// it is written as a lazy loader.
const MaxInlineSize = 20000

// ErrNotSerializable is the distinguished NOT_SERIALIZABLE signal from
// spec.md §6: a value that must be dropped silently rather than logged as
// a failure. Callers whose data cannot round-trip through gob should wrap
// their encode error with this sentinel.
var ErrNotSerializable = errors.New("pack: value is not serializable")

type tier byte

const (
	tierInline tier = iota
	tierLazy
)

// Pack is the C4 component of spec.md §2.
type Pack struct {
	mu sync.Mutex

	version        string
	etags          map[string]string
	content        map[string]any
	lastAccess     map[string]int64
	lastSizes      map[string]int
	unserializable map[string]struct{}
	used           map[string]struct{}
	invalid        bool
	buildSnapshot  *snapshot.Snapshot
}

// New returns an empty Pack stamped with version, per spec.md §3: "a pack
// is created empty on first use or on version/validity mismatch."
func New(version string) *Pack {
	return &Pack{
		version:        version,
		etags:          map[string]string{},
		content:        map[string]any{},
		lastAccess:     map[string]int64{},
		lastSizes:      map[string]int{},
		unserializable: map[string]struct{}{},
		used:           map[string]struct{}{},
	}
}

// Version reports the pack's producer version.
func (p *Pack) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Invalid reports whether the in-memory pack differs from what is on disk.
func (p *Pack) Invalid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalid
}

// BuildSnapshot returns the pack's embedded build-dependency snapshot, or
// nil if none has been recorded yet.
func (p *Pack) BuildSnapshot() *snapshot.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buildSnapshot
}

// SetBuildSnapshot assigns or merges deps into the pack's build snapshot,
// per spec.md §4.5's storeBuildDependencies: "the resulting snapshot is
// merged into pack.buildSnapshot or assigned if absent."
func (p *Pack) SetBuildSnapshot(deps *snapshot.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buildSnapshot == nil {
		p.buildSnapshot = deps
		return
	}
	p.buildSnapshot = snapshot.Merge(p.buildSnapshot, deps)
}

// Get implements spec.md §4.4's get(id, etag): returns ok=false if id is
// absent or etag mismatches; marks the entry used otherwise.
func (p *Pack) Get(id, etag string) (data any, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, bad := p.unserializable[id]; bad {
		return nil, false
	}
	stored, present := p.etags[id]
	if !present || stored != etag {
		return nil, false
	}
	v, present := p.content[id]
	if !present {
		return nil, false
	}
	p.used[id] = struct{}{}
	return v, true
}

// Set implements spec.md §4.4's set(id, etag, data): a silent no-op when
// id has previously been marked unserializable.
func (p *Pack) Set(id, etag string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, bad := p.unserializable[id]; bad {
		return
	}
	p.etags[id] = etag
	p.content[id] = data
	p.used[id] = struct{}{}
	p.invalid = true
}

// drainUsed rolls used into lastAccess at now and clears used, the rollup
// spec.md §3 says happens "at serialize-time and GC-time." Callers must
// hold p.mu.
func (p *Pack) drainUsed(now int64) {
	for id := range p.used {
		p.lastAccess[id] = now
	}
	p.used = map[string]struct{}{}
}

// CollectGarbage implements spec.md §4.4's collectGarbage(maxAge): first
// rolls used into lastAccess at now, then drops any id whose lastAccess is
// older than maxAge.
func (p *Pack) CollectGarbage(maxAge int64, now int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drainUsed(now)

	for id, last := range p.lastAccess {
		if now-last > maxAge {
			delete(p.lastAccess, id)
			delete(p.etags, id)
			delete(p.content, id)
			delete(p.lastSizes, id)
		}
	}
}

// RegisterType binds a caller-supplied payload type to an explicit tag
// string so it can round-trip through gob as the dynamic type behind
// Pack's Set/Get `any` values, replacing ecosystem-specific class
// registration (spec.md §9).
func RegisterType(tag string, sample any) {
	gobRegisterName(tag, sample)
}

// sortedIDs returns every id known to the pack (content plus
// unserializable), sorted for deterministic serialization order.
func (p *Pack) sortedIDs() []string {
	ids := make([]string, 0, len(p.content)+len(p.unserializable))
	for id := range p.content {
		ids = append(ids, id)
	}
	for id := range p.unserializable {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
