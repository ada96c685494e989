// Package fsinfo implements FileSystemInfo from spec.md §4.3: the
// concurrent, coalescing reader over InputFileSystem that caches per-path
// timestamp and content-hash facts, takes snapshots of that state, and
// later revalidates them.
//
// Each read operation is backed by its own queue.AsyncQueue so that
// concurrent requests for the same path coalesce (spec.md §4.1) and each
// operation kind has its own parallelism budget, per the suggested
// 30/10/2/2/10 split in spec.md §4.3.
package fsinfo

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"buildcache-go/internal/accuracy"
	"buildcache-go/internal/hashutil"
	"buildcache-go/internal/inputfs"
	"buildcache-go/internal/managedpath"
	"buildcache-go/internal/queue"
	"buildcache-go/internal/snapshot"
)

const (
	fileTimestampParallelism    = 30
	fileHashParallelism         = 10
	contextTimestampParallelism = 2
	contextHashParallelism      = 2
	managedItemParallelism      = 10
)

// FileSystemInfo is the C3 component of spec.md §2.
type FileSystemInfo struct {
	fs           inputfs.FS
	accuracy     *accuracy.Estimator
	managedRoots []string

	fileTimestamps    *factCache[snapshot.TimestampFact]
	fileHashes        *factCache[snapshot.HashFact]
	contextTimestamps *factCache[snapshot.TimestampFact]
	contextHashes     *factCache[snapshot.HashFact]
	managedItems      *factCache[snapshot.ManagedFact]

	fileTimestampQueue    *queue.AsyncQueue[snapshot.TimestampFact]
	fileHashQueue         *queue.AsyncQueue[snapshot.HashFact]
	contextTimestampQueue *queue.AsyncQueue[snapshot.TimestampFact]
	contextHashQueue      *queue.AsyncQueue[snapshot.HashFact]
	managedItemQueue      *queue.AsyncQueue[snapshot.ManagedFact]
}

// Options configures a new FileSystemInfo.
type Options struct {
	// ManagedRoots are directory basenames (e.g. "node_modules"): any path
	// with one of these names as a path segment is folded into a single
	// managed-item fact instead of tracked per-file, per spec.md §6's
	// managedPaths configuration surface. The match is by basename, not
	// absolute prefix, so a nested managed root (node_modules inside
	// node_modules) folds the same way as a top-level one; internal/walker
	// applies the identical rule to stop descending once it reaches the
	// item boundary, so managed trees are never walked past that point.
	ManagedRoots []string
}

// New constructs a FileSystemInfo over the given filesystem.
func New(fs inputfs.FS, opts Options) *FileSystemInfo {
	info := &FileSystemInfo{
		fs:           fs,
		accuracy:     accuracy.New(),
		managedRoots: append([]string(nil), opts.ManagedRoots...),

		fileTimestamps:    newFactCache[snapshot.TimestampFact](),
		fileHashes:        newFactCache[snapshot.HashFact](),
		contextTimestamps: newFactCache[snapshot.TimestampFact](),
		contextHashes:     newFactCache[snapshot.HashFact](),
		managedItems:      newFactCache[snapshot.ManagedFact](),
	}

	info.fileTimestampQueue = queue.New(fileTimestampParallelism, info.readFileTimestamp)
	info.fileHashQueue = queue.New(fileHashParallelism, info.readFileHash)
	info.contextTimestampQueue = queue.New(contextTimestampParallelism, info.readContextTimestamp)
	info.contextHashQueue = queue.New(contextHashParallelism, info.readContextHash)
	info.managedItemQueue = queue.New(managedItemParallelism, info.readManagedItemInfo)

	return info
}

// factCache is a per-path, RWMutex-protected memoization table. Grounded
// on the keyed-cache-by-key pattern surveyed from the retrieval pack's
// other_examples (a mutex-protected map keyed by content hash); genericized
// here across the five distinct fact types FileSystemInfo caches.
type factCache[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

func newFactCache[V any]() *factCache[V] {
	return &factCache[V]{m: map[string]V{}}
}

func (c *factCache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *factCache[V]) set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
}

func (c *factCache[V]) addAll(entries map[string]V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range entries {
		c.m[k] = v
	}
}

// AddFileTimestamps pre-seeds the file-timestamp cache, per spec.md §4.3's
// addFileTimestamps(map) collaborator hook.
func (i *FileSystemInfo) AddFileTimestamps(entries map[string]snapshot.TimestampFact) {
	i.fileTimestamps.addAll(entries)
}

// AddContextTimestamps pre-seeds the context-timestamp cache.
func (i *FileSystemInfo) AddContextTimestamps(entries map[string]snapshot.TimestampFact) {
	i.contextTimestamps.addAll(entries)
}

// managedRootFor returns the managed-item absolute path for path, if any
// segment of path names a configured managed root (see managedpath). The
// first such segment, scanning from the left, wins: a managed root nested
// inside another one is folded at the outermost boundary.
func (i *FileSystemInfo) managedRootFor(path string) (itemPath string, ok bool) {
	clean := filepath.ToSlash(path)
	segs := strings.Split(clean, "/")
	for idx, seg := range segs {
		if !managedpath.IsRootName(seg, i.managedRoots) {
			continue
		}
		after := segs[idx+1:]
		if len(after) == 0 {
			// path is the managed root directory itself, not beneath it.
			return "", false
		}
		item := managedpath.Segment(strings.Join(after, "/"))
		root := strings.Join(segs[:idx+1], "/")
		return root + "/" + item, true
	}
	return "", false
}

// GetFileTimestamp returns the cached timestamp fact for path, dispatching
// to the file-timestamp queue on a cache miss.
func (i *FileSystemInfo) GetFileTimestamp(path string) (snapshot.TimestampFact, error) {
	if v, ok := i.fileTimestamps.get(path); ok {
		return v, nil
	}
	return i.fileTimestampQueue.Add(path)
}

// GetFileHash returns the cached hash fact for path, dispatching to the
// file-hash queue on a cache miss.
func (i *FileSystemInfo) GetFileHash(path string) (snapshot.HashFact, error) {
	if v, ok := i.fileHashes.get(path); ok {
		return v, nil
	}
	return i.fileHashQueue.Add(path)
}

// GetContextHash returns the cached context hash for dir, dispatching to
// the context-hash queue on a cache miss.
func (i *FileSystemInfo) GetContextHash(dir string) (snapshot.HashFact, error) {
	if v, ok := i.contextHashes.get(dir); ok {
		return v, nil
	}
	return i.contextHashQueue.Add(dir)
}

// GetManagedItemInfo returns the cached "name@version" fact for itemPath.
func (i *FileSystemInfo) GetManagedItemInfo(itemPath string) (snapshot.ManagedFact, error) {
	if v, ok := i.managedItems.get(itemPath); ok {
		return v, nil
	}
	return i.managedItemQueue.Add(itemPath)
}

// readFileTimestamp implements spec.md §4.3's readFileTimestamp(path).
func (i *FileSystemInfo) readFileTimestamp(path string) (snapshot.TimestampFact, error) {
	st, err := i.fs.Stat(path)
	if inputfs.IsNotExist(err) {
		fact := snapshot.TimestampFact{Missing: true}
		i.fileTimestamps.set(path, fact)
		return fact, nil
	}
	if err != nil {
		return snapshot.TimestampFact{}, err
	}

	// safeTime is computed from the accuracy estimate this read observes,
	// not the one it produces: Observe must run after, or a single
	// coarse-looking mtime tightens accuracy and then under-bounds this
	// same read's safeTime (spec.md §4.3, scenario S2).
	safe := safeTime(st.ModTime, i.accuracy.Value())
	fact := snapshot.TimestampFact{Safe: safe, Timestamp: st.ModTime}
	i.fileTimestamps.set(path, fact)
	i.accuracy.Observe(st.ModTime)
	return fact, nil
}

// safeTime is mtime+accuracy per spec.md §3, or +∞ (represented as
// maxSafeTime, 1<<62) when mtime is zero/unknown.
func safeTime(mtime, acc int64) int64 {
	if mtime == 0 {
		return maxSafeTime
	}
	return mtime + acc
}

const maxSafeTime = int64(1) << 62

// readFileHash implements spec.md §4.3's readFileHash(path).
func (i *FileSystemInfo) readFileHash(path string) (snapshot.HashFact, error) {
	f, err := i.fs.Open(path)
	if inputfs.IsNotExist(err) {
		fact := snapshot.HashFact{Missing: true}
		i.fileHashes.set(path, fact)
		return fact, nil
	}
	if err != nil {
		return snapshot.HashFact{}, err
	}
	defer f.Close()

	hex, err := hashutil.HashReader(f)
	if err != nil {
		return snapshot.HashFact{}, err
	}
	fact := snapshot.HashFact{Hash: hex}
	i.fileHashes.set(path, fact)
	return fact, nil
}

// readContextTimestamp is the reserved stub from spec.md §4.3: "currently
// records None and returns." Per the Open Question in spec.md §9, this
// implementation preserves that fail-closed behavior (choice (b)) rather
// than implementing it analogously to context-hashing.
func (i *FileSystemInfo) readContextTimestamp(path string) (snapshot.TimestampFact, error) {
	fact := snapshot.TimestampFact{Missing: true}
	i.contextTimestamps.set(path, fact)
	return fact, nil
}

// readContextHash implements spec.md §4.3's readContextHash(path):
// NFC-normalize and sort non-hidden entries, hash each (file-hash for
// files, recursive context-hash for subdirectories), then combine the
// sorted names with the child hashes.
func (i *FileSystemInfo) readContextHash(dir string) (snapshot.HashFact, error) {
	entries, err := i.fs.ReadDir(dir)
	if inputfs.IsNotExist(err) {
		fact := snapshot.HashFact{Missing: true}
		i.contextHashes.set(dir, fact)
		return fact, nil
	}
	if err != nil {
		return snapshot.HashFact{}, err
	}

	names := make([]string, 0, len(entries))
	isDir := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		normalized := norm.NFC.String(name)
		names = append(names, normalized)
		isDir[normalized] = e.IsDir()
	}
	sort.Strings(names)

	childHashes := make([]string, len(names))
	for idx, name := range names {
		childPath := filepath.Join(dir, name)
		if isDir[name] {
			// Raise parallelism before recursing to avoid the
			// self-deadlock spec.md §5 describes: recursion can
			// saturate the queue's own budget while waiting on itself.
			i.contextHashQueue.IncreaseParallelism(1)
			fact, err := i.GetContextHash(childPath)
			i.contextHashQueue.DecreaseParallelism(1)
			if err != nil {
				return snapshot.HashFact{}, err
			}
			childHashes[idx] = fact.Hash
		} else {
			fact, err := i.GetFileHash(childPath)
			if err != nil {
				return snapshot.HashFact{}, err
			}
			childHashes[idx] = fact.Hash
		}
	}

	h := hashutil.New()
	for _, n := range names {
		h.Write([]byte(n))
	}
	for _, c := range childHashes {
		h.Write([]byte(c))
	}
	fact := snapshot.HashFact{Hash: hashutil.Sum(h)}
	i.contextHashes.set(dir, fact)
	return fact, nil
}

// readManagedItemInfo implements spec.md §4.3's readManagedItemInfo:
// read itemPath/package.json, return "name@version". Failures are
// propagated as errors and, per spec.md §4.3, are NOT memoized into the
// managed-item cache.
func (i *FileSystemInfo) readManagedItemInfo(itemPath string) (snapshot.ManagedFact, error) {
	f, err := i.fs.Open(filepath.Join(itemPath, "package.json"))
	if inputfs.IsNotExist(err) {
		fact := snapshot.ManagedFact{ItemPath: itemPath, Missing: true}
		i.managedItems.set(itemPath, fact)
		return fact, nil
	}
	if err != nil {
		return snapshot.ManagedFact{}, err
	}
	defer f.Close()

	name, version, err := parsePackageManifest(f)
	if err != nil {
		return snapshot.ManagedFact{}, err
	}

	fact := snapshot.ManagedFact{ItemPath: itemPath, Version: name + "@" + version}
	// Deliberate departure from the source's main path, permitted by the
	// Open Question in spec.md §9: populate the cache on first successful
	// read to accelerate subsequent snapshots.
	i.managedItems.set(itemPath, fact)
	return fact, nil
}
