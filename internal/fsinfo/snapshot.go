package fsinfo

import (
	"errors"
	"sync"

	"buildcache-go/internal/snapshot"
)

// ErrContextTimestampUnsupported is the ERROR spec.md §4.3 says
// createSnapshot records for every directory in timestamp mode: "directories
// are currently recorded as ERROR in contextTimestamps — §9". It exists
// purely to make the resulting snapshot permanently invalid, per the
// fail-closed Open Question resolution readContextTimestamp itself takes.
var ErrContextTimestampUnsupported = errors.New("fsinfo: context timestamps are not supported")

// SnapshotOptions selects hash mode vs timestamp mode for CreateSnapshot,
// spec.md §4.3's options.hash switch.
type SnapshotOptions struct {
	Hash bool

	// Progress, if set, is called exactly once per entry in files,
	// directories, and missing as that entry's fact finishes resolving
	// (or immediately, for an entry folded into a managed item). Callers
	// size a progress indicator off len(files)+len(directories)+
	// len(missing) and use this as the tick, so it reports the fan-out
	// CreateSnapshot itself performs rather than the pre-walk listing.
	Progress func(path string)
}

// CreateSnapshot implements spec.md §4.3's createSnapshot(startTime, files,
// directories, missing, options).
func (i *FileSystemInfo) CreateSnapshot(startTime int64, files, directories, missing []string, opts SnapshotOptions) *snapshot.Snapshot {
	snap := snapshot.New()
	snap.StartTime = startTime

	var wg sync.WaitGroup
	var mu sync.Mutex

	managedItems := map[string]struct{}{}

	notify := func(path string) {
		if opts.Progress != nil {
			opts.Progress(path)
		}
	}

	foldOrElse := func(path string, run func()) {
		if itemPath, ok := i.managedRootFor(path); ok {
			mu.Lock()
			managedItems[itemPath] = struct{}{}
			mu.Unlock()
			notify(path)
			return
		}
		run()
	}

	for _, path := range files {
		path := path
		foldOrElse(path, func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer notify(path)
				if opts.Hash {
					fact, err := i.GetFileHash(path)
					mu.Lock()
					snap.FileHashes[path] = withHashErr(fact, err)
					mu.Unlock()
				} else {
					fact, err := i.GetFileTimestamp(path)
					mu.Lock()
					snap.FileTimestamps[path] = withTimestampErr(fact, err)
					mu.Unlock()
				}
			}()
		})
	}

	for _, dir := range directories {
		dir := dir
		foldOrElse(dir, func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer notify(dir)
				if opts.Hash {
					fact, err := i.GetContextHash(dir)
					mu.Lock()
					snap.ContextHashes[dir] = withHashErr(fact, err)
					mu.Unlock()
				} else {
					mu.Lock()
					snap.ContextTimestamps[dir] = snapshot.TimestampFact{Err: ErrContextTimestampUnsupported}
					mu.Unlock()
				}
			}()
		})
	}

	// Missing paths always go through file-timestamp reads: their
	// absence/presence is the interesting fact, per spec.md §4.3.
	for _, path := range missing {
		path := path
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer notify(path)
			fact, err := i.GetFileTimestamp(path)
			mu.Lock()
			snap.MissingTimestamps[path] = withTimestampErr(fact, err)
			mu.Unlock()
		}()
	}

	wg.Wait()

	var itemWg sync.WaitGroup
	for itemPath := range managedItems {
		itemPath := itemPath
		itemWg.Add(1)
		go func() {
			defer itemWg.Done()
			fact, err := i.GetManagedItemInfo(itemPath)
			mu.Lock()
			if err != nil {
				snap.ManagedItems[itemPath] = snapshot.ManagedFact{ItemPath: itemPath, Err: err}
			} else {
				snap.ManagedItems[itemPath] = fact
			}
			mu.Unlock()
		}()
	}
	itemWg.Wait()

	return snap
}

func withHashErr(fact snapshot.HashFact, err error) snapshot.HashFact {
	if err != nil {
		return snapshot.HashFact{Err: err}
	}
	return fact
}

func withTimestampErr(fact snapshot.TimestampFact, err error) snapshot.TimestampFact {
	if err != nil {
		return snapshot.TimestampFact{Err: err}
	}
	return fact
}
