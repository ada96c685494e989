// Package packcache implements PackFileCacheStrategy from spec.md §4.5:
// orchestrates pack restore (with build-snapshot revalidation), store, and
// atomic rewrite.
package packcache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"buildcache-go/internal/fsinfo"
	"buildcache-go/internal/logging"
	"buildcache-go/internal/pack"
	"buildcache-go/internal/resolve"
)

// DefaultMaxAge is the 2-day default GC maxAge spec.md §4.5 names.
const DefaultMaxAge = int64(2 * 24 * time.Hour / time.Millisecond)

// Strategy is the C5 component of spec.md §2.
type Strategy struct {
	cacheLocation string
	version       string
	fsInfo        *fsinfo.FileSystemInfo
	logger        *logging.Logger

	ready chan struct{}
	mu    sync.Mutex
	pack  *pack.Pack
}

// New constructs a Strategy and kicks off exactly one background
// deserialize of "<cacheLocation>.pack", per spec.md §4.5's construction
// contract.
func New(cacheLocation, version string, fsInfo *fsinfo.FileSystemInfo, logger *logging.Logger) *Strategy {
	s := &Strategy{
		cacheLocation: cacheLocation,
		version:       version,
		fsInfo:        fsInfo,
		logger:        logger,
		ready:         make(chan struct{}),
	}
	go s.load()
	return s
}

func (s *Strategy) load() {
	defer close(s.ready)

	path := s.cacheLocation + ".pack"
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.setPack(pack.New(s.version))
		return
	case err != nil:
		s.logger.Warn("pack: open failed, starting fresh: %v", err)
		s.setPack(pack.New(s.version))
		return
	}
	defer f.Close()

	loaded, err := pack.Deserialize(f)
	if err != nil {
		s.logger.Warn("pack: deserialize failed, starting fresh: %v", err)
		s.setPack(pack.New(s.version))
		return
	}
	if loaded.Version() != s.version {
		s.logger.Log("pack: version mismatch (%s != %s), starting fresh", loaded.Version(), s.version)
		s.setPack(pack.New(s.version))
		return
	}

	if snap := loaded.BuildSnapshot(); snap != nil {
		if !s.fsInfo.CheckSnapshotValid(snap) {
			s.logger.Log("pack: embedded build snapshot invalid, starting fresh")
			s.setPack(pack.New(s.version))
			return
		}
	}

	s.setPack(loaded)
}

func (s *Strategy) setPack(p *pack.Pack) {
	s.mu.Lock()
	s.pack = p
	s.mu.Unlock()
}

func (s *Strategy) awaitPack() *pack.Pack {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pack
}

// Store implements spec.md §4.5's store(id, etag, data): awaits the pack
// promise and calls Pack.Set.
func (s *Strategy) Store(id, etag string, data any) {
	s.awaitPack().Set(id, etag, data)
}

// Restore implements spec.md §4.5's restore(id, etag): awaits the pack
// promise and returns Pack.Get.
func (s *Strategy) Restore(id, etag string) (any, bool) {
	return s.awaitPack().Get(id, etag)
}

// StoreBuildDependencies implements spec.md §4.5's
// storeBuildDependencies(deps): resolves via ResolveBuildDependencies and
// createSnapshot(hash: true), merging the result into the pack's build
// snapshot.
func (s *Strategy) StoreBuildDependencies(runner *resolve.Runner, deps resolve.Dependencies, missing []string) error {
	result, err := s.fsInfo.ResolveBuildDependencies(runner, deps)
	if err != nil {
		return fmt.Errorf("packcache: resolve build dependencies: %w", err)
	}

	snap := s.fsInfo.CreateSnapshot(0, result.Files, result.Directories, missing, fsinfo.SnapshotOptions{Hash: true})
	s.awaitPack().SetBuildSnapshot(snap)
	return nil
}

// AfterAllStored implements spec.md §4.5's afterAllStored(): a no-op
// unless the pack is invalid, in which case it runs CollectGarbage then
// writes the pack atomically and logs timings.
func (s *Strategy) AfterAllStored(maxAge int64, mode pack.SyncMode) error {
	p := s.awaitPack()
	if !p.Invalid() {
		return nil
	}

	s.logger.Time("pack: afterAllStored")
	defer s.logger.TimeEnd("pack: afterAllStored")

	p.CollectGarbage(maxAge, time.Now().UnixMilli())

	if err := p.WriteAtomic(s.cacheLocation+".pack", mode); err != nil {
		return fmt.Errorf("packcache: write pack: %w", err)
	}
	return nil
}
