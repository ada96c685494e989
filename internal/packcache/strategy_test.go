package packcache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"buildcache-go/internal/fsinfo"
	"buildcache-go/internal/inputfs"
	"buildcache-go/internal/logging"
	"buildcache-go/internal/pack"
	"buildcache-go/internal/resolve"
)

func newTestStrategy(t *testing.T, cacheLocation, version string) *Strategy {
	t.Helper()
	info := fsinfo.New(inputfs.NewOsFS(), fsinfo.Options{})
	logger := logging.New(logging.Options{Level: "error"})
	return New(cacheLocation, version, info, logger)
}

func TestNewWithNoCacheFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	s := newTestStrategy(t, filepath.Join(dir, "cache"), "v1")

	if _, ok := s.Restore("id1", "e1"); ok {
		t.Fatalf("Restore() ok = true, want false on a fresh pack")
	}
	s.Store("id1", "e1", []byte("hello"))
	v, ok := s.Restore("id1", "e1")
	if !ok || !bytes.Equal(v.([]byte), []byte("hello")) {
		t.Fatalf("Restore() = (%v, %v), want (hello, true)", v, ok)
	}
}

// S5 at the strategy layer: a pack on disk under one version is discarded
// silently in favor of a fresh pack when the caller's version differs.
func TestVersionMismatchStartsFreshNoError(t *testing.T) {
	dir := t.TempDir()
	loc := filepath.Join(dir, "cache")

	p := pack.New("v1")
	p.Set("id1", "e1", []byte("old"))
	if err := p.WriteAtomic(loc+".pack", pack.SyncNone); err != nil {
		t.Fatal(err)
	}

	s := newTestStrategy(t, loc, "v2")
	if _, ok := s.Restore("id1", "e1"); ok {
		t.Fatalf("Restore() ok = true, want false: version mismatch should discard the old pack")
	}
}

func TestCorruptPackFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	loc := filepath.Join(dir, "cache")
	if err := os.WriteFile(loc+".pack", []byte("not a pack"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestStrategy(t, loc, "v1")
	if _, ok := s.Restore("id1", "e1"); ok {
		t.Fatalf("Restore() ok = true, want false for a corrupt pack file")
	}
	s.Store("id1", "e1", []byte("fresh"))
	v, ok := s.Restore("id1", "e1")
	if !ok || !bytes.Equal(v.([]byte), []byte("fresh")) {
		t.Fatalf("expected the fresh pack to be usable after a corrupt load")
	}
}

func TestAfterAllStoredNoOpWhenNotInvalid(t *testing.T) {
	dir := t.TempDir()
	loc := filepath.Join(dir, "cache")
	s := newTestStrategy(t, loc, "v1")
	// awaitPack() with no Store calls yet: pack is not invalid.
	s.awaitPack()

	if err := s.AfterAllStored(DefaultMaxAge, pack.SyncNone); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(loc + ".pack"); !os.IsNotExist(err) {
		t.Fatalf("expected no pack file to be written when the pack was never touched")
	}
}

func TestAfterAllStoredWritesPackWhenInvalid(t *testing.T) {
	dir := t.TempDir()
	loc := filepath.Join(dir, "cache")
	s := newTestStrategy(t, loc, "v1")

	s.Store("id1", "e1", []byte("hello"))
	if err := s.AfterAllStored(DefaultMaxAge, pack.SyncNone); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(loc + ".pack"); err != nil {
		t.Fatalf("expected a pack file to be written: %v", err)
	}

	// A fresh strategy reading the same location should see the stored entry.
	s2 := newTestStrategy(t, loc, "v1")
	v, ok := s2.Restore("id1", "e1")
	if !ok || !bytes.Equal(v.([]byte), []byte("hello")) {
		t.Fatalf("Restore() = (%v, %v), want (hello, true) after reload", v, ok)
	}
}

func TestStoreBuildDependenciesMergesSnapshot(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(fileA, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	loc := filepath.Join(dir, "cache")
	s := newTestStrategy(t, loc, "v1")

	resolver := resolve.NewDefaultResolver(inputfs.NewOsFS())
	runner := resolve.NewRunner(resolver, resolver, resolver)

	deps := resolve.Dependencies{Context: dir, Requests: []string{"a.txt"}}
	if err := s.StoreBuildDependencies(runner, deps, nil); err != nil {
		t.Fatal(err)
	}

	p := s.awaitPack()
	snap := p.BuildSnapshot()
	if snap == nil {
		t.Fatalf("expected a non-nil build snapshot after StoreBuildDependencies")
	}
	if _, ok := snap.FileHashes[fileA]; !ok {
		t.Fatalf("FileHashes missing %s, got %v", fileA, snap.FileHashes)
	}
}

func TestEmbeddedInvalidSnapshotStartsFresh(t *testing.T) {
	dir := t.TempDir()
	loc := filepath.Join(dir, "cache")

	p := pack.New("v1")
	p.Set("id1", "e1", []byte("stale"))

	info := fsinfo.New(inputfs.NewOsFS(), fsinfo.Options{})
	// A snapshot claiming context timestamps were used is always invalid,
	// per FileSystemInfo.CheckSnapshotValid's fail-closed contract.
	badSnap := info.CreateSnapshot(time.Now().UnixMilli(), nil, nil, nil, fsinfo.SnapshotOptions{})
	badSnap.ContextTimestamps["/anything"] = badSnap.FileTimestamps["/anything"]
	p.SetBuildSnapshot(badSnap)

	if err := p.WriteAtomic(loc+".pack", pack.SyncNone); err != nil {
		t.Fatal(err)
	}

	logger := logging.New(logging.Options{Level: "error"})
	s := New(loc, "v1", info, logger)

	if _, ok := s.Restore("id1", "e1"); ok {
		t.Fatalf("Restore() ok = true, want false: embedded invalid snapshot should discard the pack")
	}
}
