package snapshot

import "testing"

func TestNewIsEmpty(t *testing.T) {
	s := New()
	if len(s.FileHashes) != 0 || len(s.FileTimestamps) != 0 {
		t.Fatalf("New() snapshot not empty: %+v", s)
	}
	if s.StartTime == 0 {
		t.Fatalf("StartTime not stamped")
	}
}

func TestMergeNilSides(t *testing.T) {
	s := New()
	s.FileHashes["a"] = HashFact{Hash: "x"}

	if got := Merge(nil, s); got != s {
		t.Fatalf("Merge(nil, s) should return s")
	}
	if got := Merge(s, nil); got != s {
		t.Fatalf("Merge(s, nil) should return s")
	}
}

func TestMergeBWinsOnOverlap(t *testing.T) {
	a := New()
	a.StartTime = 200
	a.FileHashes["x"] = HashFact{Hash: "a-val"}

	b := New()
	b.StartTime = 100
	b.FileHashes["x"] = HashFact{Hash: "b-val"}

	merged := Merge(a, b)
	if merged.FileHashes["x"].Hash != "b-val" {
		t.Fatalf("FileHashes[x] = %q, want %q (b always wins on collision)", merged.FileHashes["x"].Hash, "b-val")
	}
	if merged.StartTime != 100 {
		t.Fatalf("StartTime = %d, want 100 (minimum of the two)", merged.StartTime)
	}
}

func TestMergeBWinsEvenWhenBIsOlder(t *testing.T) {
	// b overriding on collision does not depend on which side is newer.
	a := New()
	a.StartTime = 50
	a.FileHashes["x"] = HashFact{Hash: "a-val"}

	b := New()
	b.StartTime = 500
	b.FileHashes["x"] = HashFact{Hash: "b-val"}

	merged := Merge(a, b)
	if merged.FileHashes["x"].Hash != "b-val" {
		t.Fatalf("FileHashes[x] = %q, want %q", merged.FileHashes["x"].Hash, "b-val")
	}
	if merged.StartTime != 50 {
		t.Fatalf("StartTime = %d, want 50 (minimum of the two)", merged.StartTime)
	}
}

func TestMergeSingleSidedStartTimeIsPreserved(t *testing.T) {
	a := New()
	a.StartTime = 0
	b := New()
	b.StartTime = 300

	if got := Merge(a, b).StartTime; got != 300 {
		t.Fatalf("StartTime = %d, want 300 (the only side that set it)", got)
	}
	if got := Merge(b, a).StartTime; got != 300 {
		t.Fatalf("StartTime = %d, want 300 regardless of argument order", got)
	}
}

func TestMergeKeepsSingleSidedEntries(t *testing.T) {
	a := New()
	a.StartTime = 100
	a.FileHashes["only-a"] = HashFact{Hash: "a-val"}

	b := New()
	b.StartTime = 200
	b.FileHashes["only-b"] = HashFact{Hash: "b-val"}

	merged := Merge(a, b)
	if merged.FileHashes["only-a"].Hash != "a-val" {
		t.Fatalf("lost only-a entry")
	}
	if merged.FileHashes["only-b"].Hash != "b-val" {
		t.Fatalf("lost only-b entry")
	}
}

func TestMergeManagedItemsAndContextFacts(t *testing.T) {
	a := New()
	a.StartTime = 100
	a.ManagedItems["pkg"] = ManagedFact{ItemPath: "pkg", Version: "1.0.0"}
	a.ContextHashes["dir"] = HashFact{Hash: "dir-old"}

	b := New()
	b.StartTime = 300
	b.ManagedItems["pkg"] = ManagedFact{ItemPath: "pkg", Version: "2.0.0"}
	b.ContextHashes["dir"] = HashFact{Hash: "dir-new"}

	merged := Merge(a, b)
	if merged.ManagedItems["pkg"].Version != "2.0.0" {
		t.Fatalf("ManagedItems[pkg].Version = %q, want 2.0.0", merged.ManagedItems["pkg"].Version)
	}
	if merged.ContextHashes["dir"].Hash != "dir-new" {
		t.Fatalf("ContextHashes[dir].Hash = %q, want dir-new", merged.ContextHashes["dir"].Hash)
	}
}
