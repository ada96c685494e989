package fsinfo

import "buildcache-go/internal/snapshot"

// CheckSnapshotValid implements spec.md §4.3's checkSnapshotValid: returns
// true iff every fact in snap still holds against the current filesystem.
// Per spec.md §5, the first failing predicate should short-circuit the
// remaining checks; this implementation checks sequentially and returns
// on the first failure, which is observationally equivalent for a
// synchronous caller.
func (i *FileSystemInfo) CheckSnapshotValid(snap *snapshot.Snapshot) bool {
	if len(snap.ContextTimestamps) > 0 {
		return false
	}

	for path, fact := range snap.FileTimestamps {
		current, err := i.GetFileTimestamp(path)
		if err != nil {
			return false
		}
		if !checkFile(current, fact, snap.StartTime) {
			return false
		}
	}

	for path, fact := range snap.MissingTimestamps {
		current, err := i.GetFileTimestamp(path)
		if err != nil {
			return false
		}
		if !checkExistence(current.Missing, fact) {
			return false
		}
	}

	for path, fact := range snap.FileHashes {
		current, err := i.GetFileHash(path)
		if err != nil {
			return false
		}
		if !checkHash(current.Hash, current.Missing, fact) {
			return false
		}
	}

	for path, fact := range snap.ContextHashes {
		current, err := i.GetContextHash(path)
		if err != nil {
			return false
		}
		if !checkHash(current.Hash, current.Missing, fact) {
			return false
		}
	}

	for path, fact := range snap.ManagedItems {
		current, err := i.GetManagedItemInfo(path)
		if err != nil {
			return false
		}
		if !checkHash(current.Version, current.Missing, hashLikeManaged(fact)) {
			return false
		}
	}

	return true
}

// checkFile implements spec.md §4.3's checkFile(current, snap):
// invalid if snap carries ERROR; invalid if current's freshness window
// overlaps the snapshot's start time (a silent modification is possible);
// invalid if presence disagrees; invalid if both exist and the recorded
// timestamp differs from the current one.
func checkFile(current, snap snapshot.TimestampFact, startTime int64) bool {
	if snap.Err != nil {
		return false
	}
	if current.Safe > startTime {
		return false
	}
	if current.Missing != snap.Missing {
		return false
	}
	if !current.Missing && !snap.Missing {
		if snap.Timestamp != 0 && snap.Timestamp != current.Timestamp {
			return false
		}
	}
	return true
}

// checkHash implements spec.md §4.3's checkHash(current, snap): invalid if
// snap carries ERROR; else valid iff current equals the recorded value,
// where "equals" for a missing path means both sides agree it is missing.
func checkHash(currentValue string, currentMissing bool, snap snapshot.HashFact) bool {
	if snap.Err != nil {
		return false
	}
	if currentMissing != snap.Missing {
		return false
	}
	if currentMissing {
		return true
	}
	return currentValue == snap.Hash
}

// checkExistence implements spec.md §4.3's checkExistance(current, snap):
// invalid if snap carries ERROR; else valid iff presence agrees.
func checkExistence(currentMissing bool, snap snapshot.TimestampFact) bool {
	if snap.Err != nil {
		return false
	}
	return currentMissing == snap.Missing
}

// hashLikeManaged adapts a ManagedFact to the checkHash signature, whose
// spec.md §4.3 comparison ("managedItemInfo entries use checkHash
// semantics") is against the opaque "name@version" string.
func hashLikeManaged(fact snapshot.ManagedFact) snapshot.HashFact {
	return snapshot.HashFact{Hash: fact.Version, Missing: fact.Missing, Err: fact.Err}
}
