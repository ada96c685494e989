// Package snapshot defines the fact model spec.md §3 describes as
// FsEntry | None | ERROR, and the Snapshot container that groups facts
// gathered during resolveBuildDependencies.
//
// The union is modeled as tagged structs rather than interface{} sentinels,
// per spec.md §9's own design note recommending a tagged variant: each fact
// type carries an explicit Missing/Err field instead of relying on nil or a
// magic value to mean "absent".
package snapshot

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"time"
)

// TimestampFact is the outcome of reading a path's mtime.
type TimestampFact struct {
	Safe      int64 // last-safe-read time, ms since epoch; see spec.md §4.3
	Timestamp int64 // observed mtime, ms since epoch; zero if Missing
	Missing   bool
	Err       error
}

// HashFact is the outcome of hashing a path's content.
type HashFact struct {
	Hash    string
	Missing bool
	Err     error
}

// ManagedFact is the outcome of resolving a path to its owning managed item
// (e.g. an npm package root) and that item's version/info.
type ManagedFact struct {
	ItemPath string
	Version  string
	Missing  bool
	Err      error
}

// The three fact types carry an `error` field, which gob cannot encode
// directly (arbitrary error implementations aren't registered types). Each
// implements GobEncode/GobDecode over a shadow struct that flattens Err to
// a message string, so a Pack's embedded build snapshot (spec.md §4.5)
// round-trips through Pack.Serialize without requiring every possible
// error type to be pre-registered.

type wireTimestampFact struct {
	Safe, Timestamp int64
	Missing         bool
	ErrMsg          string
}

func (f TimestampFact) GobEncode() ([]byte, error) {
	return gobEncode(wireTimestampFact{f.Safe, f.Timestamp, f.Missing, errMsg(f.Err)})
}

func (f *TimestampFact) GobDecode(data []byte) error {
	var w wireTimestampFact
	if err := gobDecode(data, &w); err != nil {
		return err
	}
	*f = TimestampFact{Safe: w.Safe, Timestamp: w.Timestamp, Missing: w.Missing, Err: errFromMsg(w.ErrMsg)}
	return nil
}

// MarshalJSON/UnmarshalJSON mirror the Gob methods above for the same
// reason: `error` is a non-empty interface and json can neither encode an
// unregistered concrete error type nor decode into it directly.

func (f TimestampFact) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTimestampFact{f.Safe, f.Timestamp, f.Missing, errMsg(f.Err)})
}

func (f *TimestampFact) UnmarshalJSON(data []byte) error {
	var w wireTimestampFact
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = TimestampFact{Safe: w.Safe, Timestamp: w.Timestamp, Missing: w.Missing, Err: errFromMsg(w.ErrMsg)}
	return nil
}

type wireHashFact struct {
	Hash    string
	Missing bool
	ErrMsg  string
}

func (f HashFact) GobEncode() ([]byte, error) {
	return gobEncode(wireHashFact{f.Hash, f.Missing, errMsg(f.Err)})
}

func (f *HashFact) GobDecode(data []byte) error {
	var w wireHashFact
	if err := gobDecode(data, &w); err != nil {
		return err
	}
	*f = HashFact{Hash: w.Hash, Missing: w.Missing, Err: errFromMsg(w.ErrMsg)}
	return nil
}

func (f HashFact) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireHashFact{f.Hash, f.Missing, errMsg(f.Err)})
}

func (f *HashFact) UnmarshalJSON(data []byte) error {
	var w wireHashFact
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = HashFact{Hash: w.Hash, Missing: w.Missing, Err: errFromMsg(w.ErrMsg)}
	return nil
}

type wireManagedFact struct {
	ItemPath, Version string
	Missing           bool
	ErrMsg            string
}

func (f ManagedFact) GobEncode() ([]byte, error) {
	return gobEncode(wireManagedFact{f.ItemPath, f.Version, f.Missing, errMsg(f.Err)})
}

func (f *ManagedFact) GobDecode(data []byte) error {
	var w wireManagedFact
	if err := gobDecode(data, &w); err != nil {
		return err
	}
	*f = ManagedFact{ItemPath: w.ItemPath, Version: w.Version, Missing: w.Missing, Err: errFromMsg(w.ErrMsg)}
	return nil
}

func (f ManagedFact) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireManagedFact{f.ItemPath, f.Version, f.Missing, errMsg(f.Err)})
}

func (f *ManagedFact) UnmarshalJSON(data []byte) error {
	var w wireManagedFact
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = ManagedFact{ItemPath: w.ItemPath, Version: w.Version, Missing: w.Missing, Err: errFromMsg(w.ErrMsg)}
	return nil
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errFromMsg(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Snapshot is the set of facts gathered for one resolveBuildDependencies
// or createSnapshot call, keyed by path. StartTime records when gathering
// began; validation compares file safe-times against it, and Merge keeps
// the smaller of two StartTimes (b wins on overlapping keys regardless).
type Snapshot struct {
	StartTime         int64
	FileTimestamps    map[string]TimestampFact
	FileHashes        map[string]HashFact
	ContextTimestamps map[string]TimestampFact
	ContextHashes     map[string]HashFact
	MissingTimestamps map[string]TimestampFact
	ManagedItems      map[string]ManagedFact
}

// New returns an empty Snapshot stamped with the current time.
func New() *Snapshot {
	return &Snapshot{
		StartTime:         time.Now().UnixMilli(),
		FileTimestamps:    map[string]TimestampFact{},
		FileHashes:        map[string]HashFact{},
		ContextTimestamps: map[string]TimestampFact{},
		ContextHashes:     map[string]HashFact{},
		MissingTimestamps: map[string]TimestampFact{},
		ManagedItems:      map[string]ManagedFact{},
	}
}

// Merge combines a and b into a new Snapshot per spec.md §4.3: each field
// becomes the union of both sides, and b wins on key collisions regardless
// of which side is "newer" — insertion order does not matter because keys
// coincide by path. StartTime is the minimum of the two, per the Open
// Question resolution in spec.md §9 ("this spec takes the side that has
// it... to avoid widening the trust window"): when only one side sets
// StartTime, that side's value is kept rather than defaulting to zero.
func Merge(a, b *Snapshot) *Snapshot {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	out := New()
	out.StartTime = minStartTime(a.StartTime, b.StartTime)

	mergeTimestamps(out.FileTimestamps, a.FileTimestamps, b.FileTimestamps)
	mergeHashes(out.FileHashes, a.FileHashes, b.FileHashes)
	mergeTimestamps(out.ContextTimestamps, a.ContextTimestamps, b.ContextTimestamps)
	mergeHashes(out.ContextHashes, a.ContextHashes, b.ContextHashes)
	mergeTimestamps(out.MissingTimestamps, a.MissingTimestamps, b.MissingTimestamps)
	mergeManaged(out.ManagedItems, a.ManagedItems, b.ManagedItems)

	return out
}

// minStartTime returns the smaller of two StartTime values, treating zero
// as "unset" so a single-sided StartTime is preserved rather than losing
// to a zero-valued absent side.
func minStartTime(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func mergeTimestamps(dst, a, b map[string]TimestampFact) {
	for k, v := range a {
		dst[k] = v
	}
	for k, v := range b {
		dst[k] = v
	}
}

func mergeHashes(dst, a, b map[string]HashFact) {
	for k, v := range a {
		dst[k] = v
	}
	for k, v := range b {
		dst[k] = v
	}
}

func mergeManaged(dst, a, b map[string]ManagedFact) {
	for k, v := range a {
		dst[k] = v
	}
	for k, v := range b {
		dst[k] = v
	}
}
