// Package accuracy tracks how precise mtime readings are on the host
// filesystem, tightening a shared estimate as evidence comes in.
package accuracy

import "sync/atomic"

// Default is the starting estimate, in milliseconds, before any mtime has
// been observed. Most filesystems are at least this coarse.
const Default int64 = 2000

// Estimator is a monotone-tightening estimate of filesystem mtime
// granularity. It is safe for concurrent use. Unlike the source
// implementation's process-wide global, one Estimator is bound per
// FileSystemInfo instance so tests can control it directly (see DESIGN.md).
type Estimator struct {
	value atomic.Int64
}

// New returns an Estimator starting at Default.
func New() *Estimator {
	e := &Estimator{}
	e.value.Store(Default)
	return e
}

// Value returns the current accuracy estimate in milliseconds.
func (e *Estimator) Value() int64 {
	return e.value.Load()
}

// Observe tightens the estimate from a freshly-read mtime, in milliseconds
// since the epoch. The estimate never grows.
func (e *Estimator) Observe(mtimeMs int64) {
	if mtimeMs == 0 {
		return
	}
	for {
		cur := e.value.Load()
		next := tighten(cur, mtimeMs)
		if next == cur {
			return
		}
		if e.value.CompareAndSwap(cur, next) {
			return
		}
	}
}

func tighten(accuracy, mtime int64) int64 {
	switch {
	case accuracy > 1 && mtime%2 != 0:
		return 1
	case accuracy > 10 && mtime%20 != 0:
		return 10
	case accuracy > 100 && mtime%200 != 0:
		return 100
	case accuracy > 1000 && mtime%2000 != 0:
		return 1000
	default:
		return accuracy
	}
}
