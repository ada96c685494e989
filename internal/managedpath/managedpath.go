// Package managedpath holds the managed-item boundary rule spec.md §3
// defines, shared by internal/fsinfo (which folds paths beneath a managed
// root into one fact) and internal/walker (which stops descending once it
// reaches that same boundary, so a vendored tree's contents are never
// individually enumerated).
package managedpath

import "strings"

// IsRootName reports whether name, a single path segment, matches one of
// the configured managed-root names (e.g. "node_modules"). Entries are
// compared by basename: a leading/trailing separator in the configured
// value is tolerated so both "node_modules" and "/node_modules" behave the
// same, and the match applies wherever that name occurs in a path, not
// only at the walk root, since real dependency trees nest managed roots
// (node_modules inside node_modules).
func IsRootName(name string, roots []string) bool {
	for _, r := range roots {
		if trimSeparators(r) == name {
			return true
		}
	}
	return false
}

func trimSeparators(s string) string {
	return strings.Trim(s, "/\\")
}

// Segment returns the item-identifying prefix of rel, a slash-separated
// path already relative to a managed root: the first segment for a plain
// package ("pkg/lib/x.js" -> "pkg"), or the first two for a scoped one
// starting with '@' ("@scope/pkg/lib/x.js" -> "@scope/pkg"), so scoped
// names are kept whole.
func Segment(rel string) string {
	need := 1
	if strings.HasPrefix(rel, "@") {
		need = 2
	}
	count := 0
	for idx := 0; idx < len(rel); idx++ {
		c := rel[idx]
		if c == '/' || c == '\\' {
			count++
			if count == need {
				return rel[:idx]
			}
		}
	}
	return rel
}
