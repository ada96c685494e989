// Package walker enumerates candidate files/directories under a root,
// honoring glob-style exclusions, ahead of feeding them into
// fsinfo.FileSystemInfo or resolve.Runner. Hashing itself has moved to
// FileSystemInfo's own coalesced hash cache, so the teacher's HashFiles
// worker pool is gone; this package now does discovery only.
//
// Walk also knows the managed-item boundary rule from internal/managedpath:
// once it descends into a configured managed root (e.g. node_modules) far
// enough to identify one item, it stops recursing and reports that
// directory instead of walking every file the item contains. fsinfo folds
// the same boundary for paths it's handed directly, so a caller gets the
// same one-fact-per-item result whether or not the walker did the
// discovery.
package walker

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"buildcache-go/internal/managedpath"
)

// FileInfo describes one discovered file.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// WalkResult collects discovered files and managed-item boundary
// directories, plus any errors tolerated during the walk (permission
// errors on individual entries don't abort the walk).
type WalkResult struct {
	Files       []FileInfo
	Directories []string
	Errors      []error
}

// Walk enumerates rootPath, skipping any relative path matched by
// exclusions and not descending past a managedRoots boundary.
func Walk(rootPath string, exclusions, managedRoots []string) (*WalkResult, error) {
	result := &WalkResult{
		Files:       make([]FileInfo, 0),
		Directories: make([]string, 0),
		Errors:      make([]error, 0),
	}

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == rootPath {
				return err
			}
			result.Errors = append(result.Errors, err)
			return nil
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			result.Errors = append(result.Errors, err)
			return nil
		}

		if shouldExclude(relPath, d, exclusions) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() && path != rootPath {
			if len(managedRoots) > 0 && atManagedItemBoundary(relPath, managedRoots) {
				result.Directories = append(result.Directories, path)
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			info, err := d.Info()
			if err != nil {
				result.Errors = append(result.Errors, err)
				return nil
			}

			result.Files = append(result.Files, FileInfo{
				Path:    path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return result, nil
}

// atManagedItemBoundary reports whether relPath (rootPath-relative) names
// exactly one item beneath a managed root: the first segment after the
// root for a plain package, or the first two for a scoped one (@scope/name
// kept whole, per managedpath.Segment's counting rule). A directory
// shallower than that — the managed root itself, or a bare scope directory
// awaiting its package name — is not a boundary yet and the walker keeps
// descending exactly one more level.
func atManagedItemBoundary(relPath string, managedRoots []string) bool {
	segs := strings.Split(filepath.ToSlash(relPath), "/")
	for idx, seg := range segs {
		if !managedpath.IsRootName(seg, managedRoots) {
			continue
		}
		after := segs[idx+1:]
		switch {
		case len(after) == 0:
			return false
		case len(after) == 1 && strings.HasPrefix(after[0], "@"):
			return false
		default:
			return true
		}
	}
	return false
}

func shouldExclude(relPath string, d fs.DirEntry, exclusions []string) bool {
	for _, pattern := range exclusions {
		if strings.HasSuffix(pattern, "/") {
			dirPattern := strings.TrimSuffix(pattern, "/")
			parts := strings.Split(relPath, string(filepath.Separator))
			for _, part := range parts {
				if matched, _ := filepath.Match(dirPattern, part); matched {
					return true
				}
				if part == dirPattern {
					return true
				}
			}
		} else {
			matched, err := filepath.Match(pattern, filepath.Base(relPath))
			if err == nil && matched {
				return true
			}
			if strings.Contains(pattern, "/") {
				matched, err := filepath.Match(pattern, relPath)
				if err == nil && matched {
					return true
				}
			}
		}
	}
	return false
}
