// Package resolve implements resolveBuildDependencies from spec.md §4.3: a
// work-list traversal over resolve/resolve-directory/file/directory/
// file-dependencies/directory-dependencies items that discovers the full
// set of files, directories, and missing paths a build depends on.
//
// The work list is driven by golang.org/x/sync/errgroup with a bounded
// semaphore channel, matching spec.md §5's "separate queue with parallelism
// 50"; visited sets are canonical-path-keyed and mutex-protected, breaking
// cycles the way spec.md §5 describes ("ancestor directories strictly
// shrink the path").
package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultParallelism = 50

// Resolver is the external collaborator from spec.md §6: resolve/
// resolveContext, consumed rather than implemented by this package.
type Resolver interface {
	Resolve(context, request string) (absolutePath string, err error)
	ResolveContext(context, request string) (absoluteDirectory string, err error)
}

// ChildProvider answers "what does this file depend on", the require.cache
// analog spec.md §9 calls out as having no portable equivalent: when it
// returns ok=false, the caller falls back to treating the file's containing
// directory as an over-approximation of its dependencies.
type ChildProvider interface {
	ModuleChildren(path string) (children []string, ok bool)
}

// Realpath canonicalizes a path so that visited-set membership is stable
// across symlinks and relative segments.
type Realpath interface {
	Realpath(path string) (string, error)
}

// Dependencies is the input to Run: a starting context plus the raw
// dependency requests to resolve, matching spec.md §4.5's
// storeBuildDependencies(deps) call shape.
type Dependencies struct {
	Context  string
	Requests []string
}

// Result is the {files, directories, missing} triple spec.md §4.3
// describes resolveBuildDependencies as producing.
type Result struct {
	Files       []string
	Directories []string
	Missing     []string
}

// Runner drives one resolveBuildDependencies traversal.
type Runner struct {
	resolver Resolver
	children ChildProvider
	realpath Realpath

	mu          sync.Mutex
	files       map[string]struct{}
	directories map[string]struct{}
}

// NewRunner constructs a Runner. children may be nil, in which case every
// file falls back to the containing-directory over-approximation.
func NewRunner(resolver Resolver, children ChildProvider, realpath Realpath) *Runner {
	return &Runner{
		resolver:    resolver,
		children:    children,
		realpath:    realpath,
		files:       map[string]struct{}{},
		directories: map[string]struct{}{},
	}
}

// work items, matching the incoming column of spec.md §4.3's table.
type kind int

const (
	kindResolve kind = iota
	kindResolveDirectory
	kindFile
	kindDirectory
	kindFileDependencies
	kindDirectoryDependencies
)

type item struct {
	kind    kind
	context string
	path    string
}

// Run traverses the work list to completion and returns the discovered
// files and directories. Result.Missing is always empty: the resolver does
// not add to it, and callers pass their own missing paths to
// CreateSnapshot alongside the result.
func (r *Runner) Run(deps Dependencies) (Result, error) {
	g, _ := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, defaultParallelism)

	var enqueue func(it item)
	enqueue = func(it item) {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			return r.process(it, enqueue)
		})
	}

	for _, req := range deps.Requests {
		enqueue(item{kind: kindResolve, context: deps.Context, path: req})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	res := Result{
		Files:       keys(r.files),
		Directories: keys(r.directories),
	}
	return res, nil
}

func (r *Runner) process(it item, enqueue func(item)) error {
	switch it.kind {
	case kindResolve:
		return r.processResolve(it, enqueue)
	case kindResolveDirectory:
		return r.processResolveDirectory(it, enqueue)
	case kindFile:
		return r.processFile(it, enqueue)
	case kindDirectory:
		return r.processDirectory(it, enqueue)
	case kindFileDependencies:
		return r.processFileDependencies(it, enqueue)
	case kindDirectoryDependencies:
		return r.processDirectoryDependencies(it, enqueue)
	}
	return nil
}

// isDepsRequest reports whether a request carries the "deps:" prefix that
// spec.md §4.3 says "switches the emitted variant to the -dependencies
// form", stripping the prefix on match.
func isDepsRequest(path string) (string, bool) {
	const prefix = "deps:"
	if strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, prefix), true
	}
	return path, false
}

func isDirLike(path string) bool {
	return strings.HasSuffix(path, "/") || strings.HasSuffix(path, "\\")
}

func (r *Runner) processResolve(it item, enqueue func(item)) error {
	path, depsOnly := isDepsRequest(it.path)

	if isDirLike(path) {
		abs, err := r.resolver.ResolveContext(it.context, path)
		if err != nil {
			return err
		}
		if depsOnly {
			enqueue(item{kind: kindDirectoryDependencies, path: abs})
		} else {
			enqueue(item{kind: kindDirectory, path: abs})
		}
		return nil
	}

	abs, err := r.resolver.Resolve(it.context, path)
	if err != nil {
		return err
	}
	if depsOnly {
		enqueue(item{kind: kindFileDependencies, path: abs})
	} else {
		enqueue(item{kind: kindFile, path: abs})
	}
	return nil
}

func (r *Runner) processResolveDirectory(it item, enqueue func(item)) error {
	abs, err := r.resolver.ResolveContext(it.context, it.path)
	if err != nil {
		return err
	}
	enqueue(item{kind: kindDirectory, path: abs})
	return nil
}

func (r *Runner) processFile(it item, enqueue func(item)) error {
	canonical, err := r.canonicalize(it.path)
	if err != nil {
		return err
	}

	if !r.markSeen(r.files, canonical) {
		return nil
	}
	enqueue(item{kind: kindFileDependencies, path: canonical})
	return nil
}

func (r *Runner) processDirectory(it item, enqueue func(item)) error {
	canonical, err := r.canonicalize(it.path)
	if err != nil {
		return err
	}

	if !r.markSeen(r.directories, canonical) {
		return nil
	}
	enqueue(item{kind: kindDirectoryDependencies, path: canonical})
	return nil
}

func (r *Runner) processFileDependencies(it item, enqueue func(item)) error {
	if r.children != nil {
		if kids, ok := r.children.ModuleChildren(it.path); ok {
			for _, k := range kids {
				enqueue(item{kind: kindFile, path: k})
			}
			return nil
		}
	}
	// Unknown loader: over-approximate with the containing directory.
	enqueue(item{kind: kindDirectory, path: filepath.Dir(it.path)})
	return nil
}

// ErrManifestUnreadable is a ParseError per spec.md §7: fatal to the
// in-flight resolution, surfaced to the caller.
var ErrManifestUnreadable = errors.New("resolve: package.json unreadable")

// nodeModulesPkgRoot matches the innermost node_modules/[@scope/]pkg
// prefix per spec.md §4.3's directory-dependencies rule.
func nodeModulesPkgRoot(dir string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(dir), "/")
	lastNM := -1
	for i, p := range parts {
		if p == "node_modules" {
			lastNM = i
		}
	}
	if lastNM == -1 || lastNM+1 >= len(parts) {
		return "", false
	}
	end := lastNM + 2
	if strings.HasPrefix(parts[lastNM+1], "@") && end < len(parts) {
		end++
	}
	return strings.Join(parts[:end], "/"), true
}

// ManifestReader abstracts reading and parsing a package.json, so callers
// can inject an inputfs-backed implementation without this package taking
// a direct filesystem dependency.
type ManifestReader interface {
	// ReadManifest returns the parsed dependency-name set for the
	// package.json at dir/package.json. ok=false with err=nil means
	// ENOENT: the caller should ascend to the parent directory and retry,
	// per spec.md §4.3.
	ReadManifest(dir string) (deps map[string]string, ok bool, err error)
}

func (r *Runner) processDirectoryDependencies(it item, enqueue func(item)) error {
	root, ok := nodeModulesPkgRoot(it.path)
	if !ok {
		root = it.path
	}

	mr, _ := r.resolver.(ManifestReader)
	if mr == nil {
		return nil
	}

	dir := root
	for {
		deps, found, err := mr.ReadManifest(dir)
		if err != nil {
			return err
		}
		if found {
			for name := range deps {
				enqueue(item{kind: kindResolveDirectory, context: dir, path: name})
			}
			return nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func (r *Runner) canonicalize(path string) (string, error) {
	if r.realpath == nil {
		return filepath.Clean(path), nil
	}
	return r.realpath.Realpath(path)
}

func (r *Runner) markSeen(set map[string]struct{}, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	return true
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
