package fsinfo

import "buildcache-go/internal/resolve"

// ResolveBuildDependencies implements spec.md §4.3's
// resolveBuildDependencies(context, deps), delegating the work-list
// traversal to the resolve package's Runner while FileSystemInfo remains
// the owner of the resulting files/directories/missing sets used to build
// a snapshot afterward.
func (i *FileSystemInfo) ResolveBuildDependencies(runner *resolve.Runner, deps resolve.Dependencies) (resolve.Result, error) {
	return runner.Run(deps)
}
