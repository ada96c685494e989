// Package inputfs defines the InputFileSystem collaborator spec.md §6
// describes: the seam FileSystemInfo reads paths through. It is backed by
// github.com/spf13/afero so tests can swap in an in-memory filesystem
// instead of touching disk, the same way afero.MemMapFs is used to stub
// out a real filesystem in the config/viper stack this pack pulls it from.
package inputfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrMissingPath is the sentinel spec.md §7 calls MissingPath: the queried
// path does not exist. Callers should errors.Is against this rather than
// matching os.IsNotExist directly, since afero backends report it in
// backend-specific ways.
var ErrMissingPath = errors.New("inputfs: path does not exist")

// Stat is the subset of file metadata FileSystemInfo needs: whether the
// path is a directory and its modification time, in milliseconds since
// the epoch to match spec.md §3's Path/FsEntry timestamp unit.
type Stat struct {
	IsDir   bool
	ModTime int64
	Size    int64
}

// FS is the InputFileSystem contract from spec.md §6.
type FS interface {
	Stat(path string) (Stat, error)
	Open(path string) (afero.File, error)
	ReadDir(path string) ([]fs.DirEntry, error)
	Realpath(path string) (string, error)
}

// OsFS is the production FS, backed by the real filesystem via afero.
type OsFS struct {
	fs afero.Fs
}

// NewOsFS returns an FS backed by the host operating system's filesystem.
func NewOsFS() *OsFS {
	return &OsFS{fs: afero.NewOsFs()}
}

// NewFromAfero wraps an arbitrary afero.Fs, used by tests to inject
// afero.NewMemMapFs() without touching disk.
func NewFromAfero(a afero.Fs) *OsFS {
	return &OsFS{fs: a}
}

func (o *OsFS) Stat(path string) (Stat, error) {
	info, err := o.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Stat{}, ErrMissingPath
		}
		return Stat{}, err
	}
	return Stat{
		IsDir:   info.IsDir(),
		ModTime: info.ModTime().UnixMilli(),
		Size:    info.Size(),
	}, nil
}

func (o *OsFS) Open(path string) (afero.File, error) {
	f, err := o.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMissingPath
		}
		return nil, err
	}
	return f, nil
}

func (o *OsFS) ReadDir(path string) ([]fs.DirEntry, error) {
	entries, err := afero.ReadDir(o.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMissingPath
		}
		return nil, err
	}
	out := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		out[i] = dirEntry{e}
	}
	return out, nil
}

func (o *OsFS) Realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// dirEntry adapts os.FileInfo (what afero.ReadDir returns) to fs.DirEntry.
type dirEntry struct {
	info os.FileInfo
}

func (d dirEntry) Name() string               { return d.info.Name() }
func (d dirEntry) IsDir() bool                { return d.info.IsDir() }
func (d dirEntry) Type() fs.FileMode          { return d.info.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.info, nil }

// IsNotExist reports whether err is or wraps ErrMissingPath.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrMissingPath)
}
