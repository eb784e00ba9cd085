package types

import (
	"io/fs"
	"time"
)

// FS is the filesystem interface required for tree operations
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Directory operations
	Mkdir(path string, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Symlink operations
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	// Other operations
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode fs.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error

	// Optional operations - implementations should check for support
	// For testing, Lstat can fall back to Stat
	Lstat(name string) (fs.FileInfo, error)
}

// Tree is the read-only contract every tree (working, snapshot, preview) honours.
// Paths are tree-relative, slash separated, and "" names the root.
type Tree interface {
	PathToID(path string) (FileID, bool)
	IDToPath(id FileID) (string, bool)
	AllFileIDs() []FileID
	IsVersioned(path string) bool

	// Kind reports the kind of the actual content at path, or KindNone.
	Kind(path string) (Kind, error)
	// StoredKind reports the kind recorded for a versioned path.
	StoredKind(path string) (Kind, error)

	IsExecutable(path string) (bool, error)
	FileSize(path string) (int64, error)
	FileHash(path string) (string, error)
	SymlinkTarget(path string) (string, error)
	ReadFile(path string) ([]byte, error)

	// Children lists the names present under a directory path.
	Children(path string) ([]string, error)
	// Entries lists versioned entries in by-directory order, root first.
	Entries() ([]PathEntry, error)

	LockRead() error
	Unlock() error
}

// MutableTree is a tree that lives on disk and accepts inventory deltas.
type MutableTree interface {
	Tree

	Abspath(path string) string
	ControlDir() string
	FS() FS

	// LockWrite takes the exclusive tree lock. Unlock releases it.
	LockWrite() error

	ApplyDelta(delta Delta) error
	RecordObservedHash(path string, observed ObservedHash) error

	CaseSensitive() bool
	SupportsSymlinks() bool
	SupportsExecutable() bool
	IsControlFilename(path string) bool
}
