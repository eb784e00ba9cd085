package types

import "time"

// Kind is the kind of content a tree entry holds.
type Kind string

const (
	KindNone      Kind = ""
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
	// KindSpecial covers fifos, sockets and devices. It cannot be versioned.
	KindSpecial   Kind = "special"
)

// VersionableKind reports whether entries of kind k can carry a file id.
func VersionableKind(k Kind) bool {
	switch k {
	case KindFile, KindDirectory, KindSymlink:
		return true
	}
	return false
}

// FileID is the versioning identifier of an entry, stable across renames.
type FileID string

// InventoryEntry is the versioning record for one entry.
type InventoryEntry struct {
	FileID     FileID `msgpack:"file_id" yaml:"file_id"`
	ParentID   FileID `msgpack:"parent_id" yaml:"parent_id,omitempty"`
	Name       string `msgpack:"name" yaml:"name"`
	Kind       Kind   `msgpack:"kind" yaml:"kind"`
	Executable bool   `msgpack:"executable" yaml:"executable,omitempty"`
}

// PathEntry pairs an inventory entry with its tree path.
type PathEntry struct {
	Path  string
	Entry InventoryEntry
}

// DeltaEntry describes a single inventory change.
// OldPath is nil for additions; NewPath and Entry are nil for removals.
type DeltaEntry struct {
	OldPath *string
	NewPath *string
	FileID  FileID
	Entry   *InventoryEntry
}

// Delta is an ordered list of inventory changes applied as a unit.
type Delta []DeltaEntry

// ObservedHash records a content hash together with the stat data it was
// taken against, so a tree can skip rehashing unchanged files.
type ObservedHash struct {
	Hash    string    `msgpack:"hash"`
	Size    int64     `msgpack:"size"`
	ModTime time.Time `msgpack:"mtime"`
}

// PathPtr returns a pointer to p, for building deltas and changes.
func PathPtr(p string) *string {
	return &p
}

// PathOr dereferences p, falling back to def when nil.
func PathOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
