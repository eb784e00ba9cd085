package types

import "sort"

// TreeChange describes how one versioned entry differs between two tree
// states. Index 0 is the old state, index 1 the new state.
type TreeChange struct {
	FileID         FileID
	Path           [2]*string
	ChangedContent bool
	Versioned      [2]bool
	ParentID       [2]FileID
	Name           [2]string
	Kind           [2]Kind
	Executable     [2]bool
}

// OldPath returns the old path or "" when the entry did not exist.
func (c TreeChange) OldPath() string { return PathOr(c.Path[0], "") }

// NewPath returns the new path or "" when the entry no longer exists.
func (c TreeChange) NewPath() string { return PathOr(c.Path[1], "") }

// IsUnchanged reports whether the change has no observable difference.
func (c TreeChange) IsUnchanged() bool {
	return !c.ChangedContent &&
		c.Versioned[0] == c.Versioned[1] &&
		c.ParentID[0] == c.ParentID[1] &&
		c.Name[0] == c.Name[1] &&
		c.Executable[0] == c.Executable[1]
}

// SortChanges orders changes by (old path, new path) with missing paths as "".
func SortChanges(changes []TreeChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		oi, oj := changes[i].OldPath(), changes[j].OldPath()
		if oi != oj {
			return oi < oj
		}
		return changes[i].NewPath() < changes[j].NewPath()
	})
}
