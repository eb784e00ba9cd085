package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// ConflictType tags the structural rule a conflict violates.
type ConflictType string

const (
	ConflictParentLoop               ConflictType = "parent loop"
	ConflictUnversionedParent        ConflictType = "unversioned parent"
	ConflictDuplicate                ConflictType = "duplicate"
	ConflictMissingParent            ConflictType = "missing parent"
	ConflictNonDirectoryParent       ConflictType = "non-directory parent"
	ConflictVersioningNoContents     ConflictType = "versioning no contents"
	ConflictVersioningBadKind        ConflictType = "versioning bad kind"
	ConflictUnversionedExecutability ConflictType = "unversioned executability"
	ConflictNonFileExecutability     ConflictType = "non-file executability"
	ConflictOverwrite                ConflictType = "overwrite"
	ConflictDuplicateID              ConflictType = "duplicate id"
)

// Conflict is one violation found by FindConflicts. IDs lists the implicated
// trans ids: for duplicates the earlier entry first, for duplicate ids the
// tree's entry first.
type Conflict struct {
	Type ConflictType `yaml:"type"`
	IDs  []TransID    `yaml:"ids"`
	Name string       `yaml:"name,omitempty"`
	Kind types.Kind   `yaml:"kind,omitempty"`
}

func (c Conflict) String() string {
	ids := make([]string, len(c.IDs))
	for i, t := range c.IDs {
		ids[i] = string(t)
	}
	s := fmt.Sprintf("%s: %s", c.Type, strings.Join(ids, ", "))
	if c.Name != "" {
		s += fmt.Sprintf(" (%s)", c.Name)
	}
	if c.Kind != types.KindNone {
		s += fmt.Sprintf(" [%s]", c.Kind)
	}
	return s
}

func malformed(conflicts []Conflict) error {
	return errors.Newf(errors.ErrMalformedTransform, "transform has %d conflicts", len(conflicts)).
		WithDetail("conflicts", conflicts)
}

// FindConflicts lists every structural problem with the staged end state.
// All checks run; an empty result means the transform can be applied.
func (c *core) FindConflicts() ([]Conflict, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if err := c.addTreeChildren(); err != nil {
		return nil, err
	}
	byParent := c.byParent()
	parents := make([]TransID, 0, len(byParent))
	for p := range byParent {
		parents = append(parents, p)
	}
	sortTransIDs(parents)

	var conflicts []Conflict
	conflicts = append(conflicts, c.unversionedParents(parents, byParent)...)
	conflicts = append(conflicts, c.parentLoops()...)
	conflicts = append(conflicts, c.duplicateEntries(parents, byParent)...)
	conflicts = append(conflicts, c.parentTypeConflicts(parents, byParent)...)
	conflicts = append(conflicts, c.improperVersioning()...)
	conflicts = append(conflicts, c.executabilityConflicts()...)
	conflicts = append(conflicts, c.overwriteConflicts()...)
	conflicts = append(conflicts, c.duplicateIDs()...)
	c.logger.Debug().Int("conflicts", len(conflicts)).Msg("conflict scan finished")
	return conflicts, nil
}

// addTreeChildren registers the tree children of every directory whose
// membership may change, so byParent sees them.
func (c *core) addTreeChildren() error {
	parents := idSet{}
	for p := range c.byParent() {
		parents.add(p)
	}
	for t := range c.removedContents {
		if c.TreeKind(t) == types.KindDirectory {
			parents.add(t)
		}
	}
	for t := range c.removedID {
		if p, ok := c.TreePath(t); ok {
			if kind, err := c.tree.StoredKind(p); err == nil && kind == types.KindDirectory {
				parents.add(t)
			}
		} else if c.TreeKind(t) == types.KindDirectory {
			parents.add(t)
		}
	}
	for _, p := range parents.sorted() {
		if _, err := c.backend.treeChildren(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *core) unversionedParents(parents []TransID, byParent map[TransID]idSet) []Conflict {
	var conflicts []Conflict
	for _, parent := range parents {
		if parent == RootParent || c.FinalIsVersioned(parent) {
			continue
		}
		for _, child := range byParent[parent].sorted() {
			if c.FinalIsVersioned(child) {
				conflicts = append(conflicts, Conflict{Type: ConflictUnversionedParent, IDs: []TransID{parent}})
				break
			}
		}
	}
	return conflicts
}

func (c *core) parentLoops() []Conflict {
	var conflicts []Conflict
	ids := make([]TransID, 0, len(c.newParent))
	for t := range c.newParent {
		ids = append(ids, t)
	}
	sortTransIDs(ids)
	for _, t := range ids {
		seen := idSet{}
		cur := t
		for cur != RootParent {
			seen.add(cur)
			next, ok := c.finalParent(cur)
			if !ok {
				break
			}
			if next == t {
				conflicts = append(conflicts, Conflict{Type: ConflictParentLoop, IDs: []TransID{t}})
			}
			if seen.has(next) {
				break
			}
			cur = next
		}
	}
	return conflicts
}

func (c *core) duplicateEntries(parents []TransID, byParent map[TransID]idSet) []Conflict {
	if len(c.newName) == 0 && len(c.newParent) == 0 {
		return nil
	}
	type named struct {
		name string
		t    TransID
	}
	var conflicts []Conflict
	for _, parent := range parents {
		var entries []named
		for t := range byParent[parent] {
			name, ok := c.finalName(t)
			if !ok {
				continue
			}
			if !c.caseSensitive {
				name = strings.ToLower(name)
			}
			entries = append(entries, named{name, t})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].name != entries[j].name {
				return entries[i].name < entries[j].name
			}
			return entries[i].t < entries[j].t
		})
		var last *named
		for i := range entries {
			e := entries[i]
			if c.FinalKind(e.t) == types.KindNone && !c.FinalIsVersioned(e.t) {
				continue
			}
			if last != nil && last.name == e.name {
				conflicts = append(conflicts, Conflict{Type: ConflictDuplicate, IDs: []TransID{last.t, e.t}, Name: e.name})
			}
			last = &entries[i]
		}
	}
	return conflicts
}

func (c *core) parentTypeConflicts(parents []TransID, byParent map[TransID]idSet) []Conflict {
	var conflicts []Conflict
	for _, parent := range parents {
		if parent == RootParent {
			continue
		}
		live := false
		for child := range byParent[parent] {
			if c.FinalKind(child) != types.KindNone {
				live = true
				break
			}
		}
		if !live {
			continue
		}
		switch c.FinalKind(parent) {
		case types.KindNone:
			conflicts = append(conflicts, Conflict{Type: ConflictMissingParent, IDs: []TransID{parent}})
		case types.KindDirectory:
		default:
			conflicts = append(conflicts, Conflict{Type: ConflictNonDirectoryParent, IDs: []TransID{parent}})
		}
	}
	return conflicts
}

func (c *core) improperVersioning() []Conflict {
	var conflicts []Conflict
	for _, t := range sortedIDs(c.newID) {
		kind := c.FinalKind(t)
		if kind == types.KindSymlink && !c.backend.supportsSymlinks() {
			continue
		}
		if kind == types.KindNone {
			conflicts = append(conflicts, Conflict{Type: ConflictVersioningNoContents, IDs: []TransID{t}})
			continue
		}
		if !types.VersionableKind(kind) {
			conflicts = append(conflicts, Conflict{Type: ConflictVersioningBadKind, IDs: []TransID{t}, Kind: kind})
		}
	}
	return conflicts
}

func (c *core) executabilityConflicts() []Conflict {
	var conflicts []Conflict
	for _, t := range sortedIDs(c.newExecutability) {
		if !c.FinalIsVersioned(t) {
			conflicts = append(conflicts, Conflict{Type: ConflictUnversionedExecutability, IDs: []TransID{t}})
		} else if c.FinalKind(t) != types.KindFile {
			conflicts = append(conflicts, Conflict{Type: ConflictNonFileExecutability, IDs: []TransID{t}})
		}
	}
	return conflicts
}

func (c *core) overwriteConflicts() []Conflict {
	var conflicts []Conflict
	for _, t := range sortedIDs(c.newContents) {
		if c.TreeKind(t) == types.KindNone || c.removedContents.has(t) {
			continue
		}
		name, _ := c.finalName(t)
		conflicts = append(conflicts, Conflict{Type: ConflictOverwrite, IDs: []TransID{t}, Name: name})
	}
	return conflicts
}

func (c *core) duplicateIDs() []Conflict {
	if len(c.removedID) == 0 && len(c.newID) == 0 {
		return nil
	}
	removed := map[types.FileID]bool{}
	for t := range c.removedID {
		if id := c.TreeFileID(t); id != "" {
			removed[id] = true
		}
	}
	var conflicts []Conflict
	for _, t := range sortedIDs(c.newID) {
		id := c.newID[t]
		if removed[id] {
			continue
		}
		p, ok := c.tree.IDToPath(id)
		if !ok {
			continue
		}
		old := c.TransIDTreePath(p)
		if old == t {
			continue
		}
		conflicts = append(conflicts, Conflict{Type: ConflictDuplicateID, IDs: []TransID{old, t}})
	}
	return conflicts
}

func sortedIDs[V any](m map[TransID]V) []TransID {
	ids := make([]TransID, 0, len(m))
	for t := range m {
		ids = append(ids, t)
	}
	sortTransIDs(ids)
	return ids
}
