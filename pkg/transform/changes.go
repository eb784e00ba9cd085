package transform

import (
	"path"

	"github.com/arthur-debert/treetx/pkg/types"
)

type fileData struct {
	name       string
	parent     types.FileID
	kind       types.Kind
	executable bool
}

// affectedIDs lists every trans id touched by a staging operation.
func (c *core) affectedIDs() idSet {
	ids := idSet{}
	for t := range c.removedID {
		ids.add(t)
	}
	for t := range c.newID {
		ids.add(t)
	}
	for t := range c.removedContents {
		ids.add(t)
	}
	for t := range c.newContents {
		ids.add(t)
	}
	for t := range c.newExecutability {
		ids.add(t)
	}
	for t := range c.newName {
		ids.add(t)
	}
	for t := range c.newParent {
		ids.add(t)
	}
	return ids
}

// fileIDMaps maps file ids to trans ids in the tree state and the final state.
func (c *core) fileIDMaps() (from, to map[types.FileID]TransID) {
	from = map[types.FileID]TransID{}
	to = map[types.FileID]TransID{}
	for _, t := range c.affectedIDs().sorted() {
		if id := c.TreeFileID(t); id != "" {
			from[id] = t
		}
		if id := c.FinalFileID(t); id != "" {
			to[id] = t
		}
	}
	return from, to
}

func (c *core) fromFileData(t TransID, versioned bool) (fileData, *string, error) {
	var d fileData
	p, ok := c.treeIDPaths[t]
	if !ok {
		return d, nil, nil
	}
	if p != "" {
		d.name = path.Base(p)
		d.parent, _ = c.tree.PathToID(parentPath(p))
	}
	kind, err := c.tree.Kind(p)
	if err != nil {
		return d, nil, err
	}
	d.kind = kind
	if kind == types.KindFile {
		if d.executable, err = c.tree.IsExecutable(p); err != nil {
			return d, nil, err
		}
	}
	if !versioned {
		return d, nil, nil
	}
	return d, types.PathPtr(p), nil
}

func (c *core) toFileData(to, from TransID, fromExecutable bool) fileData {
	var d fileData
	d.name, _ = c.finalName(to)
	d.kind = c.FinalKind(to)
	if parent, ok := c.finalParent(to); ok {
		d.parent = c.FinalFileID(parent)
	}
	if executable, ok := c.newExecutability[to]; ok {
		d.executable = executable
	} else if to == from {
		d.executable = fromExecutable
	}
	return d
}

// IterChanges describes how each versioned entry touched by the transform
// differs between the tree and the final state, sorted by (old path, new
// path). Entries with no observable difference are left out. The result is
// only meaningful for a conflict-free transform.
func (c *core) IterChanges() ([]types.TreeChange, error) {
	fp := newFinalPaths(c)
	fromIDs, toIDs := c.fileIDMaps()

	ids := make([]types.FileID, 0, len(fromIDs)+len(toIDs))
	for id := range fromIDs {
		ids = append(ids, id)
	}
	for id := range toIDs {
		if _, ok := fromIDs[id]; !ok {
			ids = append(ids, id)
		}
	}

	var changes []types.TreeChange
	for _, id := range ids {
		fromT, fromVersioned := fromIDs[id]
		toT, toVersioned := toIDs[id]
		if !fromVersioned {
			fromT = toT
		}
		if !toVersioned {
			toT = fromT
		}

		from, fromPath, err := c.fromFileData(fromT, fromVersioned)
		if err != nil {
			return nil, err
		}
		var toPath *string
		if toVersioned {
			p, err := fp.get(toT)
			if err != nil {
				return nil, err
			}
			toPath = types.PathPtr(p)
		}
		to := c.toFileData(toT, fromT, from.executable)

		modified := false
		if from.kind != to.kind {
			modified = true
		} else if to.kind == types.KindFile || to.kind == types.KindSymlink {
			_, staged := c.newContents[toT]
			modified = toT != fromT || staged
		}

		change := types.TreeChange{
			FileID:         id,
			Path:           [2]*string{fromPath, toPath},
			ChangedContent: modified,
			Versioned:      [2]bool{fromVersioned, toVersioned},
			ParentID:       [2]types.FileID{from.parent, to.parent},
			Name:           [2]string{from.name, to.name},
			Kind:           [2]types.Kind{from.kind, to.kind},
			Executable:     [2]bool{from.executable, to.executable},
		}
		if change.IsUnchanged() {
			continue
		}
		changes = append(changes, change)
	}
	types.SortChanges(changes)
	return changes, nil
}
