package treediff

import (
	"github.com/arthur-debert/treetx/pkg/types"
)

type side struct {
	path       *string
	parent     types.FileID
	name       string
	kind       types.Kind
	executable bool
}

// Compare lists how each file id differs between from and to, sorted by
// (old path, new path). Ids with no observable difference are omitted.
func Compare(from, to types.Tree) ([]types.TreeChange, error) {
	fromEntries, err := entriesByID(from)
	if err != nil {
		return nil, err
	}
	toEntries, err := entriesByID(to)
	if err != nil {
		return nil, err
	}

	ids := make([]types.FileID, 0, len(fromEntries)+len(toEntries))
	for id := range fromEntries {
		ids = append(ids, id)
	}
	for id := range toEntries {
		if _, ok := fromEntries[id]; !ok {
			ids = append(ids, id)
		}
	}

	var changes []types.TreeChange
	for _, id := range ids {
		oldSide, hadOld := fromEntries[id]
		newSide, hasNew := toEntries[id]

		change := types.TreeChange{FileID: id}
		change.Versioned = [2]bool{hadOld, hasNew}
		change.Path = [2]*string{oldSide.path, newSide.path}
		change.ParentID = [2]types.FileID{oldSide.parent, newSide.parent}
		change.Name = [2]string{oldSide.name, newSide.name}
		change.Kind = [2]types.Kind{oldSide.kind, newSide.kind}
		change.Executable = [2]bool{oldSide.executable, newSide.executable}

		changed, err := contentChanged(from, to, oldSide, newSide)
		if err != nil {
			return nil, err
		}
		change.ChangedContent = changed
		if change.IsUnchanged() {
			continue
		}
		changes = append(changes, change)
	}
	types.SortChanges(changes)
	return changes, nil
}

func entriesByID(tree types.Tree) (map[types.FileID]side, error) {
	entries, err := tree.Entries()
	if err != nil {
		return nil, err
	}
	result := make(map[types.FileID]side, len(entries))
	for _, e := range entries {
		kind, err := tree.Kind(e.Path)
		if err != nil {
			return nil, err
		}
		var executable bool
		if kind == types.KindFile {
			executable, err = tree.IsExecutable(e.Path)
			if err != nil {
				return nil, err
			}
		}
		result[e.Entry.FileID] = side{
			path:       types.PathPtr(e.Path),
			parent:     e.Entry.ParentID,
			name:       e.Entry.Name,
			kind:       kind,
			executable: executable,
		}
	}
	return result, nil
}

func contentChanged(from, to types.Tree, oldSide, newSide side) (bool, error) {
	if oldSide.kind != newSide.kind {
		return true, nil
	}
	switch oldSide.kind {
	case types.KindFile:
		a, err := from.FileHash(*oldSide.path)
		if err != nil {
			return false, err
		}
		b, err := to.FileHash(*newSide.path)
		if err != nil {
			return false, err
		}
		return a != b, nil
	case types.KindSymlink:
		a, err := from.SymlinkTarget(*oldSide.path)
		if err != nil {
			return false, err
		}
		b, err := to.SymlinkTarget(*newSide.path)
		if err != nil {
			return false, err
		}
		return a != b, nil
	}
	return false, nil
}
