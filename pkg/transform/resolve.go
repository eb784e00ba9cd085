package transform

import (
	"fmt"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

const maxResolvePasses = 10

// Resolution records one automatic fix made by ResolveConflicts.
type Resolution struct {
	Type   ConflictType `yaml:"type"`
	Action string       `yaml:"action"`
	IDs    []TransID    `yaml:"ids"`
}

// Resolved is the outcome of ResolveConflicts.
type Resolved struct {
	Applied   []Resolution
	Remaining []Conflict
}

// ResolveConflicts repeatedly finds conflicts and stages fixes for the ones
// with an automatic remedy, until none are left or no progress is made.
// Conflicts it cannot fix are returned in Remaining.
func ResolveConflicts(tt Transform) (*Resolved, error) {
	result := &Resolved{}
	for pass := 0; pass < maxResolvePasses; pass++ {
		conflicts, err := tt.FindConflicts()
		if err != nil {
			return nil, err
		}
		if len(conflicts) == 0 {
			return result, nil
		}
		applied, err := conflictPass(tt, conflicts)
		if err != nil {
			return nil, err
		}
		result.Applied = append(result.Applied, applied...)
		if len(applied) == 0 {
			result.Remaining = conflicts
			return result, nil
		}
	}
	conflicts, err := tt.FindConflicts()
	if err != nil {
		return nil, err
	}
	result.Remaining = conflicts
	return result, nil
}

func conflictPass(tt Transform, conflicts []Conflict) ([]Resolution, error) {
	c := tt.staged()
	var applied []Resolution
	record := func(conflict Conflict, action string, ids ...TransID) {
		applied = append(applied, Resolution{Type: conflict.Type, Action: action, IDs: ids})
		c.logger.Info().Str("conflict", string(conflict.Type)).Str("action", action).Msg("conflict resolved")
	}

	for _, conflict := range conflicts {
		switch conflict.Type {
		case ConflictDuplicateID:
			newcomer := conflict.IDs[1]
			if _, ok := c.newID[newcomer]; !ok {
				continue
			}
			if err := c.CancelVersioning(newcomer); err != nil {
				return nil, err
			}
			record(conflict, "Unversioned new file", newcomer)

		case ConflictDuplicate:
			first, second := conflict.IDs[0], conflict.IDs[1]
			existing := first
			if c.pathChanged(first) {
				existing = second
			}
			parent, ok := c.finalParent(existing)
			if !ok {
				continue
			}
			name, _ := c.finalName(existing)
			backup, err := c.availableBackupName(name, parent)
			if err != nil {
				return nil, err
			}
			if err := c.AdjustPath(existing, backup, parent); err != nil {
				return nil, err
			}
			record(conflict, fmt.Sprintf("Moved existing file to %s", backup), existing)

		case ConflictParentLoop:
			t := conflict.IDs[0]
			name, _ := c.finalName(t)
			backup, err := c.availableBackupName(name, c.newRoot)
			if err != nil {
				return nil, err
			}
			if err := c.AdjustPath(t, backup, c.newRoot); err != nil {
				return nil, err
			}
			record(conflict, fmt.Sprintf("Moved to root as %s", backup), t)

		case ConflictMissingParent:
			action, err := resolveMissingParent(tt, conflict.IDs[0])
			if err != nil {
				return nil, err
			}
			if action != "" {
				record(conflict, action, conflict.IDs[0])
			}

		case ConflictUnversionedParent:
			t := conflict.IDs[0]
			if c.FinalIsVersioned(t) {
				continue
			}
			id := c.InactiveFileID(t)
			if id == "" || c.rNewID[id] != "" {
				name, _ := c.finalName(t)
				id = GenFileID(name)
			}
			if err := c.VersionFile(t, id); err != nil {
				return nil, err
			}
			record(conflict, "Versioned directory", t)

		case ConflictNonDirectoryParent:
			created, err := resolveNonDirectoryParent(c, conflict.IDs[0])
			if err != nil {
				return nil, err
			}
			record(conflict, "Created directory", created)

		case ConflictVersioningNoContents, ConflictVersioningBadKind:
			t := conflict.IDs[0]
			if _, ok := c.newID[t]; !ok {
				continue
			}
			// An earlier fix in this pass may have created the contents.
			if conflict.Type == ConflictVersioningNoContents && c.FinalKind(t) != types.KindNone {
				continue
			}
			if err := c.CancelVersioning(t); err != nil {
				return nil, err
			}
			record(conflict, "Cancelled versioning", t)

		case ConflictUnversionedExecutability, ConflictNonFileExecutability:
			t := conflict.IDs[0]
			if err := c.ClearExecutability(t); err != nil {
				return nil, err
			}
			record(conflict, "Cleared executability", t)
		}
	}
	return applied, nil
}

// resolveMissingParent keeps a directory whose deletion would strand its
// children, unless every child is unversioned and can be orphaned. A parent
// that never existed is created.
func resolveMissingParent(tt Transform, t TransID) (string, error) {
	c := tt.staged()
	if c.removedContents.has(t) {
		orphans, err := c.potentialOrphans(t)
		if err != nil {
			return "", err
		}
		cancel := true
		if len(orphans) > 0 {
			cancel = false
			for _, o := range orphans {
				if err := tt.NewOrphan(o, t); err != nil {
					if !errors.IsErrorCode(err, errors.ErrOrphaning) {
						return "", err
					}
					c.logger.Debug().Err(err).Str("trans_id", string(o)).Msg("orphan refused")
					cancel = true
					break
				}
			}
		}
		if cancel {
			if err := c.CancelDeletion(t); err != nil {
				return "", err
			}
			return "Not deleting", nil
		}
		return "Orphaned children", nil
	}
	if _, ok := c.finalName(t); !ok {
		return "", nil
	}
	if err := c.CreateDirectory(t); err != nil {
		return "", err
	}
	return "Created directory", nil
}

func resolveNonDirectoryParent(c *core, blocker TransID) (TransID, error) {
	parent, ok := c.finalParent(blocker)
	if !ok {
		return "", noFinalPath(blocker)
	}
	name, _ := c.finalName(blocker)
	id := c.FinalFileID(blocker)

	backup, err := c.availableBackupName(name, parent)
	if err != nil {
		return "", err
	}
	children := c.ByParent()[blocker]
	if err := c.AdjustPath(blocker, backup, parent); err != nil {
		return "", err
	}
	dir, err := c.NewDirectory(name, parent, "")
	if err != nil {
		return "", err
	}
	for _, child := range children {
		childName, _ := c.finalName(child)
		if err := c.AdjustPath(child, childName, dir); err != nil {
			return "", err
		}
	}
	if id != "" {
		if _, staged := c.newID[blocker]; staged {
			if err := c.CancelVersioning(blocker); err != nil {
				return "", err
			}
		} else if err := c.UnversionFile(blocker); err != nil {
			return "", err
		}
		if err := c.VersionFile(dir, id); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// potentialOrphans lists the children of dir that would be stranded by its
// deletion. It returns nil when a versioned child makes orphaning pointless.
func (c *core) potentialOrphans(dir TransID) ([]TransID, error) {
	if _, err := c.backend.treeChildren(dir); err != nil {
		return nil, err
	}
	var orphans []TransID
	for _, child := range c.ByParent()[dir] {
		if c.removedContents.has(child) {
			continue
		}
		if c.FinalIsVersioned(child) {
			return nil, nil
		}
		orphans = append(orphans, child)
	}
	return orphans, nil
}

// hasNamedChild reports whether name is taken under parent, either by a
// known final child or by something on disk the transform has not seen yet.
func (c *core) hasNamedChild(name string, parent TransID, known []TransID) bool {
	for _, child := range known {
		if n, ok := c.finalName(child); ok && n == name {
			return true
		}
	}
	parentPath, ok := c.treeIDPaths[parent]
	if !ok {
		return false
	}
	childPath := joinPath(parentPath, name)
	if _, ok := c.treePathIDs[childPath]; ok {
		return false
	}
	kind, err := c.tree.Kind(childPath)
	return err == nil && kind != types.KindNone
}

// availableBackupName returns the first of name.~1~, name.~2~, ... that is
// free under parent.
func (c *core) availableBackupName(name string, parent TransID) (string, error) {
	known := c.ByParent()[parent]
	for counter := 1; counter < 1<<20; counter++ {
		candidate := fmt.Sprintf("%s.~%d~", name, counter)
		if !c.hasNamedChild(candidate, parent, known) {
			return candidate, nil
		}
	}
	return "", errors.Newf(errors.ErrInternal, "no backup name available for %s", name)
}

// moveOrphan re-parents t into the orphan directory at the tree root.
func (c *core) moveOrphan(t, parent TransID) error {
	orphanDir := c.TransIDTreePath(c.opts.OrphanDir)
	if c.FinalKind(orphanDir) == types.KindNone {
		if err := c.CreateDirectory(orphanDir); err != nil {
			return err
		}
	}
	name, _ := c.finalName(t)
	backup, err := c.availableBackupName(name, orphanDir)
	if err != nil {
		return err
	}
	if err := c.AdjustPath(t, backup, orphanDir); err != nil {
		return err
	}
	c.logger.Warn().
		Str("path", joinPath(c.treeIDPaths[parent], name)).
		Str("orphan_dir", c.opts.OrphanDir).
		Msg("orphaned")
	return nil
}
