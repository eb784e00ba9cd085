package transform

import (
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// AdjustRootPath emulates moving the tree root to name under parent. The root
// directory itself stays in place: the existing root trans id becomes a new
// directory and the root's children are moved into it. The physical root gets
// a fresh trans id and is left unversioned until the caller versions it.
func (c *core) AdjustRootPath(name string, parent TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	oldRoot := c.newRoot
	oldRootID := c.FinalFileID(oldRoot)
	children, err := c.backend.treeChildren(oldRoot)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child != parent {
			childName, _ := c.finalName(child)
			childParent, _ := c.finalParent(child)
			if err := c.AdjustPath(child, childName, childParent); err != nil {
				return err
			}
		}
		if id := c.FinalFileID(child); id != "" {
			if err := c.UnversionFile(child); err != nil {
				return err
			}
			if err := c.VersionFile(child, id); err != nil {
				return err
			}
		}
	}

	delete(c.treePathIDs, "")
	delete(c.treeIDPaths, oldRoot)
	c.newRoot = c.TransIDTreePath("")
	if parent == oldRoot {
		parent = c.newRoot
	}
	if err := c.AdjustPath(oldRoot, name, parent); err != nil {
		return err
	}
	if err := c.CreateDirectory(oldRoot); err != nil {
		return err
	}
	if oldRootID != "" {
		if err := c.VersionFile(oldRoot, oldRootID); err != nil {
			return err
		}
	}
	return c.UnversionFile(c.newRoot)
}

// FixupNewRoots reinterprets a request to give the tree a new root (an entry
// staged with RootParent as its parent). Rather than replacing the root
// directory, the new root's children move into the existing one, which takes
// over the new root's file id.
func (c *core) FixupNewRoots() error {
	if err := c.checkLive(); err != nil {
		return err
	}
	var newRoots []TransID
	for t, parent := range c.newParent {
		if parent == RootParent {
			newRoots = append(newRoots, t)
		}
	}
	if len(newRoots) == 0 {
		return nil
	}
	if len(newRoots) > 1 {
		sortTransIDs(newRoots)
		return errors.New(errors.ErrMultipleRoots, "a tree cannot have two roots").
			WithDetail("trans_ids", newRoots)
	}
	stagedRoot := newRoots[0]

	var id types.FileID
	if c.FinalKind(c.newRoot) == types.KindNone {
		id = c.FinalFileID(stagedRoot)
	} else {
		id = c.FinalFileID(c.newRoot)
	}
	if _, ok := c.newID[stagedRoot]; ok {
		if err := c.CancelVersioning(stagedRoot); err != nil {
			return err
		}
	} else if err := c.UnversionFile(stagedRoot); err != nil {
		return err
	}
	if c.TreeFileID(c.newRoot) != "" && !c.removedID.has(c.newRoot) {
		if err := c.UnversionFile(c.newRoot); err != nil {
			return err
		}
	}
	if id != "" {
		if err := c.VersionFile(c.newRoot, id); err != nil {
			return err
		}
	}

	if _, err := c.backend.treeChildren(stagedRoot); err != nil {
		return err
	}
	for _, child := range c.ByParent()[stagedRoot] {
		name, _ := c.finalName(child)
		if err := c.AdjustPath(child, name, c.newRoot); err != nil {
			return err
		}
	}

	if _, ok := c.newContents[stagedRoot]; ok {
		if err := c.CancelCreation(stagedRoot); err != nil {
			return err
		}
	} else if err := c.DeleteContents(stagedRoot); err != nil {
		return err
	}
	if c.removedContents.has(c.newRoot) {
		if err := c.CancelDeletion(c.newRoot); err != nil {
			return err
		}
	}
	delete(c.newParent, stagedRoot)
	delete(c.newName, stagedRoot)
	c.touch()
	return nil
}
