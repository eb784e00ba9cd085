package transform

import (
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// CreatePath assigns a trans id to a new entry named name under parent.
// Nothing exists for it until content or versioning is staged.
func (c *core) CreatePath(name string, parent TransID) (TransID, error) {
	if err := c.checkLive(); err != nil {
		return "", err
	}
	t := c.assignID()
	c.newName[t] = name
	c.newParent[t] = parent
	c.touch()
	c.logger.Trace().Str("trans_id", string(t)).Str("name", name).Str("parent", string(parent)).Msg("path created")
	return t, nil
}

// AdjustPath gives t a new final name and parent.
func (c *core) AdjustPath(t TransID, name string, parent TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if parent == "" {
		return errors.Newf(errors.ErrInvalidInput, "no parent given for %s", t)
	}
	if t == c.newRoot {
		return errors.New(errors.ErrCantMoveRoot, "the tree root cannot be moved").
			WithDetail("trans_id", string(t))
	}
	previousParent := c.newParent[t]
	previousName := c.newName[t]
	c.newName[t] = name
	c.newParent[t] = parent
	c.touch()
	c.logger.Trace().Str("trans_id", string(t)).Str("name", name).Str("parent", string(parent)).Msg("path adjusted")
	return c.limboAdjusted(t, previousParent, previousName)
}

// DeleteContents schedules removal of the existing content of t. It does
// nothing if the tree holds no content for t.
func (c *core) DeleteContents(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if c.TreeKind(t) == types.KindNone {
		return nil
	}
	c.removedContents.add(t)
	c.touch()
	c.logger.Trace().Str("trans_id", string(t)).Msg("contents deleted")
	return nil
}

// CancelDeletion undoes DeleteContents.
func (c *core) CancelDeletion(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	delete(c.removedContents, t)
	c.touch()
	return nil
}

// UnversionFile schedules t to lose its file id.
func (c *core) UnversionFile(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	c.removedID.add(t)
	c.touch()
	c.logger.Trace().Str("trans_id", string(t)).Msg("unversioned")
	return nil
}

// DeleteVersioned deletes the contents of t and unversions it.
func (c *core) DeleteVersioned(t TransID) error {
	if err := c.DeleteContents(t); err != nil {
		return err
	}
	return c.UnversionFile(t)
}

// VersionFile gives t the file id id.
func (c *core) VersionFile(t TransID, id types.FileID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if id == "" {
		return errors.Newf(errors.ErrInvalidInput, "empty file id for %s", t)
	}
	if other, ok := c.rNewID[id]; ok {
		return errors.Newf(errors.ErrDuplicateKey, "file id %s is already staged for %s", id, other).
			WithDetail("file_id", string(id))
	}
	if err := uniqueAdd(c.newID, t, id); err != nil {
		return err
	}
	c.rNewID[id] = t
	c.touch()
	c.logger.Trace().Str("trans_id", string(t)).Str("file_id", string(id)).Msg("versioned")
	return nil
}

// CancelVersioning undoes VersionFile.
func (c *core) CancelVersioning(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	id, ok := c.newID[t]
	if !ok {
		return errors.Newf(errors.ErrInvalidInput, "%s is not staged for versioning", t)
	}
	delete(c.newID, t)
	delete(c.rNewID, id)
	c.touch()
	return nil
}

// SetExecutability stages the executable bit of t.
func (c *core) SetExecutability(t TransID, executable bool) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if err := uniqueAdd(c.newExecutability, t, executable); err != nil {
		return err
	}
	c.touch()
	return nil
}

// ClearExecutability drops any staged executable bit for t.
func (c *core) ClearExecutability(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	delete(c.newExecutability, t)
	c.touch()
	return nil
}

func (c *core) newEntry(name string, parent TransID, id types.FileID) (TransID, error) {
	t, err := c.CreatePath(name, parent)
	if err != nil {
		return "", err
	}
	if id != "" {
		if err := c.VersionFile(t, id); err != nil {
			return t, err
		}
	}
	return t, nil
}

// NewFile creates and optionally versions a file in one step.
func (c *core) NewFile(name string, parent TransID, content []byte, id types.FileID, opts ...CreateOption) (TransID, error) {
	t, err := c.newEntry(name, parent, id)
	if err != nil {
		return t, err
	}
	return t, c.CreateFile(t, content, opts...)
}

// NewDirectory creates and optionally versions a directory in one step.
func (c *core) NewDirectory(name string, parent TransID, id types.FileID) (TransID, error) {
	t, err := c.newEntry(name, parent, id)
	if err != nil {
		return t, err
	}
	return t, c.CreateDirectory(t)
}

// NewSymlink creates and optionally versions a symlink in one step.
func (c *core) NewSymlink(name string, parent TransID, target string, id types.FileID) (TransID, error) {
	t, err := c.newEntry(name, parent, id)
	if err != nil {
		return t, err
	}
	return t, c.CreateSymlink(t, target)
}
