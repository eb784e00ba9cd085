package transform

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/hashicorp/go-multierror"
)

// Hook is called around Apply with the tree and the transform being applied.
type Hook func(tree types.MutableTree, tt Transform) error

// ApplyOptions control a single Apply call.
type ApplyOptions struct {
	// NoConflicts skips the conflict scan, for callers that already ran it.
	NoConflicts bool
	// PrecomputedDelta replaces the inventory delta Apply would compute.
	PrecomputedDelta types.Delta
	// Mover performs the renames. Defaults to a FileMover over the tree FS.
	Mover     Mover
	PreApply  Hook
	PostApply Hook
}

// Results summarizes a successful Apply.
type Results struct {
	// ModifiedPaths lists the final paths that received new content.
	ModifiedPaths []string
	// RenameCount counts existing entries moved aside during removal.
	RenameCount int
	// InstallCount counts entries moved from limbo to their final path.
	InstallCount int
}

// Apply moves the staged changes into the tree and commits the matching
// inventory delta. Removals run child to parent, then insertions parent to
// child; if either phase fails every move is rolled back. The transform is
// finalized on success.
func (tt *TreeTransform) Apply(opts ApplyOptions) (*Results, error) {
	if err := tt.checkLive(); err != nil {
		return nil, err
	}
	finish := logging.LogOperationStart(tt.logger, "apply")
	defer finish()

	if opts.PreApply != nil {
		if err := opts.PreApply(tt.wt, tt); err != nil {
			return nil, err
		}
	}
	if !opts.NoConflicts {
		conflicts, err := tt.FindConflicts()
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, malformed(conflicts)
		}
	}

	delta := opts.PrecomputedDelta
	if delta == nil {
		var err error
		if delta, err = tt.generateDelta(); err != nil {
			return nil, err
		}
	}
	results := &Results{}
	modified, err := tt.modifiedPaths()
	if err != nil {
		return nil, err
	}
	results.ModifiedPaths = modified

	mover := opts.Mover
	if mover == nil {
		mover = NewFileMover(tt.wt.FS())
	}
	err = tt.applyRemovals(mover, results)
	if err == nil {
		err = tt.applyInsertions(mover, results)
	}
	if err != nil {
		tt.logger.Warn().Err(err).Msg("apply failed, rolling back")
		if rbErr := mover.Rollback(); rbErr != nil {
			err = multierror.Append(err, rbErr)
		}
		return nil, err
	}
	if err := mover.ApplyDeletions(); err != nil {
		tt.logger.Error().Err(err).Msg("pending deletions could not be removed")
	}

	if tt.FinalFileID(tt.newRoot) == "" {
		delta = withoutRootEntry(delta)
	}
	if err := tt.wt.ApplyDelta(delta); err != nil {
		return nil, err
	}
	if err := tt.applyObservedHashes(); err != nil {
		return nil, err
	}
	tt.done = true
	tt.logger.Info().
		Int("modified", len(results.ModifiedPaths)).
		Int("renamed", results.RenameCount).
		Int("installed", results.InstallCount).
		Int("delta", len(delta)).
		Msg("transform applied")

	if opts.PostApply != nil {
		if err := opts.PostApply(tt.wt, tt); err != nil {
			_ = tt.Finalize()
			return results, err
		}
	}
	return results, tt.Finalize()
}

func withoutRootEntry(delta types.Delta) types.Delta {
	filtered := make(types.Delta, 0, len(delta))
	for _, e := range delta {
		if e.OldPath != nil && *e.OldPath == "" {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func (tt *TreeTransform) modifiedPaths() ([]string, error) {
	fp := newFinalPaths(tt.core)
	paths := make([]string, 0, len(tt.newContents))
	for t := range tt.newContents {
		p, err := fp.get(t)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// applyRemovals moves deleted content into the pending-deletion area and
// renamed entries into limbo, deepest paths first.
func (tt *TreeTransform) applyRemovals(mover Mover, results *Results) error {
	defer logging.LogOperationStart(tt.logger, "apply.removals")()
	paths := make([]string, 0, len(tt.treePathIDs))
	for p := range tt.treePathIDs {
		paths = append(paths, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		if p == "" {
			continue
		}
		t := tt.treePathIDs[p]
		full := tt.wt.Abspath(p)
		switch {
		case tt.removedContents.has(t):
			if err := mover.PreDelete(full, filepath.Join(tt.deletionDir, string(t))); err != nil {
				return err
			}
		case tt.pathChanged(t):
			if err := mover.Rename(full, tt.limboName(t)); err != nil {
				if stderrors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
			results.RenameCount++
		}
	}
	return nil
}

// applyInsertions moves staged entries to their final paths, shallowest
// first, and applies executable bits.
func (tt *TreeTransform) applyInsertions(mover Mover, results *Results) error {
	defer logging.LogOperationStart(tt.logger, "apply.insertions")()
	newPaths, err := tt.NewPaths(true)
	if err != nil {
		return err
	}
	for _, np := range newPaths {
		t := np.TransID
		full := tt.wt.Abspath(np.Path)
		if tt.limbo.needsRename.has(t) {
			if err := mover.Rename(tt.limboName(t), full); err != nil {
				if !stderrors.Is(err, fs.ErrNotExist) {
					return err
				}
			} else {
				results.InstallCount++
			}
		}
		if executable, ok := tt.newExecutability[t]; ok {
			if err := tt.applyExecutability(full, executable); err != nil {
				return err
			}
		}
		if observed, ok := tt.observedHashes[t]; ok {
			info, err := tt.wt.FS().Lstat(full)
			if err != nil {
				return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", np.Path)
			}
			observed.Size = info.Size()
			observed.ModTime = info.ModTime()
			tt.observedHashes[t] = observed
		}
	}
	for _, np := range newPaths {
		delete(tt.limbo.files, np.TransID)
	}
	tt.newContents = map[TransID]types.Kind{}
	return nil
}

// applyExecutability sets or clears the x bits of full. Setting honours the
// umask and only grants group/other execute where they can already read.
func (tt *TreeTransform) applyExecutability(full string, executable bool) error {
	if !tt.wt.SupportsExecutable() {
		return nil
	}
	info, err := tt.wt.FS().Stat(full)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", full)
	}
	mode := info.Mode().Perm()
	var to fs.FileMode
	if executable {
		umask := currentUmask()
		to = mode | (0o100 &^ umask)
		if mode&0o004 != 0 {
			to |= 0o001 &^ umask
		}
		if mode&0o040 != 0 {
			to |= 0o010 &^ umask
		}
	} else {
		to = mode &^ 0o111
	}
	if err := tt.wt.FS().Chmod(full, to); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "failed to chmod %s", full)
	}
	return nil
}

func (tt *TreeTransform) applyObservedHashes() error {
	fp := newFinalPaths(tt.core)
	for _, t := range sortedIDs(tt.observedHashes) {
		p, err := fp.get(t)
		if err != nil {
			return err
		}
		if err := tt.wt.RecordObservedHash(p, tt.observedHashes[t]); err != nil {
			return err
		}
	}
	return nil
}

// inventoryAltered lists, by final path, every trans id whose inventory
// entry changes: name, parent, file id, kind or executable bit.
func (c *core) inventoryAltered() ([]PathTransID, error) {
	changed := idSet{}
	newFileID := idSet{}
	for t, id := range c.newID {
		if id != c.TreeFileID(t) {
			newFileID.add(t)
		}
	}
	for t := range c.newName {
		changed.add(t)
	}
	for t := range c.newParent {
		changed.add(t)
	}
	for t := range newFileID {
		changed.add(t)
	}
	for t := range c.newExecutability {
		changed.add(t)
	}
	for t := range c.removedContents {
		if _, ok := c.newContents[t]; !ok || changed.has(t) {
			continue
		}
		if c.TreeKind(t) != c.FinalKind(t) {
			changed.add(t)
		}
	}
	for _, parent := range newFileID.sorted() {
		children, err := c.backend.treeChildren(parent)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			changed.add(child)
		}
	}

	fp := newFinalPaths(c)
	result := make([]PathTransID, 0, len(changed))
	for t := range changed {
		p, err := fp.get(t)
		if err != nil {
			return nil, err
		}
		result = append(result, PathTransID{Path: p, TransID: t})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// generateDelta builds the inventory delta that matches the staged changes.
// It must run before any content leaves limbo.
func (c *core) generateDelta() (types.Delta, error) {
	altered, err := c.inventoryAltered()
	if err != nil {
		return nil, err
	}
	var delta types.Delta
	for _, t := range c.removedID.sorted() {
		var id types.FileID
		if t == c.newRoot {
			id, _ = c.tree.PathToID("")
		} else {
			id = c.TreeFileID(t)
		}
		if id == "" {
			continue
		}
		if _, ok := c.rNewID[id]; ok {
			continue
		}
		p, ok := c.tree.IDToPath(id)
		if !ok {
			continue
		}
		delta = append(delta, types.DeltaEntry{OldPath: types.PathPtr(p), FileID: id})
	}

	for _, a := range altered {
		t := a.TransID
		id := c.FinalFileID(t)
		if id == "" {
			continue
		}
		oldPath, had := c.tree.IDToPath(id)
		kind := c.FinalKind(t)
		if kind == types.KindNone && had {
			if kind, err = c.tree.StoredKind(oldPath); err != nil {
				return nil, err
			}
		}
		parent, _ := c.finalParent(t)
		name, _ := c.finalName(t)
		entry := &types.InventoryEntry{
			FileID:     id,
			ParentID:   c.FinalFileID(parent),
			Name:       name,
			Kind:       kind,
			Executable: c.finalExecutable(t, kind),
		}
		de := types.DeltaEntry{NewPath: types.PathPtr(a.Path), FileID: id, Entry: entry}
		if had {
			de.OldPath = types.PathPtr(oldPath)
		}
		delta = append(delta, de)
	}
	return delta, nil
}

func (c *core) finalExecutable(t TransID, kind types.Kind) bool {
	if executable, ok := c.newExecutability[t]; ok {
		return executable
	}
	if kind != types.KindFile {
		return false
	}
	if _, ok := c.newContents[t]; ok {
		info, err := c.limbo.fs.Lstat(c.limboName(t))
		return err == nil && info.Mode().Perm()&0o111 != 0
	}
	if p, ok := c.treeIDPaths[t]; ok {
		executable, err := c.tree.IsExecutable(p)
		return err == nil && executable
	}
	return false
}
