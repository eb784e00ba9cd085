package transform

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/filesystem"
	"github.com/arthur-debert/treetx/pkg/internal/hashutil"
	"github.com/arthur-debert/treetx/pkg/treediff"
	"github.com/arthur-debert/treetx/pkg/types"
)

// PreviewTransform stages changes against any read-only tree. It can show
// the result through a PreviewTree but cannot apply it.
type PreviewTransform struct {
	*core
	tmpDir string
}

var _ Transform = (*PreviewTransform)(nil)

// NewPreview starts a preview transform over tree, staging content in a
// private temporary directory. The tree is read-locked until Finalize.
func NewPreview(tree types.Tree, opts Options) (*PreviewTransform, error) {
	if err := tree.LockRead(); err != nil {
		return nil, err
	}
	tmpDir, err := os.MkdirTemp("", "treetx-preview-")
	if err != nil {
		_ = tree.Unlock()
		return nil, errors.Wrap(err, errors.ErrDirCreate, "failed to create preview limbo")
	}
	fsys := filesystem.NewOS()
	limboDir := filepath.Join(tmpDir, limboDirName)
	if err := createScratchDir(fsys, limboDir, errors.ErrExistingLimbo); err != nil {
		_ = os.RemoveAll(tmpDir)
		_ = tree.Unlock()
		return nil, err
	}

	pt := &PreviewTransform{tmpDir: tmpDir}
	pt.core = newCore(tree, opts, opts.CaseSensitive, "preview")
	pt.core.backend = pt
	pt.core.limbo = newLimbo(fsys, limboDir, opts.DirectPaths)
	return pt, nil
}

func (pt *PreviewTransform) staged() *core {
	return pt.core
}

// treeChildren lists only the versioned children of parent.
func (pt *PreviewTransform) treeChildren(parent TransID) ([]TransID, error) {
	p, ok := pt.treeIDPaths[parent]
	if !ok {
		return nil, nil
	}
	names, err := pt.tree.Children(p)
	if err != nil {
		return nil, err
	}
	children := make([]TransID, 0, len(names))
	for _, name := range names {
		childPath := joinPath(p, name)
		if pt.tree.IsVersioned(childPath) {
			children = append(children, pt.TransIDTreePath(childPath))
		}
	}
	return children, nil
}

func (pt *PreviewTransform) setMode(modeID, t TransID) error { return nil }

func (pt *PreviewTransform) supportsSymlinks() bool {
	return runtime.GOOS != "windows"
}

// Apply is not available on previews.
func (pt *PreviewTransform) Apply(ApplyOptions) (*Results, error) {
	return nil, errors.New(errors.ErrUnsupported, "preview transforms cannot be applied")
}

// NewOrphan is not available on previews.
func (pt *PreviewTransform) NewOrphan(t, parent TransID) error {
	return errors.Newf(errors.ErrUnsupported, "preview transforms cannot orphan %s", t)
}

// Finalize removes the temporary staging area and releases the tree.
func (pt *PreviewTransform) Finalize() error {
	if pt.finalized {
		return nil
	}
	pt.finalized = true
	err := pt.limbo.clean()
	if rmErr := os.RemoveAll(pt.tmpDir); rmErr != nil && err == nil {
		err = errors.Wrap(rmErr, errors.ErrFileAccess, "failed to remove preview limbo")
	}
	if unlockErr := pt.tree.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// PreviewTree is a read-only view of a transform's final state. It reads
// staged content from limbo and everything else from the base tree. Any
// staging change made after the preview was taken invalidates it: methods
// returning an error then fail with ErrStalePreview and the others report
// nothing.
type PreviewTree struct {
	c           *core
	generation  uint64
	byParent    map[TransID]idSet
	paths       *finalPaths
	allChildren map[TransID][]TransID
	pathToTrans map[string]TransID
}

var _ types.Tree = (*PreviewTree)(nil)

// GetPreviewTree returns a view of the tree as it would be after Apply.
func (c *core) GetPreviewTree() (*PreviewTree, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	return &PreviewTree{
		c:           c,
		generation:  c.generation,
		byParent:    c.byParent(),
		paths:       newFinalPaths(c),
		allChildren: map[TransID][]TransID{},
		pathToTrans: map[string]TransID{},
	}, nil
}

func (pt *PreviewTree) check() error {
	if pt.c.generation != pt.generation || pt.c.finalized || pt.c.done {
		return errors.New(errors.ErrStalePreview, "the transform changed after this preview was taken")
	}
	return nil
}

func (pt *PreviewTree) children(t TransID) ([]TransID, error) {
	if cached, ok := pt.allChildren[t]; ok {
		return cached, nil
	}
	set := idSet{}
	treeChildren, err := pt.c.backend.treeChildren(t)
	if err != nil {
		return nil, err
	}
	for _, child := range treeChildren {
		if _, moved := pt.c.newParent[child]; !moved {
			set.add(child)
		}
	}
	for child := range pt.byParent[t] {
		set.add(child)
	}
	result := set.sorted()
	pt.allChildren[t] = result
	return result, nil
}

// transID resolves a final path by walking down from the root, preferring
// children that will exist over ones being removed.
func (pt *PreviewTree) transID(p string) (TransID, bool) {
	p = canonicalPath(p)
	if t, ok := pt.pathToTrans[p]; ok {
		return t, t != ""
	}
	cur := pt.c.newRoot
	if p != "" {
		for _, segment := range strings.Split(p, "/") {
			var match TransID
			children, err := pt.children(cur)
			if err != nil {
				pt.c.logger.Debug().Err(err).Str("path", p).Msg("preview lookup failed")
				return "", false
			}
			for _, child := range children {
				name, ok := pt.c.finalName(child)
				if !ok || name != segment {
					continue
				}
				if match == "" || pt.c.FinalKind(child) != types.KindNone || pt.c.FinalIsVersioned(child) {
					match = child
				}
				if pt.c.FinalKind(child) != types.KindNone {
					break
				}
			}
			if match == "" {
				pt.pathToTrans[p] = ""
				return "", false
			}
			cur = match
		}
	}
	pt.pathToTrans[p] = cur
	return cur, true
}

func (pt *PreviewTree) existing(p string) (TransID, error) {
	if err := pt.check(); err != nil {
		return "", err
	}
	t, ok := pt.transID(p)
	if !ok || pt.c.FinalKind(t) == types.KindNone {
		return "", errors.Newf(errors.ErrFileNotFound, "%s does not exist in the preview", p)
	}
	return t, nil
}

func (pt *PreviewTree) hasStagedContent(t TransID) bool {
	_, ok := pt.c.newContents[t]
	return ok
}

func (pt *PreviewTree) PathToID(p string) (types.FileID, bool) {
	if pt.check() != nil {
		return "", false
	}
	t, ok := pt.transID(p)
	if !ok {
		return "", false
	}
	id := pt.c.FinalFileID(t)
	return id, id != ""
}

func (pt *PreviewTree) IDToPath(id types.FileID) (string, bool) {
	if pt.check() != nil || id == "" {
		return "", false
	}
	t, err := pt.c.TransIDFileID(id)
	if err != nil || pt.c.FinalFileID(t) != id {
		return "", false
	}
	p, err := pt.paths.get(t)
	if err != nil {
		return "", false
	}
	return p, true
}

// AllFileIDs lists the ids versioned in the final state.
func (pt *PreviewTree) AllFileIDs() []types.FileID {
	if pt.check() != nil {
		return nil
	}
	ids := map[types.FileID]bool{}
	for _, id := range pt.c.tree.AllFileIDs() {
		ids[id] = true
	}
	for t := range pt.c.removedID {
		delete(ids, pt.c.TreeFileID(t))
	}
	for _, id := range pt.c.newID {
		ids[id] = true
	}
	result := make([]types.FileID, 0, len(ids))
	for id := range ids {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (pt *PreviewTree) IsVersioned(p string) bool {
	_, ok := pt.PathToID(p)
	return ok
}

func (pt *PreviewTree) Kind(p string) (types.Kind, error) {
	if err := pt.check(); err != nil {
		return types.KindNone, err
	}
	t, ok := pt.transID(p)
	if !ok {
		return types.KindNone, nil
	}
	return pt.c.FinalKind(t), nil
}

func (pt *PreviewTree) StoredKind(p string) (types.Kind, error) {
	if err := pt.check(); err != nil {
		return types.KindNone, err
	}
	t, ok := pt.transID(p)
	if !ok {
		return types.KindNone, errors.Newf(errors.ErrNotFound, "%s does not exist in the preview", p)
	}
	if kind, ok := pt.c.newContents[t]; ok {
		return kind, nil
	}
	treePath, ok := pt.c.treeIDPaths[t]
	if !ok {
		return types.KindNone, errors.Newf(errors.ErrNotFound, "%s has no stored kind", p)
	}
	return pt.c.tree.StoredKind(treePath)
}

func (pt *PreviewTree) IsExecutable(p string) (bool, error) {
	if err := pt.check(); err != nil {
		return false, err
	}
	t, ok := pt.transID(p)
	if !ok {
		return false, nil
	}
	return pt.c.finalExecutable(t, pt.c.FinalKind(t)), nil
}

func (pt *PreviewTree) FileSize(p string) (int64, error) {
	t, err := pt.existing(p)
	if err != nil {
		return 0, err
	}
	if pt.hasStagedContent(t) {
		info, err := pt.c.limbo.fs.Lstat(pt.c.limboName(t))
		if err != nil {
			return 0, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat staged %s", p)
		}
		return info.Size(), nil
	}
	return pt.c.tree.FileSize(pt.c.treeIDPaths[t])
}

func (pt *PreviewTree) FileHash(p string) (string, error) {
	t, err := pt.existing(p)
	if err != nil {
		return "", err
	}
	if pt.hasStagedContent(t) {
		return hashutil.ChecksumFS(pt.c.limbo.fs, pt.c.limboName(t))
	}
	return pt.c.tree.FileHash(pt.c.treeIDPaths[t])
}

func (pt *PreviewTree) SymlinkTarget(p string) (string, error) {
	t, err := pt.existing(p)
	if err != nil {
		return "", err
	}
	if pt.hasStagedContent(t) {
		target, err := pt.c.limbo.fs.Readlink(pt.c.limboName(t))
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to read staged link %s", p)
		}
		return target, nil
	}
	return pt.c.tree.SymlinkTarget(pt.c.treeIDPaths[t])
}

func (pt *PreviewTree) ReadFile(p string) ([]byte, error) {
	t, err := pt.existing(p)
	if err != nil {
		return nil, err
	}
	if pt.hasStagedContent(t) {
		data, err := pt.c.limbo.fs.ReadFile(pt.c.limboName(t))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read staged %s", p)
		}
		return data, nil
	}
	return pt.c.tree.ReadFile(pt.c.treeIDPaths[t])
}

// Children lists the names that will exist under directory p.
func (pt *PreviewTree) Children(p string) ([]string, error) {
	if err := pt.check(); err != nil {
		return nil, err
	}
	t, ok := pt.transID(p)
	if !ok {
		return nil, nil
	}
	children, err := pt.children(t)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, child := range children {
		if pt.c.FinalKind(child) == types.KindNone {
			continue
		}
		if name, ok := pt.c.finalName(child); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Entries lists the final versioned entries, root first, then directory by
// directory with names sorted.
func (pt *PreviewTree) Entries() ([]types.PathEntry, error) {
	if err := pt.check(); err != nil {
		return nil, err
	}
	var entries []types.PathEntry
	queue := []TransID{pt.c.newRoot}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		id := pt.c.FinalFileID(t)
		if id == "" {
			continue
		}
		p, err := pt.paths.get(t)
		if err != nil {
			return nil, err
		}
		kind := pt.c.FinalKind(t)
		if kind == types.KindNone {
			if oldPath, ok := pt.c.tree.IDToPath(id); ok {
				if kind, err = pt.c.tree.StoredKind(oldPath); err != nil {
					return nil, err
				}
			}
		}
		var parentID types.FileID
		if parent, ok := pt.c.finalParent(t); ok {
			parentID = pt.c.FinalFileID(parent)
		}
		name, _ := pt.c.finalName(t)
		entries = append(entries, types.PathEntry{Path: p, Entry: types.InventoryEntry{
			FileID:     id,
			ParentID:   parentID,
			Name:       name,
			Kind:       kind,
			Executable: pt.c.finalExecutable(t, kind),
		}})
		if kind != types.KindDirectory {
			continue
		}
		children, err := pt.children(t)
		if err != nil {
			return nil, err
		}
		sorted := append([]TransID(nil), children...)
		sort.Slice(sorted, func(i, j int) bool {
			ni, _ := pt.c.finalName(sorted[i])
			nj, _ := pt.c.finalName(sorted[j])
			return ni < nj
		})
		queue = append(queue, sorted...)
	}
	return entries, nil
}

// Walk lists every final path below the root, parents before children.
func (pt *PreviewTree) Walk() ([]string, error) {
	if err := pt.check(); err != nil {
		return nil, err
	}
	var paths []string
	queue := []string{""}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		names, err := pt.Children(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			child := joinPath(dir, name)
			paths = append(paths, child)
			if kind, _ := pt.Kind(child); kind == types.KindDirectory {
				queue = append(queue, child)
			}
		}
	}
	return paths, nil
}

// ContentSummary describes the content at one preview path.
type ContentSummary struct {
	Kind       types.Kind
	Size       int64
	Executable bool
	Target     string
}

// PathContentSummary reports kind and kind-specific details for p.
func (pt *PreviewTree) PathContentSummary(p string) (ContentSummary, error) {
	kind, err := pt.Kind(p)
	if err != nil || kind == types.KindNone {
		return ContentSummary{Kind: kind}, err
	}
	summary := ContentSummary{Kind: kind}
	switch kind {
	case types.KindFile:
		if summary.Size, err = pt.FileSize(p); err != nil {
			return summary, err
		}
		summary.Executable, err = pt.IsExecutable(p)
	case types.KindSymlink:
		summary.Target, err = pt.SymlinkTarget(p)
	}
	return summary, err
}

// IterChanges lists the changes from the base tree to the preview.
func (pt *PreviewTree) IterChanges() ([]types.TreeChange, error) {
	if err := pt.check(); err != nil {
		return nil, err
	}
	return pt.c.IterChanges()
}

// IterChangesFrom lists the changes from an arbitrary tree to the preview.
func (pt *PreviewTree) IterChangesFrom(from types.Tree) ([]types.TreeChange, error) {
	if from == pt.c.tree {
		return pt.IterChanges()
	}
	if err := pt.check(); err != nil {
		return nil, err
	}
	return treediff.Compare(from, pt)
}

// LockRead is a no-op: the transform already holds the base tree's lock.
func (pt *PreviewTree) LockRead() error { return pt.check() }

func (pt *PreviewTree) Unlock() error { return nil }
