package transform

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/arthur-debert/treetx/pkg/config"
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/hashicorp/go-multierror"
)

const (
	limboDirName           = "limbo"
	pendingDeletionDirName = "pending-deletion"
)

// TreeTransform stages changes against a working tree on disk and applies
// them atomically. It holds the tree's write lock from New until Finalize.
type TreeTransform struct {
	*core
	wt          types.MutableTree
	deletionDir string
}

var _ Transform = (*TreeTransform)(nil)

// New starts a transform over tree. It fails if a previous transform left
// staged content behind in the control directory.
func New(tree types.MutableTree, opts Options) (*TreeTransform, error) {
	if err := tree.LockWrite(); err != nil {
		return nil, err
	}
	fsys := tree.FS()
	limboDir := filepath.Join(tree.ControlDir(), limboDirName)
	if err := createScratchDir(fsys, limboDir, errors.ErrExistingLimbo); err != nil {
		_ = tree.Unlock()
		return nil, err
	}
	deletionDir := filepath.Join(tree.ControlDir(), pendingDeletionDirName)
	if err := createScratchDir(fsys, deletionDir, errors.ErrExistingPendingDeletion); err != nil {
		_ = fsys.Remove(limboDir)
		_ = tree.Unlock()
		return nil, err
	}

	tt := &TreeTransform{wt: tree, deletionDir: deletionDir}
	tt.core = newCore(tree, opts, tree.CaseSensitive(), "tree")
	tt.core.backend = tt
	tt.core.limbo = newLimbo(fsys, limboDir, opts.DirectPaths)
	tt.logger.Debug().Str("limbo", limboDir).Bool("direct_paths", opts.DirectPaths).Msg("transform started")
	return tt, nil
}

// Tree returns the working tree being transformed.
func (tt *TreeTransform) Tree() types.MutableTree {
	return tt.wt
}

func (tt *TreeTransform) staged() *core {
	return tt.core
}

func (tt *TreeTransform) treeChildren(parent TransID) ([]TransID, error) {
	p, ok := tt.treeIDPaths[parent]
	if !ok {
		return nil, nil
	}
	names, err := tt.wt.Children(p)
	if err != nil {
		return nil, err
	}
	children := make([]TransID, 0, len(names))
	for _, name := range names {
		childPath := joinPath(p, name)
		if tt.wt.IsControlFilename(childPath) {
			continue
		}
		children = append(children, tt.TransIDTreePath(childPath))
	}
	return children, nil
}

// setMode copies the permission bits of the tree file behind modeID onto the
// staged file of t.
func (tt *TreeTransform) setMode(modeID, t TransID) error {
	oldPath, ok := tt.treeIDPaths[modeID]
	if !ok {
		return nil
	}
	info, err := tt.wt.FS().Stat(tt.wt.Abspath(oldPath))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", oldPath)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	if err := tt.limbo.fs.Chmod(tt.limboName(t), info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "failed to set mode of %s", t)
	}
	return nil
}

func (tt *TreeTransform) supportsSymlinks() bool {
	return tt.wt.SupportsSymlinks()
}

// NewOrphan deals with t, an unversioned child of parent, which is about to
// lose its directory. The configured orphan policy decides the outcome.
func (tt *TreeTransform) NewOrphan(t, parent TransID) error {
	if tt.opts.OrphanPolicy != config.OrphanPolicyMove {
		return errors.Newf(errors.ErrOrphaning, "%s would be orphaned", t).
			WithDetail("trans_id", string(t)).WithDetail("parent", string(parent))
	}
	return tt.moveOrphan(t, parent)
}

// Finalize removes the staging directories and releases the tree lock. It
// is safe to call more than once and after Apply. Staging directories that
// still hold content are left in place and reported.
func (tt *TreeTransform) Finalize() error {
	if tt.finalized {
		return nil
	}
	tt.finalized = true
	var result *multierror.Error
	if err := tt.limbo.clean(); err != nil {
		tt.logger.Error().Err(err).Str("path", tt.limbo.dir).Msg("limbo directory left behind")
		result = multierror.Append(result, err)
	}
	if err := tt.wt.FS().Remove(tt.deletionDir); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		tt.logger.Error().Err(err).Str("path", tt.deletionDir).Msg("pending-deletion directory left behind")
		result = multierror.Append(result, errors.Wrapf(err, errors.ErrImmortalPendingDeletion,
			"pending-deletion directory %s could not be removed", tt.deletionDir).WithDetail("path", tt.deletionDir))
	}
	if err := tt.wt.Unlock(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
