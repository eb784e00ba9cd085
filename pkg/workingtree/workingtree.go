package workingtree

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"

	"github.com/arthur-debert/treetx/pkg/config"
	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/filesystem"
	"github.com/arthur-debert/treetx/pkg/internal/hashutil"
	"github.com/arthur-debert/treetx/pkg/inventory"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/google/uuid"
)

// InventoryFile is the store file name inside the control directory.
const InventoryFile = "inventory.db"

type lockMode int

const (
	unlocked lockMode = iota
	readLocked
	writeLocked
)

// WorkingTree is an on-disk tree whose versioning metadata lives in a control
// directory at its root.
type WorkingTree struct {
	root          string
	cfg           *config.Config
	fs            types.FS
	inv           *inventory.Inventory
	store         *inventory.Store
	mode          lockMode
	lockCount     int
	caseSensitive bool
}

// Compile time check
var _ types.MutableTree = (*WorkingTree)(nil)

// Init creates the control directory and an inventory holding just the root.
func Init(dir string, cfg *config.Config) (*WorkingTree, error) {
	logger := logging.GetLogger("workingtree")
	wt, err := newTree(dir, cfg)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(wt.storePath()); err == nil {
		return nil, errors.Newf(errors.ErrAlreadyExists, "%s is already a tree", wt.root).
			WithDetail("root", wt.root)
	}
	if err := wt.fs.MkdirAll(wt.ControlDir(), 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", wt.ControlDir())
	}

	rootID := types.FileID("tree-root-" + uuid.NewString())
	store, err := inventory.Create(wt.storePath(), rootID)
	if err != nil {
		return nil, err
	}
	inv, err := store.Load()
	_ = store.Close()
	if err != nil {
		return nil, err
	}
	wt.inv = inv
	wt.caseSensitive = wt.cfg.CaseSensitiveTarget(probeCaseSensitive(wt.ControlDir()))

	logger.Info().Str("root", wt.root).Str("rootID", string(rootID)).Msg("Initialized tree")
	return wt, nil
}

// Open loads the tree rooted at dir.
func Open(dir string, cfg *config.Config) (*WorkingTree, error) {
	wt, err := newTree(dir, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(wt.storePath()); err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "%s is not a tree", wt.root).
			WithDetail("root", wt.root)
	}
	if err := wt.reload(inventory.Options{Timeout: wt.cfg.Tree.LockTimeout, ReadOnly: true}, true); err != nil {
		return nil, err
	}
	wt.caseSensitive = wt.cfg.CaseSensitiveTarget(probeCaseSensitive(wt.ControlDir()))
	return wt, nil
}

// Find walks up from dir to the nearest directory holding a control directory.
func Find(dir string, cfg *config.Config) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInvalidInput, "invalid directory")
	}
	for {
		if _, err := os.Stat(filepath.Join(abs, cfg.Tree.ControlDir, InventoryFile)); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.Newf(errors.ErrNotFound, "no tree found above %s", dir)
		}
		abs = parent
	}
}

func newTree(dir string, cfg *config.Config) (*WorkingTree, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidInput, "invalid tree directory")
	}
	return &WorkingTree{root: abs, cfg: cfg, fs: filesystem.NewOS()}, nil
}

func (wt *WorkingTree) storePath() string {
	return filepath.Join(wt.ControlDir(), InventoryFile)
}

// reload opens the store, refreshes the inventory and optionally closes it again.
func (wt *WorkingTree) reload(opts inventory.Options, closeAfter bool) error {
	store, err := inventory.Open(wt.storePath(), opts)
	if err != nil {
		return err
	}
	inv, err := store.Load()
	if err != nil {
		_ = store.Close()
		return err
	}
	wt.inv = inv
	if closeAfter {
		return store.Close()
	}
	wt.store = store
	return nil
}

// Root returns the absolute tree root.
func (wt *WorkingTree) Root() string {
	return wt.root
}

// Config returns the configuration the tree was opened with.
func (wt *WorkingTree) Config() *config.Config {
	return wt.cfg
}

// LockRead takes a shared lock on the inventory.
func (wt *WorkingTree) LockRead() error {
	if wt.mode != unlocked {
		wt.lockCount++
		return nil
	}
	if err := wt.reload(inventory.Options{Timeout: wt.cfg.Tree.LockTimeout, ReadOnly: true}, false); err != nil {
		return err
	}
	wt.mode = readLocked
	wt.lockCount = 1
	return nil
}

// LockWrite takes the exclusive lock on the inventory.
func (wt *WorkingTree) LockWrite() error {
	switch wt.mode {
	case writeLocked:
		wt.lockCount++
		return nil
	case readLocked:
		return errors.New(errors.ErrLockContention, "cannot upgrade a read lock to a write lock")
	}
	if err := wt.reload(inventory.Options{Timeout: wt.cfg.Tree.LockTimeout}, false); err != nil {
		return err
	}
	wt.mode = writeLocked
	wt.lockCount = 1
	logger := logging.GetLogger("workingtree")
	logger.Debug().Str("root", wt.root).Msg("Took write lock")
	return nil
}

// Unlock releases one level of locking.
func (wt *WorkingTree) Unlock() error {
	if wt.mode == unlocked {
		return errors.New(errors.ErrNotLocked, "tree is not locked")
	}
	wt.lockCount--
	if wt.lockCount > 0 {
		return nil
	}
	wt.mode = unlocked
	store := wt.store
	wt.store = nil
	return store.Close()
}

// IsLocked reports whether any lock is held.
func (wt *WorkingTree) IsLocked() bool {
	return wt.mode != unlocked
}

// ApplyDelta persists an inventory delta. Requires the write lock.
func (wt *WorkingTree) ApplyDelta(delta types.Delta) error {
	if wt.mode != writeLocked {
		return errors.New(errors.ErrNotLocked, "applying a delta requires the write lock")
	}
	inv, err := wt.store.Apply(delta)
	if err != nil {
		return err
	}
	wt.inv = inv
	return nil
}

// RecordObservedHash caches a content hash for path. Requires the write lock.
func (wt *WorkingTree) RecordObservedHash(p string, observed types.ObservedHash) error {
	if wt.mode != writeLocked {
		return errors.New(errors.ErrNotLocked, "recording hashes requires the write lock")
	}
	return wt.store.RecordHash(p, observed)
}

// Abspath maps a tree path to its location on disk.
func (wt *WorkingTree) Abspath(p string) string {
	if p == "" {
		return wt.root
	}
	return filepath.Join(wt.root, filepath.FromSlash(p))
}

// ControlDir returns the absolute control directory.
func (wt *WorkingTree) ControlDir() string {
	return filepath.Join(wt.root, wt.cfg.Tree.ControlDir)
}

// FS returns the filesystem the tree lives on.
func (wt *WorkingTree) FS() types.FS {
	return wt.fs
}

// IsControlFilename reports whether p is, or is inside, the control directory.
func (wt *WorkingTree) IsControlFilename(p string) bool {
	first := strings.SplitN(p, "/", 2)[0]
	if wt.caseSensitive {
		return first == wt.cfg.Tree.ControlDir
	}
	return strings.EqualFold(first, wt.cfg.Tree.ControlDir)
}

// CaseSensitive reports whether names differing only in case are distinct.
func (wt *WorkingTree) CaseSensitive() bool {
	return wt.caseSensitive
}

// SupportsSymlinks reports whether symlinks can be created.
func (wt *WorkingTree) SupportsSymlinks() bool {
	return runtime.GOOS != "windows"
}

// SupportsExecutable reports whether the executable bit is stored on disk.
func (wt *WorkingTree) SupportsExecutable() bool {
	return runtime.GOOS != "windows"
}

// PathToID resolves a path through the inventory.
func (wt *WorkingTree) PathToID(p string) (types.FileID, bool) {
	return wt.inv.PathToID(p)
}

// IDToPath resolves a file id through the inventory.
func (wt *WorkingTree) IDToPath(id types.FileID) (string, bool) {
	return wt.inv.Path(id)
}

// AllFileIDs lists every versioned id.
func (wt *WorkingTree) AllFileIDs() []types.FileID {
	return wt.inv.IDs()
}

// IsVersioned reports whether p has a file id.
func (wt *WorkingTree) IsVersioned(p string) bool {
	_, ok := wt.inv.PathToID(p)
	return ok
}

// Kind reports what is on disk at p.
func (wt *WorkingTree) Kind(p string) (types.Kind, error) {
	info, err := wt.fs.Lstat(wt.Abspath(p))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR) {
			return types.KindNone, nil
		}
		return types.KindNone, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", p)
	}
	return KindOf(info.Mode()), nil
}

// KindOf maps a file mode to an entry kind.
func KindOf(mode fs.FileMode) types.Kind {
	switch {
	case mode.IsDir():
		return types.KindDirectory
	case mode&fs.ModeSymlink != 0:
		return types.KindSymlink
	case mode.IsRegular():
		return types.KindFile
	}
	return types.KindSpecial
}

// StoredKind returns the kind recorded in the inventory for p.
func (wt *WorkingTree) StoredKind(p string) (types.Kind, error) {
	id, ok := wt.inv.PathToID(p)
	if !ok {
		return types.KindNone, errors.Newf(errors.ErrNotFound, "%s is not versioned", p)
	}
	e, _ := wt.inv.Get(id)
	return e.Kind, nil
}

// IsExecutable reports the executable bit of the file at p.
func (wt *WorkingTree) IsExecutable(p string) (bool, error) {
	if !wt.SupportsExecutable() {
		if id, ok := wt.inv.PathToID(p); ok {
			e, _ := wt.inv.Get(id)
			return e.Executable, nil
		}
		return false, nil
	}
	info, err := wt.fs.Lstat(wt.Abspath(p))
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", p)
	}
	return info.Mode().IsRegular() && info.Mode()&0o111 != 0, nil
}

// FileSize returns the size in bytes of the file at p.
func (wt *WorkingTree) FileSize(p string) (int64, error) {
	info, err := wt.fs.Lstat(wt.Abspath(p))
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", p)
	}
	return info.Size(), nil
}

// FileHash returns the content hash of p, trusting the observed hash cache
// when size and mtime still match.
func (wt *WorkingTree) FileHash(p string) (string, error) {
	abs := wt.Abspath(p)
	info, err := wt.fs.Lstat(abs)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", p)
	}
	if wt.store != nil {
		observed, found, err := wt.store.ObservedHash(p)
		if err == nil && found && observed.Size == info.Size() && observed.ModTime.Equal(info.ModTime()) {
			return observed.Hash, nil
		}
	}
	hash, err := hashutil.ChecksumFS(wt.fs, abs)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to hash %s", p)
	}
	return hash, nil
}

// SymlinkTarget returns the target of the symlink at p.
func (wt *WorkingTree) SymlinkTarget(p string) (string, error) {
	target, err := wt.fs.Readlink(wt.Abspath(p))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to read link %s", p)
	}
	return target, nil
}

// ReadFile returns the bytes of the file at p.
func (wt *WorkingTree) ReadFile(p string) ([]byte, error) {
	data, err := wt.fs.ReadFile(wt.Abspath(p))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to read %s", p)
	}
	return data, nil
}

// Children lists the names on disk under directory p, hiding the control
// directory at the root.
func (wt *WorkingTree) Children(p string) ([]string, error) {
	entries, err := wt.fs.ReadDir(wt.Abspath(p))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to list %s", p)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if p == "" && wt.IsControlFilename(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Entries lists the versioned entries in by-directory order.
func (wt *WorkingTree) Entries() ([]types.PathEntry, error) {
	return wt.inv.Entries(), nil
}

// Walk lists every path on disk below the root, parents before children,
// skipping the control directory.
func (wt *WorkingTree) Walk() ([]string, error) {
	var paths []string
	queue := []string{""}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		names, err := wt.Children(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			child := path.Join(dir, name)
			paths = append(paths, child)
			if k, _ := wt.Kind(child); k == types.KindDirectory {
				queue = append(queue, child)
			}
		}
	}
	return paths, nil
}

// probeCaseSensitive checks whether dir's filesystem folds case.
func probeCaseSensitive(dir string) bool {
	f, err := os.CreateTemp(dir, "case-probe-")
	if err != nil {
		return true
	}
	name := f.Name()
	_ = f.Close()
	defer func() { _ = os.Remove(name) }()

	base := filepath.Base(name)
	_, err = os.Stat(filepath.Join(dir, strings.ToUpper(base)))
	return err != nil
}
