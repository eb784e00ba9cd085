package memtree

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/filesystem"
	"github.com/arthur-debert/treetx/pkg/internal/hashutil"
	"github.com/arthur-debert/treetx/pkg/inventory"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/spf13/afero"
)

// Tree is an immutable in-memory tree. Content lives in an afero MemMapFs
// behind filesystem.NewAferoFS, which also emulates symlinks; the executable
// bit is the file's mode.
type Tree struct {
	inv *inventory.Inventory
	fs  types.FS
}

var _ types.Tree = (*Tree)(nil)

func abs(p string) string {
	return "/" + p
}

func (t *Tree) PathToID(p string) (types.FileID, bool) { return t.inv.PathToID(p) }
func (t *Tree) IDToPath(id types.FileID) (string, bool) { return t.inv.Path(id) }
func (t *Tree) AllFileIDs() []types.FileID { return t.inv.IDs() }
func (t *Tree) LockRead() error { return nil }
func (t *Tree) Unlock() error { return nil }

func (t *Tree) IsVersioned(p string) bool {
	_, ok := t.inv.PathToID(p)
	return ok
}

func (t *Tree) Kind(p string) (types.Kind, error) {
	info, err := t.fs.Lstat(abs(p))
	if err != nil {
		return types.KindNone, nil
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return types.KindSymlink, nil
	case info.IsDir():
		return types.KindDirectory, nil
	}
	return types.KindFile, nil
}

func (t *Tree) StoredKind(p string) (types.Kind, error) {
	id, ok := t.inv.PathToID(p)
	if !ok {
		return types.KindNone, errors.Newf(errors.ErrNotFound, "%s is not versioned", p)
	}
	e, _ := t.inv.Get(id)
	return e.Kind, nil
}

func (t *Tree) IsExecutable(p string) (bool, error) {
	info, err := t.fs.Lstat(abs(p))
	if err != nil || !info.Mode().IsRegular() {
		return false, nil
	}
	return info.Mode().Perm()&0o100 != 0, nil
}

func (t *Tree) FileSize(p string) (int64, error) {
	info, err := t.fs.Lstat(abs(p))
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrFileNotFound, "no content at %s", p)
	}
	return info.Size(), nil
}

func (t *Tree) FileHash(p string) (string, error) {
	data, err := t.ReadFile(p)
	if err != nil {
		return "", err
	}
	return hashutil.ChecksumBytes(data), nil
}

func (t *Tree) SymlinkTarget(p string) (string, error) {
	target, err := t.fs.Readlink(abs(p))
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileNotFound, "%s is not a symlink", p)
	}
	return target, nil
}

func (t *Tree) ReadFile(p string) ([]byte, error) {
	if kind, _ := t.Kind(p); kind == types.KindSymlink {
		return nil, errors.Newf(errors.ErrInvalidInput, "%s is a symlink", p)
	}
	data, err := t.fs.ReadFile(abs(p))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileNotFound, "no content at %s", p)
	}
	return data, nil
}

func (t *Tree) Children(p string) ([]string, error) {
	entries, err := t.fs.ReadDir(abs(p))
	if err != nil {
		return nil, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (t *Tree) Entries() ([]types.PathEntry, error) {
	return t.inv.Entries(), nil
}

// Snapshot copies the versioned state of tree, including content, into memory.
func Snapshot(tree types.Tree) (*Tree, error) {
	if err := tree.LockRead(); err != nil {
		return nil, err
	}
	defer func() { _ = tree.Unlock() }()

	entries, err := tree.Entries()
	if err != nil {
		return nil, err
	}
	flat := make([]types.InventoryEntry, 0, len(entries))
	for _, e := range entries {
		flat = append(flat, e.Entry)
	}
	inv, err := inventory.FromEntries(flat)
	if err != nil {
		return nil, err
	}

	b := &Builder{inv: inv, fs: newFS()}
	for _, e := range entries {
		kind, err := tree.Kind(e.Path)
		if err != nil {
			return nil, err
		}
		switch kind {
		case types.KindDirectory:
			b.mkdir(e.Path)
		case types.KindFile:
			data, err := tree.ReadFile(e.Path)
			if err != nil {
				return nil, err
			}
			x, err := tree.IsExecutable(e.Path)
			if err != nil {
				return nil, err
			}
			b.write(e.Path, data, x)
		case types.KindSymlink:
			target, err := tree.SymlinkTarget(e.Path)
			if err != nil {
				return nil, err
			}
			b.link(e.Path, target)
		}
	}
	return b.tree(), nil
}

// Builder assembles a Tree entry by entry. Parents must be added before their
// children. An empty file id leaves the entry unversioned.
type Builder struct {
	inv *inventory.Inventory
	fs  types.FS
	err error
}

func newFS() types.FS {
	return filesystem.NewAferoFS(afero.NewMemMapFs())
}

// NewBuilder starts a tree whose root directory has rootID.
func NewBuilder(rootID types.FileID) *Builder {
	b := &Builder{inv: inventory.New(rootID), fs: newFS()}
	b.mkdir("")
	return b
}

// Dir adds a directory.
func (b *Builder) Dir(p string, id types.FileID) *Builder {
	b.mkdir(p)
	b.version(p, id, types.KindDirectory, false)
	return b
}

// File adds a regular file.
func (b *Builder) File(p string, id types.FileID, content []byte) *Builder {
	b.write(p, content, false)
	b.version(p, id, types.KindFile, false)
	return b
}

// ExecFile adds a regular file with the executable bit set.
func (b *Builder) ExecFile(p string, id types.FileID, content []byte) *Builder {
	b.write(p, content, true)
	b.version(p, id, types.KindFile, true)
	return b
}

// Symlink adds a symlink pointing at target.
func (b *Builder) Symlink(p string, id types.FileID, target string) *Builder {
	b.link(p, target)
	b.version(p, id, types.KindSymlink, false)
	return b
}

// Build returns the tree or the first error met while building.
func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tree(), nil
}

func (b *Builder) tree() *Tree {
	return &Tree{inv: b.inv, fs: b.fs}
}

func (b *Builder) version(p string, id types.FileID, kind types.Kind, executable bool) {
	if id == "" || b.err != nil {
		return
	}
	parentID, ok := b.inv.PathToID(parentPath(p))
	if !ok {
		b.err = errors.Newf(errors.ErrInvalidInput, "parent of %s is not versioned", p)
		return
	}
	entry := types.InventoryEntry{FileID: id, ParentID: parentID, Name: path.Base(p), Kind: kind, Executable: executable}
	b.err = b.inv.Apply(types.Delta{{NewPath: types.PathPtr(p), FileID: id, Entry: &entry}})
}

func (b *Builder) mkdir(p string) {
	b.fail(b.fs.MkdirAll(abs(p), 0755))
}

func (b *Builder) write(p string, data []byte, executable bool) {
	perm := fs.FileMode(0644)
	if executable {
		perm = 0755
	}
	b.fail(b.fs.WriteFile(abs(p), data, perm))
	b.fail(b.fs.Chmod(abs(p), perm))
}

func (b *Builder) link(p, target string) {
	b.fail(b.fs.Symlink(target, abs(p)))
}

func (b *Builder) fail(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

func parentPath(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}
