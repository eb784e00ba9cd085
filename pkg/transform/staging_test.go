package transform

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransIDs(t *testing.T) {
	wt := newWorkingTree(t)
	seed(t, wt, "d/", "d/f=x")
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	root := tt.Root()
	assert.Equal(t, root, tt.TransIDTreePath(""))
	assert.Equal(t, root, tt.TransIDTreePath("./"))

	f := tt.TransIDTreePath("d/f")
	assert.Equal(t, f, tt.TransIDTreePath("d//f"))
	byID, err := tt.TransIDFileID(idFor("d/f"))
	require.NoError(t, err)
	assert.Equal(t, f, byID)

	unknown, err := tt.TransIDFileID("nowhere-id")
	require.NoError(t, err)
	again, err := tt.TransIDFileID("nowhere-id")
	require.NoError(t, err)
	assert.Equal(t, unknown, again)
	assert.Equal(t, types.FileID("nowhere-id"), tt.InactiveFileID(unknown))

	_, err = tt.TransIDFileID("")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	p, ok := tt.TreePath(f)
	assert.True(t, ok)
	assert.Equal(t, "d/f", p)
	assert.Equal(t, types.KindFile, tt.TreeKind(f))
	assert.Equal(t, idFor("d/f"), tt.TreeFileID(f))

	parent, err := tt.FinalParent(f)
	require.NoError(t, err)
	assert.Equal(t, tt.TransIDTreePath("d"), parent)
	parent, err = tt.FinalParent(root)
	require.NoError(t, err)
	assert.Equal(t, RootParent, parent)

	ids := []TransID{"new-10", "new-2", "new-1"}
	sortTransIDs(ids)
	assert.Equal(t, []TransID{"new-1", "new-2", "new-10"}, ids)
}

func TestStagingErrors(t *testing.T) {
	wt := newWorkingTree(t)
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	f, err := tt.NewFile("f", tt.Root(), []byte("x"), "f-id")
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
		code errors.ErrorCode
	}{
		{name: "move root", run: func() error { return tt.AdjustPath(tt.Root(), "x", f) }, code: errors.ErrCantMoveRoot},
		{name: "no parent", run: func() error { return tt.AdjustPath(f, "x", "") }, code: errors.ErrInvalidInput},
		{name: "version twice", run: func() error { return tt.VersionFile(f, "other-id") }, code: errors.ErrDuplicateKey},
		{name: "id in use", run: func() error {
			g := createPath(t, tt, "g", tt.Root())
			return tt.VersionFile(g, "f-id")
		}, code: errors.ErrDuplicateKey},
		{name: "empty id", run: func() error { return tt.VersionFile(createPath(t, tt, "h", tt.Root()), "") }, code: errors.ErrInvalidInput},
		{name: "content twice", run: func() error { return tt.CreateFile(f, []byte("y")) }, code: errors.ErrDuplicateKey},
		{name: "executability twice", run: func() error {
			if err := tt.SetExecutability(f, true); err != nil {
				return err
			}
			return tt.SetExecutability(f, false)
		}, code: errors.ErrDuplicateKey},
		{name: "cancel unversioned", run: func() error { return tt.CancelVersioning(tt.Root()) }, code: errors.ErrInvalidInput},
		{name: "cancel nothing", run: func() error { return tt.CancelCreation(tt.Root()) }, code: errors.ErrInvalidInput},
		{name: "no final name", run: func() error {
			unknown, _ := tt.TransIDFileID("ghost-id")
			_, err := tt.FinalName(unknown)
			return err
		}, code: errors.ErrNoFinalPath},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			require.Error(t, err)
			assert.Equal(t, tc.code, errors.GetErrorCode(err))
		})
	}
}

func TestDeadTransformRefusesStaging(t *testing.T) {
	states := []struct {
		name string
		end  func(t *testing.T, tt *TreeTransform)
	}{
		{name: "finalized", end: func(t *testing.T, tt *TreeTransform) {
			require.NoError(t, tt.Finalize())
		}},
		{name: "applied", end: func(t *testing.T, tt *TreeTransform) {
			_, err := tt.Apply(ApplyOptions{})
			require.NoError(t, err)
		}},
	}
	ops := []struct {
		name string
		run  func(tt *TreeTransform, f TransID) error
	}{
		{name: "create path", run: func(tt *TreeTransform, f TransID) error {
			_, err := tt.CreatePath("x", tt.Root())
			return err
		}},
		{name: "version file", run: func(tt *TreeTransform, f TransID) error { return tt.VersionFile(f, "other-id") }},
		{name: "cancel versioning", run: func(tt *TreeTransform, f TransID) error { return tt.CancelVersioning(f) }},
		{name: "adjust path", run: func(tt *TreeTransform, f TransID) error { return tt.AdjustPath(f, "g", tt.Root()) }},
		{name: "adjust root path", run: func(tt *TreeTransform, f TransID) error { return tt.AdjustRootPath("old", tt.Root()) }},
		{name: "fixup new roots", run: func(tt *TreeTransform, f TransID) error { return tt.FixupNewRoots() }},
		{name: "delete contents", run: func(tt *TreeTransform, f TransID) error { return tt.DeleteContents(f) }},
		{name: "cancel deletion", run: func(tt *TreeTransform, f TransID) error { return tt.CancelDeletion(f) }},
		{name: "unversion", run: func(tt *TreeTransform, f TransID) error { return tt.UnversionFile(f) }},
		{name: "delete versioned", run: func(tt *TreeTransform, f TransID) error { return tt.DeleteVersioned(f) }},
		{name: "set executability", run: func(tt *TreeTransform, f TransID) error { return tt.SetExecutability(f, true) }},
		{name: "clear executability", run: func(tt *TreeTransform, f TransID) error { return tt.ClearExecutability(f) }},
		{name: "create file", run: func(tt *TreeTransform, f TransID) error { return tt.CreateFile(f, []byte("y")) }},
		{name: "create directory", run: func(tt *TreeTransform, f TransID) error { return tt.CreateDirectory(f) }},
		{name: "create symlink", run: func(tt *TreeTransform, f TransID) error { return tt.CreateSymlink(f, "target") }},
		{name: "cancel creation", run: func(tt *TreeTransform, f TransID) error { return tt.CancelCreation(f) }},
		{name: "new file", run: func(tt *TreeTransform, f TransID) error {
			_, err := tt.NewFile("y", tt.Root(), []byte("y"), "y-id")
			return err
		}},
		{name: "find conflicts", run: func(tt *TreeTransform, f TransID) error {
			_, err := tt.FindConflicts()
			return err
		}},
		{name: "serialize", run: func(tt *TreeTransform, f TransID) error { return tt.Serialize(&bytes.Buffer{}) }},
		{name: "deserialize", run: func(tt *TreeTransform, f TransID) error { return tt.Deserialize(&bytes.Buffer{}) }},
	}
	for _, st := range states {
		for _, op := range ops {
			t.Run(st.name+"/"+op.name, func(t *testing.T) {
				wt := newWorkingTree(t)
				tt, err := New(wt, testOptions(true))
				require.NoError(t, err)
				f, err := tt.NewFile("f", tt.Root(), []byte("x"), "f-id")
				require.NoError(t, err)
				st.end(t, tt)
				generation := tt.generation

				err = op.run(tt, f)
				require.Error(t, err)
				assert.True(t, errors.IsErrorCode(err, errors.ErrReusingTransform))
				assert.Equal(t, generation, tt.generation)
			})
		}
	}
}

func TestDeleteContentsOfMissingPath(t *testing.T) {
	wt := newWorkingTree(t)
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	missing := tt.TransIDTreePath("missing")
	tt.DeleteContents(missing)
	assert.False(t, tt.removedContents.has(missing))

	require.NoError(t, os.WriteFile(wt.Abspath("present"), []byte("x"), 0644))
	present := tt.TransIDTreePath("present")
	tt.DeleteContents(present)
	assert.True(t, tt.removedContents.has(present))
	assert.Equal(t, types.KindNone, tt.FinalKind(present))
	tt.CancelDeletion(present)
	assert.Equal(t, types.KindFile, tt.FinalKind(present))
}

type limboSnapshot struct {
	contents    map[TransID]types.Kind
	files       map[TransID]string
	children    map[TransID][]TransID
	names       map[TransID]map[string]TransID
	needsRename []TransID
	disk        []string
}

func snapshotLimbo(t *testing.T, tt *TreeTransform) limboSnapshot {
	s := limboSnapshot{
		contents: map[TransID]types.Kind{},
		files:    map[TransID]string{},
		children: map[TransID][]TransID{},
		names:    map[TransID]map[string]TransID{},
		disk:     diskListing(t, tt.limbo.dir),
	}
	for k, v := range tt.newContents {
		s.contents[k] = v
	}
	for k, v := range tt.limbo.files {
		s.files[k] = v
	}
	for k, v := range tt.limbo.children {
		if len(v) > 0 {
			s.children[k] = v.sorted()
		}
	}
	for k, v := range tt.limbo.childrenNames {
		if len(v) == 0 {
			continue
		}
		s.names[k] = map[string]TransID{}
		for name, id := range v {
			s.names[k][name] = id
		}
	}
	s.needsRename = tt.limbo.needsRename.sorted()
	return s
}

func TestCancelCreationRestoresState(t *testing.T) {
	tests := []struct {
		name   string
		direct bool
		kind   types.Kind
	}{
		{name: "file under staged dir", direct: true, kind: types.KindFile},
		{name: "directory under staged dir", direct: true, kind: types.KindDirectory},
		{name: "symlink without direct paths", direct: false, kind: types.KindSymlink},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wt := newWorkingTree(t)
			tt, err := New(wt, testOptions(tc.direct))
			require.NoError(t, err)
			defer func() { _ = tt.Finalize() }()

			d, err := tt.NewDirectory("d", tt.Root(), "")
			require.NoError(t, err)
			_, err = tt.NewFile("first", d, []byte("1"), "")
			require.NoError(t, err)

			x := createPath(t, tt, "x", d)
			before := snapshotLimbo(t, tt)

			switch tc.kind {
			case types.KindFile:
				require.NoError(t, tt.CreateFile(x, []byte("x")))
			case types.KindDirectory:
				require.NoError(t, tt.CreateDirectory(x))
			case types.KindSymlink:
				require.NoError(t, tt.CreateSymlink(x, "first"))
			}
			assert.Equal(t, tc.kind, tt.FinalKind(x))
			require.NoError(t, tt.CancelCreation(x))

			assert.Equal(t, before, snapshotLimbo(t, tt))
			assert.Equal(t, types.KindNone, tt.FinalKind(x))
		})
	}
}

func TestCancelDirectoryRehousesChildren(t *testing.T) {
	wt := newWorkingTree(t)
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	d, err := tt.NewDirectory("d", tt.Root(), "")
	require.NoError(t, err)
	sub, err := tt.NewDirectory("sub", d, "")
	require.NoError(t, err)
	f, err := tt.NewFile("f", sub, []byte("deep"), "")
	require.NoError(t, err)

	dirPath := tt.limboName(d)
	assert.Equal(t, filepath.Join(dirPath, "sub", "f"), tt.limboName(f))

	require.NoError(t, tt.CancelCreation(d))
	assert.NoDirExists(t, dirPath)
	assert.Equal(t, filepath.Join(tt.limbo.dir, string(sub)), tt.limboName(sub))
	assert.Equal(t, filepath.Join(tt.limbo.dir, string(sub), "f"), tt.limboName(f))
	data, err := os.ReadFile(tt.limboName(f))
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
	assert.True(t, tt.limbo.needsRename.has(sub))
}

func TestAdjustPathLeavesDirectPath(t *testing.T) {
	wt := newWorkingTree(t)
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	d, err := tt.NewDirectory("d", tt.Root(), "")
	require.NoError(t, err)
	f, err := tt.NewFile("f", d, []byte("x"), "")
	require.NoError(t, err)
	assert.False(t, tt.limbo.needsRename.has(f))

	require.NoError(t, tt.AdjustPath(f, "g", tt.Root()))
	assert.True(t, tt.limbo.needsRename.has(f))
	assert.Equal(t, filepath.Join(tt.limbo.dir, string(f)), tt.limboName(f))
	assert.NotContains(t, tt.limbo.childrenNames[d], "f")
	data, err := os.ReadFile(tt.limboName(f))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	// A sibling may now take the freed name directly.
	h, err := tt.NewFile("f", d, []byte("y"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tt.limboName(d), "f"), tt.limboName(h))
}

func TestDirectPathNameClash(t *testing.T) {
	wt := newWorkingTree(t)
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()
	tt.caseSensitive = false

	d, err := tt.NewDirectory("d", tt.Root(), "")
	require.NoError(t, err)
	first, err := tt.NewFile("Name", d, []byte("1"), "")
	require.NoError(t, err)
	second, err := tt.NewFile("name", d, []byte("2"), "")
	require.NoError(t, err)

	assert.False(t, tt.limbo.needsRename.has(first))
	assert.True(t, tt.limbo.needsRename.has(second))
}

func TestFinalPathsAndNewPaths(t *testing.T) {
	wt := newWorkingTree(t)
	seed(t, wt, "old/", "old/f=x")
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	d, err := tt.NewDirectory("d", tt.Root(), "d-id")
	require.NoError(t, err)
	old := tt.TransIDTreePath("old")
	require.NoError(t, tt.AdjustPath(old, "moved", d))
	f := tt.TransIDTreePath("old/f")

	p, err := tt.FinalPath(f)
	require.NoError(t, err)
	assert.Equal(t, "d/moved/f", p)
	p, err = tt.FinalPath(tt.Root())
	require.NoError(t, err)
	assert.Equal(t, "", p)

	paths, err := tt.NewPaths(false)
	require.NoError(t, err)
	assert.Equal(t, []PathTransID{{Path: "d", TransID: d}, {Path: "d/moved", TransID: old}}, paths)

	fsPaths, err := tt.NewPaths(true)
	require.NoError(t, err)
	assert.Equal(t, []PathTransID{{Path: "d", TransID: d}}, fsPaths)

	byParent := tt.ByParent()
	assert.Contains(t, byParent[d], old)
	assert.Contains(t, byParent[tt.Root()], d)

	require.NoError(t, tt.AdjustPath(d, "d", f))
	_, err = tt.FinalPath(f)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNoFinalPath))
}

func TestGenFileID(t *testing.T) {
	a := GenFileID("name")
	b := GenFileID("name")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^name-[0-9a-f-]{36}$`, string(a))
	assert.Regexp(t, `^root-`, string(GenFileID("")))
}
