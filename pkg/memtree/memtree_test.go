package memtree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/arthur-debert/treetx/pkg/workingtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	tree, err := NewBuilder("root").
		Dir("a", "a-id").
		File("a/b.txt", "b-id", []byte("hi")).
		ExecFile("run", "run-id", []byte("#!")).
		Symlink("l", "l-id", "a/b.txt").
		File("stray", "", []byte("unversioned")).
		Build()
	require.NoError(t, err)

	id, ok := tree.PathToID("a/b.txt")
	require.True(t, ok)
	assert.Equal(t, types.FileID("b-id"), id)

	k, err := tree.Kind("l")
	require.NoError(t, err)
	assert.Equal(t, types.KindSymlink, k)
	target, err := tree.SymlinkTarget("l")
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", target)

	data, err := tree.ReadFile("a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	x, _ := tree.IsExecutable("run")
	assert.True(t, x)
	x, _ = tree.IsExecutable("a/b.txt")
	assert.False(t, x)
	x, _ = tree.IsExecutable("l")
	assert.False(t, x)

	_, err = tree.ReadFile("l")
	assert.Error(t, err)
	_, err = tree.SymlinkTarget("a/b.txt")
	assert.Error(t, err)

	assert.False(t, tree.IsVersioned("stray"))
	children, err := tree.Children("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "l", "run", "stray"}, children)

	k, err = tree.Kind("missing")
	require.NoError(t, err)
	assert.Equal(t, types.KindNone, k)
}

func TestBuilderRejectsUnversionedParent(t *testing.T) {
	_, err := NewBuilder("root").Dir("d", "").File("d/f", "f-id", nil).Build()
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	wt, err := workingtree.Init(dir, nil)
	require.NoError(t, err)
	rootID, _ := wt.PathToID("")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("data"), 0644))

	require.NoError(t, wt.LockWrite())
	require.NoError(t, wt.ApplyDelta(types.Delta{{
		NewPath: types.PathPtr("f"),
		FileID:  "f-id",
		Entry:   &types.InventoryEntry{FileID: "f-id", ParentID: rootID, Name: "f", Kind: types.KindFile},
	}}))
	require.NoError(t, wt.Unlock())

	snap, err := Snapshot(wt)
	require.NoError(t, err)
	data, err := snap.ReadFile("f")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	// later disk changes do not leak into the snapshot
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("changed"), 0644))
	data, err = snap.ReadFile("f")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
