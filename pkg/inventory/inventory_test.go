package inventory

import (
	"testing"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, parent, name string, kind types.Kind) *types.InventoryEntry {
	return &types.InventoryEntry{
		FileID:   types.FileID(id),
		ParentID: types.FileID(parent),
		Name:     name,
		Kind:     kind,
	}
}

func add(id, parent, name, p string, kind types.Kind) types.DeltaEntry {
	return types.DeltaEntry{NewPath: types.PathPtr(p), FileID: types.FileID(id), Entry: entry(id, parent, name, kind)}
}

func sampleInventory(t *testing.T) *Inventory {
	t.Helper()
	inv := New("root")
	require.NoError(t, inv.Apply(types.Delta{
		add("dir", "root", "dir", "dir", types.KindDirectory),
		add("file", "dir", "file.txt", "dir/file.txt", types.KindFile),
		add("link", "root", "link", "link", types.KindSymlink),
	}))
	return inv
}

func TestInventoryPaths(t *testing.T) {
	inv := sampleInventory(t)

	p, ok := inv.Path("file")
	require.True(t, ok)
	assert.Equal(t, "dir/file.txt", p)

	id, ok := inv.PathToID("dir/file.txt")
	require.True(t, ok)
	assert.Equal(t, types.FileID("file"), id)

	id, ok = inv.PathToID("")
	require.True(t, ok)
	assert.Equal(t, types.FileID("root"), id)

	_, ok = inv.PathToID("dir/missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"dir", "link"}, inv.ChildNames("root"))
	assert.Equal(t, 4, inv.Len())
}

func TestInventoryEntriesByDir(t *testing.T) {
	inv := sampleInventory(t)
	var paths []string
	for _, e := range inv.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"", "dir", "link", "dir/file.txt"}, paths)
}

func TestInventoryApplyRenameAndRemove(t *testing.T) {
	inv := sampleInventory(t)
	err := inv.Apply(types.Delta{
		{OldPath: types.PathPtr("dir/file.txt"), NewPath: types.PathPtr("moved.txt"), FileID: "file", Entry: entry("file", "root", "moved.txt", types.KindFile)},
		{OldPath: types.PathPtr("link"), FileID: "link"},
	})
	require.NoError(t, err)

	p, ok := inv.Path("file")
	require.True(t, ok)
	assert.Equal(t, "moved.txt", p)
	assert.False(t, inv.Has("link"))
	assert.Empty(t, inv.ChildNames("dir"))
}

func TestInventoryApplySwapRoot(t *testing.T) {
	inv := sampleInventory(t)
	err := inv.Apply(types.Delta{
		{OldPath: types.PathPtr(""), NewPath: types.PathPtr("old-root"), FileID: "root", Entry: entry("root", "new-root", "old-root", types.KindDirectory)},
		{NewPath: types.PathPtr(""), FileID: "new-root", Entry: entry("new-root", "", "", types.KindDirectory)},
		{OldPath: types.PathPtr("dir"), NewPath: types.PathPtr("dir"), FileID: "dir", Entry: entry("dir", "new-root", "dir", types.KindDirectory)},
		{OldPath: types.PathPtr("link"), NewPath: types.PathPtr("link"), FileID: "link", Entry: entry("link", "new-root", "link", types.KindSymlink)},
	})
	require.NoError(t, err)
	assert.Equal(t, types.FileID("new-root"), inv.RootID())
	p, _ := inv.Path("file")
	assert.Equal(t, "dir/file.txt", p)
}

func TestInventoryApplyValidation(t *testing.T) {
	tests := []struct {
		name  string
		delta types.Delta
	}{
		{
			name:  "duplicate name",
			delta: types.Delta{add("other", "root", "dir", "dir", types.KindFile)},
		},
		{
			name:  "duplicate id",
			delta: types.Delta{add("file", "root", "again", "again", types.KindFile)},
		},
		{
			name:  "missing parent",
			delta: types.Delta{add("orphan", "ghost", "x", "ghost/x", types.KindFile)},
		},
		{
			name:  "parent not a directory",
			delta: types.Delta{add("child", "link", "x", "link/x", types.KindFile)},
		},
		{
			name:  "removing a directory with children",
			delta: types.Delta{{OldPath: types.PathPtr("dir"), FileID: "dir"}},
		},
		{
			name:  "wrong old path",
			delta: types.Delta{{OldPath: types.PathPtr("elsewhere"), FileID: "link"}},
		},
		{
			name:  "new path mismatch",
			delta: types.Delta{add("new", "dir", "x", "x", types.KindFile)},
		},
		{
			name: "id twice in delta",
			delta: types.Delta{
				add("new", "root", "x", "x", types.KindFile),
				add("new", "root", "y", "y", types.KindFile),
			},
		},
		{
			name:  "second root",
			delta: types.Delta{add("root2", "", "", "", types.KindDirectory)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := sampleInventory(t)
			before := inv.Entries()
			err := inv.Apply(tt.delta)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrInventory), "got %v", err)
			assert.Equal(t, before, inv.Entries(), "failed apply must not change the inventory")
		})
	}
}

func TestFromEntriesRejectsCycles(t *testing.T) {
	_, err := FromEntries([]types.InventoryEntry{
		*entry("root", "", "", types.KindDirectory),
		*entry("a", "b", "a", types.KindDirectory),
		*entry("b", "a", "b", types.KindDirectory),
	})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInventory))
}
