package treediff

import (
	"testing"

	"github.com/arthur-debert/treetx/pkg/memtree"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	from, err := memtree.NewBuilder("root").
		Dir("dir", "dir-id").
		File("dir/same.txt", "same-id", []byte("same\n")).
		File("edited.txt", "edited-id", []byte("old\n")).
		File("renamed.txt", "renamed-id", []byte("r\n")).
		File("gone.txt", "gone-id", []byte("bye\n")).
		Symlink("link", "link-id", "a").
		Build()
	require.NoError(t, err)

	to, err := memtree.NewBuilder("root").
		Dir("dir", "dir-id").
		File("dir/same.txt", "same-id", []byte("same\n")).
		File("edited.txt", "edited-id", []byte("new\n")).
		File("dir/moved.txt", "renamed-id", []byte("r\n")).
		ExecFile("added.sh", "added-id", []byte("#!/bin/sh\n")).
		Symlink("link", "link-id", "b").
		Build()
	require.NoError(t, err)

	changes, err := Compare(from, to)
	require.NoError(t, err)

	byID := map[types.FileID]types.TreeChange{}
	var order []string
	for _, c := range changes {
		byID[c.FileID] = c
		order = append(order, c.OldPath()+"->"+c.NewPath())
	}
	assert.Equal(t, []string{"->added.sh", "edited.txt->edited.txt", "gone.txt->", "link->link", "renamed.txt->dir/moved.txt"}, order)

	added := byID["added-id"]
	assert.Equal(t, [2]bool{false, true}, added.Versioned)
	assert.Nil(t, added.Path[0])
	assert.True(t, added.ChangedContent)
	assert.Equal(t, [2]bool{false, true}, added.Executable)

	edited := byID["edited-id"]
	assert.True(t, edited.ChangedContent)
	assert.Equal(t, [2]string{"edited.txt", "edited.txt"}, edited.Name)

	renamed := byID["renamed-id"]
	assert.False(t, renamed.ChangedContent)
	assert.Equal(t, [2]types.FileID{"root", "dir-id"}, renamed.ParentID)
	assert.Equal(t, [2]string{"renamed.txt", "moved.txt"}, renamed.Name)

	gone := byID["gone-id"]
	assert.Equal(t, [2]types.Kind{types.KindFile, types.KindNone}, gone.Kind)

	assert.True(t, byID["link-id"].ChangedContent)
	_, listed := byID["same-id"]
	assert.False(t, listed)
}

func TestCompareIdentical(t *testing.T) {
	tree, err := memtree.NewBuilder("root").File("a", "a-id", []byte("x")).Build()
	require.NoError(t, err)
	changes, err := Compare(tree, tree)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
