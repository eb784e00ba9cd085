package transform

import (
	"testing"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/filesystem"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFS(t *testing.T, files map[string]string) types.FS {
	t.Helper()
	fsys := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fsys.MkdirAll("/tree/.treetx/pending-deletion", 0755))
	for p, content := range files {
		require.NoError(t, fsys.MkdirAll(parentPath(p), 0755))
		require.NoError(t, fsys.WriteFile(p, []byte(content), 0644))
	}
	return fsys
}

func assertContent(t *testing.T, fsys types.FS, p, want string) {
	t.Helper()
	data, err := fsys.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func TestFileMoverCommit(t *testing.T) {
	fsys := memFS(t, map[string]string{"/tree/old": "old", "/tree/limbo-new": "new"})
	m := NewFileMover(fsys)

	require.NoError(t, m.PreDelete("/tree/old", "/tree/.treetx/pending-deletion/new-1"))
	require.NoError(t, m.Rename("/tree/limbo-new", "/tree/old"))
	require.NoError(t, m.ApplyDeletions())

	assertContent(t, fsys, "/tree/old", "new")
	_, err := fsys.Lstat("/tree/.treetx/pending-deletion/new-1")
	assert.Error(t, err)

	// Nothing is left to roll back once deletions are applied.
	require.NoError(t, m.Rollback())
	assertContent(t, fsys, "/tree/old", "new")
}

func TestFileMoverRollback(t *testing.T) {
	fsys := memFS(t, map[string]string{"/tree/a": "a", "/tree/b": "b", "/tree/limbo-c": "c"})
	m := NewFileMover(fsys)

	require.NoError(t, m.PreDelete("/tree/a", "/tree/.treetx/pending-deletion/new-1"))
	require.NoError(t, m.Rename("/tree/b", "/tree/moved-b"))
	require.NoError(t, m.Rename("/tree/limbo-c", "/tree/a"))
	require.NoError(t, m.Rollback())

	assertContent(t, fsys, "/tree/a", "a")
	assertContent(t, fsys, "/tree/b", "b")
	assertContent(t, fsys, "/tree/limbo-c", "c")
	_, err := fsys.Lstat("/tree/moved-b")
	assert.Error(t, err)

	// A rolled back mover deletes nothing.
	require.NoError(t, m.ApplyDeletions())
	assertContent(t, fsys, "/tree/a", "a")
}

func TestFileMoverRenameErrors(t *testing.T) {
	fsys := memFS(t, map[string]string{"/tree/src/f": "f", "/tree/dst/g": "g"})
	m := NewFileMover(fsys)

	err := m.Rename("/tree/src", "/tree/dst")
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileExists))
	assert.Equal(t, "/tree/dst", errors.GetErrorDetails(err)["path"])

	err = m.Rename("/tree/missing", "/tree/x")
	assert.True(t, errors.IsErrorCode(err, errors.ErrRenameFailed))

	// Failed renames are not recorded for rollback.
	require.NoError(t, m.Rollback())
	assertContent(t, fsys, "/tree/src/f", "f")
	assertContent(t, fsys, "/tree/dst/g", "g")
}
