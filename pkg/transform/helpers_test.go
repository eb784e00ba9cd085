package transform

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/arthur-debert/treetx/pkg/config"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/arthur-debert/treetx/pkg/workingtree"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Tree.LockTimeout = 50 * time.Millisecond
	return cfg
}

func testOptions(direct bool) Options {
	opts := NewOptions(testConfig())
	opts.DirectPaths = direct
	return opts
}

func newWorkingTree(t *testing.T) *workingtree.WorkingTree {
	t.Helper()
	wt, err := workingtree.Init(t.TempDir(), testConfig())
	require.NoError(t, err)
	return wt
}

func createPath(t *testing.T, tt Transform, name string, parent TransID) TransID {
	t.Helper()
	id, err := tt.CreatePath(name, parent)
	require.NoError(t, err)
	return id
}

// idFor derives the file id seeded for p.
func idFor(p string) types.FileID {
	return types.FileID(strings.ReplaceAll(p, "/", "-") + "-id")
}

// seed versions the given entries through a transform of its own. A trailing
// slash makes a directory, "path=text" a file holding text.
func seed(t *testing.T, wt *workingtree.WorkingTree, specs ...string) {
	t.Helper()
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	created := map[string]TransID{"": tt.Root()}
	for _, s := range specs {
		p, content, isFile := strings.Cut(s, "=")
		p = strings.TrimSuffix(p, "/")
		parent, ok := created[parentPath(p)]
		require.True(t, ok, "parent of %s must be seeded first", p)
		name := filepath.Base(p)
		if isFile {
			created[p], err = tt.NewFile(name, parent, []byte(content), idFor(p))
		} else {
			created[p], err = tt.NewDirectory(name, parent, idFor(p))
		}
		require.NoError(t, err)
	}
	_, err = tt.Apply(ApplyOptions{})
	require.NoError(t, err)
}

func readTreeFile(t *testing.T, wt *workingtree.WorkingTree, p string) string {
	t.Helper()
	data, err := os.ReadFile(wt.Abspath(p))
	require.NoError(t, err)
	return string(data)
}

// diskListing lists every path below dir, relative to it.
func diskListing(t *testing.T, dir string) []string {
	t.Helper()
	var paths []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p != dir {
			rel, _ := filepath.Rel(dir, p)
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(paths)
	return paths
}

func conflictTypes(conflicts []Conflict) []ConflictType {
	result := make([]ConflictType, len(conflicts))
	for i, c := range conflicts {
		result[i] = c.Type
	}
	return result
}
