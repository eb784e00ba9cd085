package transform

import (
	"testing"

	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/arthur-debert/treetx/pkg/workingtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConflicts(t *testing.T) {
	tests := []struct {
		name  string
		seed  []string
		stage func(t *testing.T, tt *TreeTransform) []TransID
		want  ConflictType
		// only means the conflict must be the sole one found.
		only bool
	}{
		{
			name: "duplicate",
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				first, err := tt.NewFile("dup", tt.Root(), []byte("1"), "")
				require.NoError(t, err)
				second, err := tt.NewDirectory("dup", tt.Root(), "")
				require.NoError(t, err)
				return []TransID{first, second}
			},
			want: ConflictDuplicate,
			only: true,
		},
		{
			name: "parent loop",
			seed: []string{"a/", "a/b/"},
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				a := tt.TransIDTreePath("a")
				require.NoError(t, tt.AdjustPath(a, "a", tt.TransIDTreePath("a/b")))
				return []TransID{a}
			},
			want: ConflictParentLoop,
		},
		{
			name: "unversioned parent",
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				d, err := tt.NewDirectory("d", tt.Root(), "")
				require.NoError(t, err)
				_, err = tt.NewFile("f", d, []byte("x"), "f-id")
				require.NoError(t, err)
				return []TransID{d}
			},
			want: ConflictUnversionedParent,
			only: true,
		},
		{
			name: "missing parent from deletion",
			seed: []string{"d/", "d/f=x"},
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				d := tt.TransIDTreePath("d")
				tt.DeleteVersioned(d)
				return []TransID{d}
			},
			want: ConflictMissingParent,
		},
		{
			name: "missing parent never created",
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				d := createPath(t, tt, "d", tt.Root())
				_, err := tt.NewFile("f", d, []byte("x"), "")
				require.NoError(t, err)
				return []TransID{d}
			},
			want: ConflictMissingParent,
			only: true,
		},
		{
			name: "non-directory parent",
			seed: []string{"f=x"},
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				f := tt.TransIDTreePath("f")
				_, err := tt.NewFile("child", f, []byte("y"), "")
				require.NoError(t, err)
				return []TransID{f}
			},
			want: ConflictNonDirectoryParent,
			only: true,
		},
		{
			name: "versioning no contents",
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				ghost := createPath(t, tt, "ghost", tt.Root())
				require.NoError(t, tt.VersionFile(ghost, "ghost-id"))
				return []TransID{ghost}
			},
			want: ConflictVersioningNoContents,
			only: true,
		},
		{
			name: "unversioned executability",
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				s, err := tt.NewFile("s", tt.Root(), []byte("x"), "", WithExecutable(true))
				require.NoError(t, err)
				return []TransID{s}
			},
			want: ConflictUnversionedExecutability,
			only: true,
		},
		{
			name: "non-file executability",
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				d, err := tt.NewDirectory("d", tt.Root(), "d-id")
				require.NoError(t, err)
				require.NoError(t, tt.SetExecutability(d, true))
				return []TransID{d}
			},
			want: ConflictNonFileExecutability,
			only: true,
		},
		{
			name: "overwrite",
			seed: []string{"f=x"},
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				f := tt.TransIDTreePath("f")
				require.NoError(t, tt.CreateFile(f, []byte("y")))
				return []TransID{f}
			},
			want: ConflictOverwrite,
			only: true,
		},
		{
			name: "duplicate id",
			seed: []string{"f=x"},
			stage: func(t *testing.T, tt *TreeTransform) []TransID {
				g, err := tt.NewFile("g", tt.Root(), []byte("y"), idFor("f"))
				require.NoError(t, err)
				return []TransID{tt.TransIDTreePath("f"), g}
			},
			want: ConflictDuplicateID,
			only: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wt := newWorkingTree(t)
			seed(t, wt, tc.seed...)
			tt, err := New(wt, testOptions(true))
			require.NoError(t, err)
			defer func() { _ = tt.Finalize() }()

			ids := tc.stage(t, tt)
			conflicts, err := tt.FindConflicts()
			require.NoError(t, err)
			if tc.only {
				require.Len(t, conflicts, 1, "%v", conflicts)
			}
			found := false
			for _, c := range conflicts {
				if c.Type == tc.want {
					found = true
					assert.Equal(t, ids, c.IDs)
				}
			}
			assert.True(t, found, "expected %q in %v", tc.want, conflictTypes(conflicts))
		})
	}
}

func TestFindConflictsClean(t *testing.T) {
	wt := newWorkingTree(t)
	seed(t, wt, "d/", "d/f=x")
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	d := tt.TransIDTreePath("d")
	f := tt.TransIDTreePath("d/f")
	tt.DeleteVersioned(f)
	tt.DeleteVersioned(d)
	_, err = tt.NewFile("d", tt.Root(), []byte("now a file"), "new-d-id")
	require.NoError(t, err)

	conflicts, err := tt.FindConflicts()
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestReversioningWithOwnIDIsClean(t *testing.T) {
	wt := newWorkingTree(t)
	seed(t, wt, "f=x")
	tt, err := New(wt, testOptions(true))
	require.NoError(t, err)
	defer func() { _ = tt.Finalize() }()

	f := tt.TransIDTreePath("f")
	require.NoError(t, tt.VersionFile(f, tt.TreeFileID(f)))

	conflicts, err := tt.FindConflicts()
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	resolved, err := ResolveConflicts(tt)
	require.NoError(t, err)
	assert.Empty(t, resolved.Applied)
	assert.Equal(t, idFor("f"), tt.FinalFileID(f))
}

func TestFindConflictsCaseInsensitive(t *testing.T) {
	wt, err := workingtree.Init(t.TempDir(), testConfig())
	require.NoError(t, err)

	tests := []struct {
		caseSensitive bool
		want          int
	}{
		{caseSensitive: true, want: 0},
		{caseSensitive: false, want: 1},
	}
	for _, tc := range tests {
		tt, err := New(wt, testOptions(true))
		require.NoError(t, err)
		tt.caseSensitive = tc.caseSensitive

		_, err = tt.NewFile("README", tt.Root(), []byte("1"), "")
		require.NoError(t, err)
		_, err = tt.NewFile("readme", tt.Root(), []byte("2"), "")
		require.NoError(t, err)

		conflicts, err := tt.FindConflicts()
		require.NoError(t, err)
		assert.Len(t, conflicts, tc.want, "case sensitive: %v", tc.caseSensitive)
		require.NoError(t, tt.Finalize())
	}
}

func TestConflictString(t *testing.T) {
	c := Conflict{Type: ConflictDuplicate, IDs: []TransID{"new-1", "new-2"}, Name: "dup"}
	assert.Equal(t, "duplicate: new-1, new-2 (dup)", c.String())

	c = Conflict{Type: ConflictVersioningBadKind, IDs: []TransID{"new-3"}, Kind: types.KindSpecial}
	assert.Equal(t, "versioning bad kind: new-3 [special]", c.String())
}
