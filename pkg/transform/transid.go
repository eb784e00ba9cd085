package transform

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// TransID names one entry participating in a transform: something that
// exists in the tree, will exist after apply, or will cease to exist.
// TransIDs are only meaningful inside the transform that issued them.
type TransID string

// RootParent is the final parent of the tree root.
const RootParent TransID = "root-parent"

const transIDPrefix = "new-"

func (t TransID) number() int {
	n, err := strconv.Atoi(strings.TrimPrefix(string(t), transIDPrefix))
	if err != nil {
		return -1
	}
	return n
}

type idSet map[TransID]struct{}

func (s idSet) add(t TransID)    { s[t] = struct{}{} }
func (s idSet) remove(t TransID) { delete(s, t) }

func (s idSet) has(t TransID) bool {
	_, ok := s[t]
	return ok
}

func (s idSet) sorted() []TransID {
	ids := make([]TransID, 0, len(s))
	for t := range s {
		ids = append(ids, t)
	}
	sortTransIDs(ids)
	return ids
}

// sortTransIDs orders ids by issue number, so earlier trans ids come first.
func sortTransIDs(ids []TransID) {
	sort.Slice(ids, func(i, j int) bool {
		ni, nj := ids[i].number(), ids[j].number()
		if ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
}

func uniqueAdd[V any](m map[TransID]V, t TransID, v V) error {
	if _, ok := m[t]; ok {
		return errors.Newf(errors.ErrDuplicateKey, "%s is already staged", t).
			WithDetail("trans_id", string(t))
	}
	m[t] = v
	return nil
}

// canonicalPath normalizes a tree-relative path. The root is "".
func canonicalPath(p string) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

func parentPath(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func (c *core) assignID() TransID {
	t := TransID(transIDPrefix + strconv.Itoa(c.idNumber))
	c.idNumber++
	return t
}

// TransIDTreePath returns the trans id for a tree path, registering the path on
// first use.
func (c *core) TransIDTreePath(p string) TransID {
	p = canonicalPath(p)
	if t, ok := c.treePathIDs[p]; ok {
		return t
	}
	t := c.assignID()
	c.treePathIDs[p] = t
	c.treeIDPaths[t] = p
	return t
}

// TransIDFileID returns the trans id for a file id. Ids the tree does not
// know (or has staged for removal) get a fresh trans id that is remembered.
func (c *core) TransIDFileID(id types.FileID) (TransID, error) {
	if id == "" {
		return "", errors.New(errors.ErrInvalidInput, "empty file id")
	}
	if t, ok := c.rNewID[id]; ok {
		return t, nil
	}
	if p, ok := c.tree.IDToPath(id); ok {
		return c.TransIDTreePath(p), nil
	}
	if t, ok := c.nonPresentIDs[id]; ok {
		return t, nil
	}
	t := c.assignID()
	c.nonPresentIDs[id] = t
	return t, nil
}

// TreePath returns the current tree path of t, if t denotes a tree entry.
func (c *core) TreePath(t TransID) (string, bool) {
	p, ok := c.treeIDPaths[t]
	return p, ok
}

func (c *core) treeParent(t TransID) (TransID, bool) {
	p, ok := c.treeIDPaths[t]
	if !ok {
		return "", false
	}
	if p == "" {
		return RootParent, true
	}
	return c.TransIDTreePath(parentPath(p)), true
}
