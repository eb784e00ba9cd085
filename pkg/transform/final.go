package transform

import (
	"path"
	"sort"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// TreeKind returns the kind of content the tree currently holds for t.
func (c *core) TreeKind(t TransID) types.Kind {
	p, ok := c.treeIDPaths[t]
	if !ok {
		return types.KindNone
	}
	kind, err := c.tree.Kind(p)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", p).Msg("treating unreadable path as missing")
		return types.KindNone
	}
	return kind
}

// TreeFileID returns the file id t has in the tree, if any.
func (c *core) TreeFileID(t TransID) types.FileID {
	p, ok := c.treeIDPaths[t]
	if !ok {
		return ""
	}
	id, _ := c.tree.PathToID(p)
	return id
}

// FinalKind returns the kind t will have after apply, or KindNone.
func (c *core) FinalKind(t TransID) types.Kind {
	if kind, ok := c.newContents[t]; ok {
		return kind
	}
	if c.removedContents.has(t) {
		return types.KindNone
	}
	return c.TreeKind(t)
}

// FinalFileID returns the file id t will have after apply, or "".
func (c *core) FinalFileID(t TransID) types.FileID {
	if id, ok := c.newID[t]; ok {
		return id
	}
	if c.removedID.has(t) {
		return ""
	}
	return c.TreeFileID(t)
}

// FinalIsVersioned reports whether t will carry a file id after apply.
func (c *core) FinalIsVersioned(t TransID) bool {
	return c.FinalFileID(t) != ""
}

// InactiveFileID returns the file id t has or had, ignoring staged
// unversioning. Ids allocated for ids absent from the tree are included.
func (c *core) InactiveFileID(t TransID) types.FileID {
	if id := c.TreeFileID(t); id != "" {
		return id
	}
	for id, other := range c.nonPresentIDs {
		if other == t {
			return id
		}
	}
	return ""
}

func (c *core) finalName(t TransID) (string, bool) {
	if name, ok := c.newName[t]; ok {
		return name, true
	}
	if p, ok := c.treeIDPaths[t]; ok {
		if p == "" {
			return "", true
		}
		return path.Base(p), true
	}
	return "", false
}

func (c *core) finalParent(t TransID) (TransID, bool) {
	if parent, ok := c.newParent[t]; ok {
		return parent, true
	}
	return c.treeParent(t)
}

// FinalName returns the name t will have after apply.
func (c *core) FinalName(t TransID) (string, error) {
	name, ok := c.finalName(t)
	if !ok {
		return "", noFinalPath(t)
	}
	return name, nil
}

// FinalParent returns the parent t will have after apply.
func (c *core) FinalParent(t TransID) (TransID, error) {
	parent, ok := c.finalParent(t)
	if !ok {
		return "", noFinalPath(t)
	}
	return parent, nil
}

func noFinalPath(t TransID) error {
	return errors.Newf(errors.ErrNoFinalPath, "%s has no final path", t).
		WithDetail("trans_id", string(t))
}

func (c *core) pathChanged(t TransID) bool {
	_, named := c.newName[t]
	_, parented := c.newParent[t]
	return named || parented
}

// ByParent groups every known trans id under its final parent.
func (c *core) ByParent() map[TransID][]TransID {
	sets := c.byParent()
	result := make(map[TransID][]TransID, len(sets))
	for parent, children := range sets {
		result[parent] = children.sorted()
	}
	return result
}

func (c *core) byParent() map[TransID]idSet {
	result := map[TransID]idSet{}
	add := func(t, parent TransID) {
		if result[parent] == nil {
			result[parent] = idSet{}
		}
		result[parent].add(t)
	}
	for t, parent := range c.newParent {
		add(t, parent)
	}
	for t := range c.treeIDPaths {
		if parent, ok := c.finalParent(t); ok {
			add(t, parent)
		}
	}
	return result
}

// FinalPath returns the tree-relative path t will have after apply.
func (c *core) FinalPath(t TransID) (string, error) {
	return newFinalPaths(c).get(t)
}

// PathTransID pairs a final path with its trans id.
type PathTransID struct {
	Path    string
	TransID TransID
}

// NewPaths lists the final paths of every trans id whose path, content,
// versioning or executability changes, sorted by path. With filesystemOnly,
// only entries that must move or change on disk are listed.
func (c *core) NewPaths(filesystemOnly bool) ([]PathTransID, error) {
	ids := idSet{}
	if filesystemOnly {
		stale := idSet{}
		for t := range c.limbo.needsRename {
			_, named := c.newName[t]
			_, parented := c.newParent[t]
			_, contents := c.newContents[t]
			_, versioned := c.newID[t]
			if !named && !parented && !contents && !versioned {
				stale.add(t)
			}
		}
		for t := range c.limbo.needsRename {
			if !stale.has(t) {
				ids.add(t)
			}
		}
		for t := range c.newExecutability {
			ids.add(t)
		}
	} else {
		for t := range c.newName {
			ids.add(t)
		}
		for t := range c.newParent {
			ids.add(t)
		}
		for t := range c.newContents {
			ids.add(t)
		}
		for t := range c.newID {
			ids.add(t)
		}
		for t := range c.newExecutability {
			ids.add(t)
		}
	}
	fp := newFinalPaths(c)
	result := make([]PathTransID, 0, len(ids))
	for t := range ids {
		p, err := fp.get(t)
		if err != nil {
			return nil, err
		}
		result = append(result, PathTransID{Path: p, TransID: t})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].TransID < result[j].TransID
	})
	return result, nil
}

// finalPaths resolves final paths, memoizing along the parent chain.
type finalPaths struct {
	c     *core
	known map[TransID]string
}

func newFinalPaths(c *core) *finalPaths {
	return &finalPaths{c: c, known: map[TransID]string{}}
}

func (fp *finalPaths) get(t TransID) (string, error) {
	var chain []TransID
	cur := t
	seen := idSet{}
	for {
		if p, ok := fp.known[cur]; ok {
			return fp.unwind(chain, p), nil
		}
		if cur == fp.c.newRoot || cur == RootParent {
			return fp.unwind(chain, ""), nil
		}
		if seen.has(cur) {
			return "", errors.Newf(errors.ErrNoFinalPath, "%s is inside a parent loop", t).
				WithDetail("trans_id", string(t))
		}
		seen.add(cur)
		parent, ok := fp.c.finalParent(cur)
		if !ok {
			return "", noFinalPath(cur)
		}
		if _, ok := fp.c.finalName(cur); !ok {
			return "", noFinalPath(cur)
		}
		chain = append(chain, cur)
		cur = parent
	}
}

func (fp *finalPaths) unwind(chain []TransID, base string) string {
	p := base
	for i := len(chain) - 1; i >= 0; i-- {
		name, _ := fp.c.finalName(chain[i])
		p = joinPath(p, name)
		fp.known[chain[i]] = p
	}
	return p
}
