package transform

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// limbo is the scratch directory holding staged content until apply moves it
// into the tree. Entries normally live at <dir>/<trans id>; a new entry whose
// parent is a staged directory can instead live at its final name inside the
// parent's limbo directory (a direct path), which saves a rename at apply.
type limbo struct {
	fs            types.FS
	dir           string
	files         map[TransID]string
	possiblyStale map[string]struct{}
	children      map[TransID]idSet
	childrenNames map[TransID]map[string]TransID
	needsRename   idSet
	creationMtime time.Time
	directPaths   bool
}

func newLimbo(fsys types.FS, dir string, directPaths bool) *limbo {
	return &limbo{
		fs:            fsys,
		dir:           dir,
		files:         map[TransID]string{},
		possiblyStale: map[string]struct{}{},
		children:      map[TransID]idSet{},
		childrenNames: map[TransID]map[string]TransID{},
		needsRename:   idSet{},
		directPaths:   directPaths,
	}
}

// createScratchDir creates dir, which must not exist yet. An existing
// directory, even an empty one, belongs to another live transform or to one
// that died.
func createScratchDir(fsys types.FS, dir string, code errors.ErrorCode) error {
	err := fsys.Mkdir(dir, 0755)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, fs.ErrExist) {
		return errors.Newf(code, "%s already exists", dir).WithDetail("path", dir)
	}
	return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dir)
}

// limboName returns the limbo path of t, allocating one if needed.
func (c *core) limboName(t TransID) string {
	if p, ok := c.limbo.files[t]; ok {
		return p
	}
	p := c.generateLimboPath(t)
	c.limbo.files[t] = p
	return p
}

func (c *core) generateLimboPath(t TransID) string {
	l := c.limbo
	parent, hasParent := c.newParent[t]
	name, hasName := c.newName[t]
	direct := false
	if l.directPaths && hasParent && hasName && c.newContents[parent] == types.KindDirectory {
		if _, ok := l.children[parent]; !ok {
			l.children[parent] = idSet{}
			l.childrenNames[parent] = map[string]TransID{}
			direct = true
		} else if c.caseSensitive {
			holder, taken := l.childrenNames[parent][name]
			direct = !taken || holder == t
		} else {
			direct = true
			for other, holder := range l.childrenNames[parent] {
				if holder != t && strings.EqualFold(other, name) {
					direct = false
					break
				}
			}
		}
	}
	if !direct {
		l.needsRename.add(t)
		return filepath.Join(l.dir, string(t))
	}
	l.children[parent].add(t)
	l.childrenNames[parent][name] = t
	return filepath.Join(c.limboName(parent), name)
}

// limboAdjusted moves t out of a direct path that no longer matches its final
// name or parent.
func (c *core) limboAdjusted(t, previousParent TransID, previousName string) error {
	l := c.limbo
	if _, ok := l.files[t]; !ok || l.needsRename.has(t) {
		return nil
	}
	if err := c.renameInLimbo([]TransID{t}); err != nil {
		return err
	}
	parent := c.newParent[t]
	if previousParent != parent {
		delete(l.children[previousParent], t)
	}
	if previousParent != parent || previousName != c.newName[t] {
		if l.childrenNames[previousParent][previousName] == t {
			delete(l.childrenNames[previousParent], previousName)
		}
	}
	return nil
}

// renameInLimbo gives each of ids a freshly generated limbo path, moving any
// content and rewriting the paths of staged descendants.
func (c *core) renameInLimbo(ids []TransID) error {
	l := c.limbo
	for _, t := range ids {
		oldPath := l.files[t]
		l.possiblyStale[oldPath] = struct{}{}
		delete(l.files, t)
		if _, ok := c.newContents[t]; !ok {
			continue
		}
		newPath := c.limboName(t)
		if newPath != oldPath {
			if err := l.fs.Rename(oldPath, newPath); err != nil {
				return errors.Wrapf(err, errors.ErrRenameFailed, "failed to move %s within limbo", t).
					WithDetail("from", oldPath).WithDetail("to", newPath)
			}
		}
		delete(l.possiblyStale, oldPath)
		for _, d := range l.descendants(t) {
			if p, ok := l.files[d]; ok {
				l.files[d] = newPath + p[len(oldPath):]
			}
		}
	}
	return nil
}

// descendants lists every trans id staged below t through direct paths.
func (l *limbo) descendants(t TransID) []TransID {
	var result []TransID
	seen := idSet{}
	stack := []TransID{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for child := range l.children[cur] {
			if seen.has(child) {
				continue
			}
			seen.add(child)
			result = append(result, child)
			stack = append(stack, child)
		}
	}
	return result
}

// CreateOption adjusts CreateFile.
type CreateOption func(*createOptions)

type createOptions struct {
	modeID     TransID
	hash       string
	executable *bool
}

// WithModeFrom copies permission bits from the tree file of another trans id
// instead of from the file being replaced.
func WithModeFrom(t TransID) CreateOption {
	return func(o *createOptions) { o.modeID = t }
}

// WithKnownHash records the content hash so the tree need not compute it.
func WithKnownHash(hash string) CreateOption {
	return func(o *createOptions) { o.hash = hash }
}

// WithExecutable stages the executable bit along with the content.
func WithExecutable(executable bool) CreateOption {
	return func(o *createOptions) { o.executable = &executable }
}

func (c *core) setMtime(p string) error {
	l := c.limbo
	if l.creationMtime.IsZero() {
		l.creationMtime = time.Now()
	}
	if err := l.fs.Chtimes(p, l.creationMtime, l.creationMtime); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to set times on %s", p)
	}
	return nil
}

// CreateFile stages a regular file with the given content.
func (c *core) CreateFile(t TransID, content []byte, opts ...CreateOption) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	o := createOptions{modeID: t}
	for _, opt := range opts {
		opt(&o)
	}
	if _, ok := c.newContents[t]; ok {
		return errors.Newf(errors.ErrDuplicateKey, "%s already has staged content", t)
	}
	name := c.limboName(t)
	if err := c.limbo.fs.WriteFile(name, content, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "failed to stage %s", t)
	}
	c.newContents[t] = types.KindFile
	c.touch()
	if err := c.setMtime(name); err != nil {
		return err
	}
	if err := c.backend.setMode(o.modeID, t); err != nil {
		return err
	}
	if o.hash != "" {
		info, err := c.limbo.fs.Lstat(name)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "failed to stat %s", name)
		}
		c.observedHashes[t] = types.ObservedHash{Hash: o.hash, Size: info.Size(), ModTime: info.ModTime()}
	}
	if o.executable != nil {
		if err := c.SetExecutability(t, *o.executable); err != nil {
			return err
		}
	}
	c.logger.Trace().Str("trans_id", string(t)).Int("bytes", len(content)).Msg("file staged")
	return nil
}

// CreateDirectory stages a new directory.
func (c *core) CreateDirectory(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if _, ok := c.newContents[t]; ok {
		return errors.Newf(errors.ErrDuplicateKey, "%s already has staged content", t)
	}
	if err := c.limbo.fs.Mkdir(c.limboName(t), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "failed to stage directory %s", t)
	}
	c.newContents[t] = types.KindDirectory
	c.touch()
	c.logger.Trace().Str("trans_id", string(t)).Msg("directory staged")
	return nil
}

// CreateSymlink stages a symlink. On platforms without symlinks nothing is
// written, but the kind is still recorded.
func (c *core) CreateSymlink(t TransID, target string) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if _, ok := c.newContents[t]; ok {
		return errors.Newf(errors.ErrDuplicateKey, "%s already has staged content", t)
	}
	if c.backend.supportsSymlinks() {
		if err := c.limbo.fs.Symlink(target, c.limboName(t)); err != nil {
			return errors.Wrapf(err, errors.ErrSymlinkCreate, "failed to stage symlink %s", t)
		}
	} else {
		p, _ := c.FinalPath(t)
		c.logger.Warn().Str("path", p).Msg("Unable to create symlink on this filesystem")
	}
	c.newContents[t] = types.KindSymlink
	c.touch()
	return nil
}

// CancelCreation discards the staged content of t. Staged children of a
// cancelled directory are moved to their own limbo slots first.
func (c *core) CancelCreation(t TransID) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if _, ok := c.newContents[t]; !ok {
		return errors.Newf(errors.ErrInvalidInput, "%s has no staged content", t)
	}
	l := c.limbo
	delete(c.newContents, t)
	delete(c.observedHashes, t)
	c.touch()
	if children, ok := l.children[t]; ok {
		if err := c.renameInLimbo(children.sorted()); err != nil {
			return err
		}
		delete(l.children, t)
		delete(l.childrenNames, t)
	}
	p := c.limboName(t)
	if err := l.fs.RemoveAll(p); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to remove %s", p)
	}
	delete(l.files, t)
	delete(l.possiblyStale, p)
	l.needsRename.remove(t)
	if parent, ok := c.newParent[t]; ok {
		delete(l.children[parent], t)
		if name, ok := c.newName[t]; ok && l.childrenNames[parent][name] == t {
			delete(l.childrenNames[parent], name)
		}
	}
	return nil
}

// limboPaths lists every path that may need cleaning, deepest first.
func (l *limbo) limboPaths() []string {
	paths := make([]string, 0, len(l.files)+len(l.possiblyStale))
	for _, p := range l.files {
		paths = append(paths, p)
	}
	for p := range l.possiblyStale {
		paths = append(paths, p)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths
}

// clean removes remaining limbo content and then the limbo directory itself.
// A limbo directory that cannot be emptied is reported, never force-removed.
func (l *limbo) clean() error {
	for _, p := range l.limboPaths() {
		if err := l.fs.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, errors.ErrImmortalLimbo, "failed to remove %s", p).WithDetail("path", l.dir)
		}
	}
	if err := l.fs.Remove(l.dir); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, errors.ErrImmortalLimbo, "limbo directory %s could not be removed", l.dir).
			WithDetail("path", l.dir)
	}
	return nil
}
