package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/spf13/afero"
)

// aferoFS adapts an afero.Fs to types.FS. Backends that cannot hold symlinks,
// such as MemMapFs, get them emulated: the link is a small file holding the
// target and a side table remembers which paths are links.
type aferoFS struct {
	fs afero.Fs

	mu    sync.Mutex
	links map[string]bool
}

// NewAferoFS wraps fsys. Renames and removals follow POSIX rules regardless
// of backend: a file replaces a file, a directory only replaces an empty
// directory, and Remove refuses non-empty directories.
func NewAferoFS(fsys afero.Fs) types.FS {
	return &aferoFS{fs: fsys, links: map[string]bool{}}
}

func (a *aferoFS) isLink(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.links[filepath.Clean(name)]
}

// forget drops link records at or below name.
func (a *aferoFS) forget(name string) {
	name = filepath.Clean(name)
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := range a.links {
		if p == name || strings.HasPrefix(p, name+string(filepath.Separator)) {
			delete(a.links, p)
		}
	}
}

// move rewrites link records from oldpath to newpath, descendants included.
func (a *aferoFS) move(oldpath, newpath string) {
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := range a.links {
		switch {
		case p == oldpath:
			delete(a.links, p)
			a.links[newpath] = true
		case strings.HasPrefix(p, oldpath+string(filepath.Separator)):
			delete(a.links, p)
			a.links[newpath+strings.TrimPrefix(p, oldpath)] = true
		}
	}
}

func (a *aferoFS) Stat(name string) (fs.FileInfo, error) {
	return a.fs.Stat(name)
}

func (a *aferoFS) Lstat(name string) (fs.FileInfo, error) {
	if lstater, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		if err != nil || !a.isLink(name) {
			return info, err
		}
		return linkInfo{info}, nil
	}
	info, err := a.fs.Stat(name)
	if err != nil || !a.isLink(name) {
		return info, err
	}
	return linkInfo{info}, nil
}

func (a *aferoFS) ReadFile(name string) ([]byte, error) {
	info, err := a.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return afero.ReadFile(a.fs, name)
}

func (a *aferoFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if err := afero.WriteFile(a.fs, name, data, perm); err != nil {
		return err
	}
	a.forget(name)
	return nil
}

func (a *aferoFS) Mkdir(path string, perm fs.FileMode) error {
	return a.fs.Mkdir(path, perm)
}

func (a *aferoFS) MkdirAll(path string, perm fs.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

func (a *aferoFS) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := afero.ReadDir(a.fs, name)
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		if a.isLink(filepath.Join(name, info.Name())) {
			info = linkInfo{info}
		}
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, nil
}

func (a *aferoFS) Symlink(oldname, newname string) error {
	if linker, ok := a.fs.(afero.Linker); ok {
		return linker.SymlinkIfPossible(oldname, newname)
	}
	if _, err := a.fs.Stat(newname); err == nil {
		return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: fs.ErrExist}
	}
	if err := afero.WriteFile(a.fs, newname, []byte(oldname), 0777); err != nil {
		return err
	}
	a.mu.Lock()
	a.links[filepath.Clean(newname)] = true
	a.mu.Unlock()
	return nil
}

func (a *aferoFS) Readlink(name string) (string, error) {
	if reader, ok := a.fs.(afero.LinkReader); ok {
		return reader.ReadlinkIfPossible(name)
	}
	if !a.isLink(name) {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}
	target, err := afero.ReadFile(a.fs, name)
	if err != nil {
		return "", err
	}
	return string(target), nil
}

func (a *aferoFS) Remove(name string) error {
	if info, err := a.fs.Stat(name); err == nil && info.IsDir() {
		children, err := afero.ReadDir(a.fs, name)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return &fs.PathError{Op: "remove", Path: name, Err: syscall.ENOTEMPTY}
		}
	}
	if err := a.fs.Remove(name); err != nil {
		return err
	}
	a.forget(name)
	return nil
}

func (a *aferoFS) RemoveAll(path string) error {
	if err := a.fs.RemoveAll(path); err != nil {
		return err
	}
	a.forget(path)
	return nil
}

func (a *aferoFS) Rename(oldpath, newpath string) error {
	src, err := a.fs.Stat(oldpath)
	if err != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
	}
	if dst, err := a.fs.Stat(newpath); err == nil {
		switch {
		case dst.IsDir() && !src.IsDir():
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EISDIR}
		case !dst.IsDir() && src.IsDir():
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.ENOTDIR}
		case dst.IsDir():
			names, err := afero.ReadDir(a.fs, newpath)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.ENOTEMPTY}
			}
			if err := a.fs.Remove(newpath); err != nil {
				return err
			}
		}
	}
	if err := a.fs.Rename(oldpath, newpath); err != nil {
		return err
	}
	a.forget(newpath)
	a.move(oldpath, newpath)
	return nil
}

func (a *aferoFS) Chmod(name string, mode fs.FileMode) error {
	return a.fs.Chmod(name, mode)
}

func (a *aferoFS) Chtimes(name string, atime, mtime time.Time) error {
	return a.fs.Chtimes(name, atime, mtime)
}

// linkInfo reports an emulated symlink with the symlink mode bit set.
type linkInfo struct {
	fs.FileInfo
}

func (l linkInfo) Mode() fs.FileMode {
	return fs.ModeSymlink | 0777
}

func (l linkInfo) IsDir() bool { return false }
