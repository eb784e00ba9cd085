//go:build !windows

package transform

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// currentUmask reads the process umask. The umask can only be read by
// setting it, so it is restored straight away.
func currentUmask() fs.FileMode {
	mask := unix.Umask(0)
	unix.Umask(mask)
	return fs.FileMode(mask)
}
