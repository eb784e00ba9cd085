//go:build windows

package transform

import "io/fs"

func currentUmask() fs.FileMode {
	return 0o022
}
