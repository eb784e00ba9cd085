// Package filesystem holds the types.FS implementations treetx runs on: the
// real OS filesystem for working trees, and an afero adapter used for
// in-memory trees and tests.
package filesystem
