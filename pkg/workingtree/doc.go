// Package workingtree is the on-disk, versioned tree that transforms apply
// to: a directory on the real filesystem plus its control directory (.treetx
// by default), which holds the inventory store and transform scratch space.
package workingtree
