// Package treediff compares the versioned state of two arbitrary trees.
package treediff
