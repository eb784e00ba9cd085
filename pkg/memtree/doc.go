// Package memtree provides read-only trees held entirely in memory. They
// snapshot another tree's state or are assembled directly with a Builder,
// and serve as the unrelated side of tree comparisons.
package memtree
