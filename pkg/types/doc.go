// Package types holds the tree vocabulary shared by every treetx package:
// entry kinds, file ids, inventory records and deltas, the change records
// produced by tree comparisons, and the Tree interfaces the transform engine
// reads from and writes to.
package types
