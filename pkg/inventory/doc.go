// Package inventory holds the versioning metadata of a tree and persists it.
//
// An Inventory maps file ids to entries (name, parent, kind, executable bit)
// and changes only through validated deltas. A Store keeps an inventory and
// the cache of observed file hashes in a bbolt file; a writable Store is the
// tree's write lock.
package inventory
