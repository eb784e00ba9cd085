package inventory

import (
	"path"
	"sort"
	"strings"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/types"
)

// Inventory is the in-memory versioning metadata of a tree: every versioned
// entry keyed by file id, plus a name index per directory.
type Inventory struct {
	rootID   types.FileID
	byID     map[types.FileID]types.InventoryEntry
	children map[types.FileID]map[string]types.FileID
}

// New returns an inventory holding only a root directory with the given id.
func New(rootID types.FileID) *Inventory {
	inv := empty()
	inv.add(types.InventoryEntry{FileID: rootID, Kind: types.KindDirectory})
	return inv
}

func empty() *Inventory {
	return &Inventory{
		byID:     make(map[types.FileID]types.InventoryEntry),
		children: make(map[types.FileID]map[string]types.FileID),
	}
}

// FromEntries builds an inventory from a flat entry list, validating it.
func FromEntries(entries []types.InventoryEntry) (*Inventory, error) {
	inv := empty()
	for _, e := range entries {
		if _, ok := inv.byID[e.FileID]; ok {
			return nil, errors.Newf(errors.ErrInventory, "duplicate file id %s", e.FileID)
		}
		inv.byID[e.FileID] = e
	}
	for _, e := range entries {
		if err := inv.link(e); err != nil {
			return nil, err
		}
	}
	if err := inv.check(); err != nil {
		return nil, err
	}
	return inv, nil
}

// RootID returns the file id of the root directory, or "" for an empty inventory.
func (inv *Inventory) RootID() types.FileID {
	return inv.rootID
}

// Len returns the number of entries including the root.
func (inv *Inventory) Len() int {
	return len(inv.byID)
}

// Get returns the entry for id.
func (inv *Inventory) Get(id types.FileID) (types.InventoryEntry, bool) {
	e, ok := inv.byID[id]
	return e, ok
}

// Has reports whether id is versioned.
func (inv *Inventory) Has(id types.FileID) bool {
	_, ok := inv.byID[id]
	return ok
}

// ChildID returns the id of the entry called name under parent.
func (inv *Inventory) ChildID(parent types.FileID, name string) (types.FileID, bool) {
	id, ok := inv.children[parent][name]
	return id, ok
}

// ChildNames lists the names under parent in sorted order.
func (inv *Inventory) ChildNames(parent types.FileID) []string {
	names := make([]string, 0, len(inv.children[parent]))
	for name := range inv.children[parent] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IDs lists every file id in sorted order.
func (inv *Inventory) IDs() []types.FileID {
	ids := make([]types.FileID, 0, len(inv.byID))
	for id := range inv.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Path returns the slash separated path of id, "" for the root.
func (inv *Inventory) Path(id types.FileID) (string, bool) {
	var parts []string
	seen := 0
	for {
		e, ok := inv.byID[id]
		if !ok {
			return "", false
		}
		if e.ParentID == "" {
			break
		}
		parts = append(parts, e.Name)
		id = e.ParentID
		if seen++; seen > len(inv.byID) {
			return "", false
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/"), true
}

// PathToID resolves a slash separated path.
func (inv *Inventory) PathToID(p string) (types.FileID, bool) {
	if inv.rootID == "" {
		return "", false
	}
	id := inv.rootID
	if p == "" {
		return id, true
	}
	for _, name := range strings.Split(p, "/") {
		next, ok := inv.children[id][name]
		if !ok {
			return "", false
		}
		id = next
	}
	return id, true
}

// Entries lists all entries in by-directory order: the root, then each
// directory's children sorted by name, directories expanded breadth first.
func (inv *Inventory) Entries() []types.PathEntry {
	if inv.rootID == "" {
		return nil
	}
	result := []types.PathEntry{{Path: "", Entry: inv.byID[inv.rootID]}}
	queue := []types.PathEntry{result[0]}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		for _, name := range inv.ChildNames(dir.Entry.FileID) {
			child := inv.byID[inv.children[dir.Entry.FileID][name]]
			pe := types.PathEntry{Path: path.Join(dir.Path, name), Entry: child}
			result = append(result, pe)
			if child.Kind == types.KindDirectory {
				queue = append(queue, pe)
			}
		}
	}
	return result
}

// Copy returns an independent copy.
func (inv *Inventory) Copy() *Inventory {
	c := empty()
	c.rootID = inv.rootID
	for id, e := range inv.byID {
		c.byID[id] = e
	}
	for parent, names := range inv.children {
		m := make(map[string]types.FileID, len(names))
		for name, id := range names {
			m[name] = id
		}
		c.children[parent] = m
	}
	return c
}

// Apply applies delta in place. The delta is validated as a whole; on error
// the inventory is left unchanged.
func (inv *Inventory) Apply(delta types.Delta) error {
	next := inv.Copy()
	if err := next.apply(delta); err != nil {
		return err
	}
	*inv = *next
	return nil
}

func (inv *Inventory) apply(delta types.Delta) error {
	seen := make(map[types.FileID]bool, len(delta))
	for _, d := range delta {
		if seen[d.FileID] {
			return errors.Newf(errors.ErrInventory, "file id %s appears twice in delta", d.FileID)
		}
		seen[d.FileID] = true
		if d.NewPath == nil && d.OldPath == nil {
			return errors.Newf(errors.ErrInventory, "delta entry for %s has neither old nor new path", d.FileID)
		}
		if (d.NewPath == nil) != (d.Entry == nil) {
			return errors.Newf(errors.ErrInventory, "delta entry for %s must carry an entry exactly when it has a new path", d.FileID)
		}
		if d.Entry != nil && d.Entry.FileID != d.FileID {
			return errors.Newf(errors.ErrInventory, "delta entry id %s does not match entry id %s", d.FileID, d.Entry.FileID)
		}
		if d.OldPath != nil {
			current, ok := inv.Path(d.FileID)
			if !ok {
				return errors.Newf(errors.ErrInventory, "cannot remove %s: not versioned", d.FileID)
			}
			if current != *d.OldPath {
				return errors.Newf(errors.ErrInventory, "old path %q for %s does not match %q", *d.OldPath, d.FileID, current)
			}
		}
	}

	// Removals first so renames and swaps see a free slot.
	for _, d := range delta {
		if d.OldPath != nil {
			inv.remove(d.FileID)
		}
	}
	for _, d := range delta {
		if d.Entry == nil {
			continue
		}
		if inv.Has(d.FileID) {
			return errors.Newf(errors.ErrInventory, "file id %s is already versioned", d.FileID)
		}
		inv.byID[d.FileID] = *d.Entry
	}
	for _, d := range delta {
		if d.Entry == nil {
			continue
		}
		if err := inv.link(*d.Entry); err != nil {
			return err
		}
	}
	if err := inv.check(); err != nil {
		return err
	}
	for _, d := range delta {
		if d.NewPath == nil {
			continue
		}
		got, _ := inv.Path(d.FileID)
		if got != *d.NewPath {
			return errors.Newf(errors.ErrInventory, "new path %q for %s resolves to %q", *d.NewPath, d.FileID, got)
		}
	}
	return nil
}

func (inv *Inventory) add(e types.InventoryEntry) {
	inv.byID[e.FileID] = e
	_ = inv.link(e)
}

func (inv *Inventory) link(e types.InventoryEntry) error {
	if e.ParentID == "" {
		if inv.rootID != "" && inv.rootID != e.FileID {
			return errors.Newf(errors.ErrInventory, "second root %s alongside %s", e.FileID, inv.rootID)
		}
		if e.Kind != types.KindDirectory {
			return errors.Newf(errors.ErrInventory, "root %s must be a directory", e.FileID)
		}
		inv.rootID = e.FileID
		return nil
	}
	if e.Name == "" || strings.Contains(e.Name, "/") {
		return errors.Newf(errors.ErrInventory, "invalid name %q for %s", e.Name, e.FileID)
	}
	names := inv.children[e.ParentID]
	if names == nil {
		names = make(map[string]types.FileID)
		inv.children[e.ParentID] = names
	}
	if other, ok := names[e.Name]; ok && other != e.FileID {
		return errors.Newf(errors.ErrInventory, "name %q under %s used by both %s and %s", e.Name, e.ParentID, other, e.FileID)
	}
	names[e.Name] = e.FileID
	return nil
}

func (inv *Inventory) remove(id types.FileID) {
	e, ok := inv.byID[id]
	if !ok {
		return
	}
	delete(inv.byID, id)
	if e.ParentID == "" {
		if inv.rootID == id {
			inv.rootID = ""
		}
		return
	}
	if names := inv.children[e.ParentID]; names != nil && names[e.Name] == id {
		delete(names, e.Name)
		if len(names) == 0 {
			delete(inv.children, e.ParentID)
		}
	}
}

// check verifies that every entry hangs off a directory reachable from the root.
func (inv *Inventory) check() error {
	if len(inv.byID) > 0 && inv.rootID == "" {
		return errors.New(errors.ErrInventory, "inventory has no root")
	}
	for parent := range inv.children {
		if len(inv.children[parent]) == 0 {
			continue
		}
		pe, ok := inv.byID[parent]
		if !ok {
			return errors.Newf(errors.ErrInventory, "entries refer to missing parent %s", parent)
		}
		if pe.Kind != types.KindDirectory {
			return errors.Newf(errors.ErrInventory, "parent %s is a %s, not a directory", parent, pe.Kind)
		}
	}
	for id := range inv.byID {
		if _, ok := inv.Path(id); !ok {
			return errors.Newf(errors.ErrInventory, "entry %s is not reachable from the root", id)
		}
	}
	return nil
}
