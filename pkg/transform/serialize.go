package transform

import (
	stderrors "errors"
	"io"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/patch"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/vmihailenco/msgpack/v5"
)

const serialFormat = "treetx transform 1"

// header is the first record of a serialized transform.
type header struct {
	Format           string            `msgpack:"format"`
	IDNumber         int               `msgpack:"id_number"`
	NewName          map[string]string `msgpack:"new_name"`
	NewParent        map[string]string `msgpack:"new_parent"`
	NewExecutability map[string]bool   `msgpack:"new_executability"`
	NewID            map[string]string `msgpack:"new_id"`
	TreePathIDs      map[string]string `msgpack:"tree_path_ids"`
	RemovedID        []string          `msgpack:"removed_id"`
	RemovedContents  []string          `msgpack:"removed_contents"`
	NonPresentIDs    map[string]string `msgpack:"non_present_ids"`
}

// contentRecord carries one staged content. Files are patches against the
// tree's current text; symlinks carry their target; directories are empty.
type contentRecord struct {
	TransID string `msgpack:"trans_id"`
	Kind    string `msgpack:"kind"`
	Content []byte `msgpack:"content"`
}

func idStrings(s idSet) []string {
	ids := s.sorted()
	out := make([]string, len(ids))
	for i, t := range ids {
		out[i] = string(t)
	}
	return out
}

// Serialize writes the staged change set, including staged content, to w.
func (c *core) Serialize(w io.Writer) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	h := header{
		Format:           serialFormat,
		IDNumber:         c.idNumber,
		NewName:          map[string]string{},
		NewParent:        map[string]string{},
		NewExecutability: map[string]bool{},
		NewID:            map[string]string{},
		TreePathIDs:      map[string]string{},
		RemovedID:        idStrings(c.removedID),
		RemovedContents:  idStrings(c.removedContents),
		NonPresentIDs:    map[string]string{},
	}
	for t, name := range c.newName {
		h.NewName[string(t)] = name
	}
	for t, parent := range c.newParent {
		h.NewParent[string(t)] = string(parent)
	}
	for t, x := range c.newExecutability {
		h.NewExecutability[string(t)] = x
	}
	for t, id := range c.newID {
		h.NewID[string(t)] = string(id)
	}
	for p, t := range c.treePathIDs {
		h.TreePathIDs[p] = string(t)
	}
	for id, t := range c.nonPresentIDs {
		h.NonPresentIDs[string(id)] = string(t)
	}

	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&h); err != nil {
		return errors.Wrap(err, errors.ErrSerialize, "failed to write transform header")
	}
	for _, t := range sortedIDs(c.newContents) {
		rec := contentRecord{TransID: string(t), Kind: string(c.newContents[t])}
		switch c.newContents[t] {
		case types.KindFile:
			data, err := c.limbo.fs.ReadFile(c.limboName(t))
			if err != nil {
				return errors.Wrapf(err, errors.ErrSerialize, "failed to read staged %s", t)
			}
			parents, err := c.parentTexts(t)
			if err != nil {
				return err
			}
			rec.Content = patch.EncodeBytes(data, parents...)
		case types.KindSymlink:
			target, err := c.limbo.fs.Readlink(c.limboName(t))
			if err != nil && c.backend.supportsSymlinks() {
				return errors.Wrapf(err, errors.ErrSerialize, "failed to read staged link %s", t)
			}
			rec.Content = []byte(target)
		}
		if err := enc.Encode(&rec); err != nil {
			return errors.Wrapf(err, errors.ErrSerialize, "failed to write content of %s", t)
		}
	}
	c.logger.Debug().Int("contents", len(c.newContents)).Msg("transform serialized")
	return nil
}

// parentTexts returns the tree's current text for t, the base its staged
// content is patched against.
func (c *core) parentTexts(t TransID) ([][]byte, error) {
	p, ok := c.treeIDPaths[t]
	if !ok || c.TreeKind(t) != types.KindFile {
		return nil, nil
	}
	data, err := c.tree.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

// Deserialize restores a change set written by Serialize. The transform must
// not have anything staged yet.
func (c *core) Deserialize(r io.Reader) error {
	if err := c.checkLive(); err != nil {
		return err
	}
	if !c.isEmpty() || len(c.limbo.files) > 0 || c.idNumber > 1 {
		return errors.New(errors.ErrNotEmptyTransform, "cannot deserialize into a transform with staged changes")
	}
	dec := msgpack.NewDecoder(r)
	var h header
	if err := dec.Decode(&h); err != nil {
		return errors.Wrap(err, errors.ErrSerialize, "failed to read transform header")
	}
	if h.Format != serialFormat {
		return errors.Newf(errors.ErrSerialize, "unknown transform format %q", h.Format)
	}

	c.idNumber = h.IDNumber
	for t, name := range h.NewName {
		c.newName[TransID(t)] = name
	}
	for t, parent := range h.NewParent {
		c.newParent[TransID(t)] = TransID(parent)
	}
	for t, x := range h.NewExecutability {
		c.newExecutability[TransID(t)] = x
	}
	for t, id := range h.NewID {
		c.newID[TransID(t)] = types.FileID(id)
		c.rNewID[types.FileID(id)] = TransID(t)
	}
	c.treePathIDs = map[string]TransID{}
	c.treeIDPaths = map[TransID]string{}
	for p, t := range h.TreePathIDs {
		c.treePathIDs[p] = TransID(t)
		c.treeIDPaths[TransID(t)] = p
	}
	for _, t := range h.RemovedID {
		c.removedID.add(TransID(t))
	}
	for _, t := range h.RemovedContents {
		c.removedContents.add(TransID(t))
	}
	for id, t := range h.NonPresentIDs {
		c.nonPresentIDs[types.FileID(id)] = TransID(t)
	}
	if root, ok := c.treePathIDs[""]; ok {
		c.newRoot = root
	} else {
		c.newRoot = c.TransIDTreePath("")
	}
	c.touch()

	var records []contentRecord
	for {
		var rec contentRecord
		if err := dec.Decode(&rec); err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return errors.Wrap(err, errors.ErrSerialize, "failed to read content record")
		}
		records = append(records, rec)
	}
	for _, rec := range sortRecords(records) {
		t := TransID(rec.TransID)
		switch types.Kind(rec.Kind) {
		case types.KindFile:
			parents, err := c.parentTexts(t)
			if err != nil {
				return err
			}
			data, err := patch.DecodeBytes(rec.Content, parents...)
			if err != nil {
				return err
			}
			if err := c.CreateFile(t, data); err != nil {
				return err
			}
		case types.KindDirectory:
			if err := c.CreateDirectory(t); err != nil {
				return err
			}
		case types.KindSymlink:
			if err := c.CreateSymlink(t, string(rec.Content)); err != nil {
				return err
			}
		default:
			return errors.Newf(errors.ErrSerialize, "unknown content kind %q for %s", rec.Kind, rec.TransID)
		}
	}
	c.logger.Debug().Int("contents", len(records)).Msg("transform deserialized")
	return nil
}

// sortRecords orders records by trans id number so that parents, which are
// normally created first, are staged before their children.
func sortRecords(records []contentRecord) []contentRecord {
	ids := make([]TransID, len(records))
	byID := make(map[TransID]contentRecord, len(records))
	for i, rec := range records {
		ids[i] = TransID(rec.TransID)
		byID[ids[i]] = rec
	}
	sortTransIDs(ids)
	sorted := make([]contentRecord, len(ids))
	for i, t := range ids {
		sorted[i] = byID[t]
	}
	return sorted
}
