package inventory

import (
	stderrors "errors"
	"time"

	"github.com/arthur-debert/treetx/pkg/errors"
	"github.com/arthur-debert/treetx/pkg/logging"
	"github.com/arthur-debert/treetx/pkg/types"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	entriesBucket = "entries"
	hashesBucket  = "hashes"
	metaBucket    = "meta"

	rootKey    = "root_id"
	formatKey  = "format"
	formatName = "treetx inventory 1"
)

// Options control how the store is opened.
type Options struct {
	// Timeout bounds the wait for the file lock. Zero waits forever.
	Timeout time.Duration
	// ReadOnly takes a shared lock instead of an exclusive one.
	ReadOnly bool
}

// Store persists an Inventory and the observed hash cache in a bbolt file.
// Holding a writable Store holds the exclusive lock on the file.
type Store struct {
	db   *bolt.DB
	path string
}

// Create initializes a new store at path with a root directory entry.
func Create(path string, rootID types.FileID) (*Store, error) {
	s, err := Open(path, Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucket([]byte(metaBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucket([]byte(entriesBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucket([]byte(hashesBucket)); err != nil {
			return err
		}
		if err := meta.Put([]byte(formatKey), []byte(formatName)); err != nil {
			return err
		}
		if err := meta.Put([]byte(rootKey), []byte(rootID)); err != nil {
			return err
		}
		return putEntry(tx, types.InventoryEntry{FileID: rootID, Kind: types.KindDirectory})
	})
	if err != nil {
		_ = s.Close()
		return nil, errors.Wrapf(err, errors.ErrInventory, "failed to initialize inventory %s", path)
	}
	return s, nil
}

// Open opens an existing store. A held lock that does not clear within
// opts.Timeout yields ErrLockContention.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: opts.Timeout, ReadOnly: opts.ReadOnly})
	if err != nil {
		if stderrors.Is(err, bolt.ErrTimeout) {
			return nil, errors.Wrapf(err, errors.ErrLockContention, "inventory %s is locked", path).
				WithDetail("path", path)
		}
		return nil, errors.Wrapf(err, errors.ErrInventory, "failed to open inventory %s", path)
	}
	logger := logging.GetLogger("inventory.store")
	logger.Trace().
		Str("path", path).
		Bool("readOnly", opts.ReadOnly).
		Msg("Opened inventory")
	return &Store{db: db, path: path}, nil
}

// Path returns the location of the store file.
func (s *Store) Path() string {
	return s.path
}

// Close releases the file lock.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load reads the whole inventory.
func (s *Store) Load() (*Inventory, error) {
	var entries []types.InventoryEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		if b == nil {
			return stderrors.New("missing entries bucket")
		}
		return b.ForEach(func(k, v []byte) error {
			var e types.InventoryEntry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInventory, "failed to read inventory %s", s.path)
	}
	return FromEntries(entries)
}

// Apply validates delta against the stored inventory and persists the result
// in a single transaction. Cached hashes for paths the delta vacates are
// dropped.
func (s *Store) Apply(delta types.Delta) (*Inventory, error) {
	var result *Inventory
	err := s.db.Update(func(tx *bolt.Tx) error {
		inv, err := loadTx(tx)
		if err != nil {
			return err
		}
		if err := inv.Apply(delta); err != nil {
			return err
		}
		entries := tx.Bucket([]byte(entriesBucket))
		hashes := tx.Bucket([]byte(hashesBucket))
		for _, d := range delta {
			if d.OldPath != nil {
				if err := hashes.Delete([]byte(*d.OldPath)); err != nil {
					return err
				}
			}
			if d.Entry == nil {
				if err := entries.Delete([]byte(d.FileID)); err != nil {
					return err
				}
				continue
			}
			if err := putEntry(tx, *d.Entry); err != nil {
				return err
			}
		}
		if err := tx.Bucket([]byte(metaBucket)).Put([]byte(rootKey), []byte(inv.RootID())); err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		var txErr *errors.TxError
		if stderrors.As(err, &txErr) {
			return nil, err
		}
		return nil, errors.Wrapf(err, errors.ErrInventory, "failed to apply delta to %s", s.path)
	}
	logger := logging.GetLogger("inventory.store")
	logger.Debug().
		Int("changes", len(delta)).
		Int("entries", result.Len()).
		Msg("Applied inventory delta")
	return result, nil
}

// RecordHash caches the hash observed for path.
func (s *Store) RecordHash(path string, observed types.ObservedHash) error {
	data, err := msgpack.Marshal(&observed)
	if err != nil {
		return errors.Wrap(err, errors.ErrInventory, "failed to encode observed hash")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(hashesBucket)).Put([]byte(path), data)
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrInventory, "failed to record hash for %s", path)
	}
	return nil
}

// ObservedHash returns the cached hash for path, if any.
func (s *Store) ObservedHash(path string) (types.ObservedHash, bool, error) {
	var observed types.ObservedHash
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(hashesBucket)).Get([]byte(path))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &observed)
	})
	if err != nil {
		return types.ObservedHash{}, false, errors.Wrapf(err, errors.ErrInventory, "failed to read hash for %s", path)
	}
	return observed, found, nil
}

func loadTx(tx *bolt.Tx) (*Inventory, error) {
	var entries []types.InventoryEntry
	err := tx.Bucket([]byte(entriesBucket)).ForEach(func(k, v []byte) error {
		var e types.InventoryEntry
		if err := msgpack.Unmarshal(v, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromEntries(entries)
}

func putEntry(tx *bolt.Tx, e types.InventoryEntry) error {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(entriesBucket)).Put([]byte(e.FileID), data)
}
