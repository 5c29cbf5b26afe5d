package storage

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-relational/relational"
)

// BadgerStore implements Store using BadgerDB. Each row lives under
// its canonical row-key bytes; values are plist-encoded rows, so the
// on-disk value format matches the file adapters.
type BadgerStore struct {
	db     *badger.DB
	scheme relational.Scheme
}

var (
	badgerRowPrefix  = []byte("row:")
	badgerSchemeKey  = []byte("meta:scheme")
)

// NewBadgerStore opens (creating if needed) a BadgerDB-backed store.
func NewBadgerStore(path string, scheme relational.Scheme) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable BadgerDB logs

	// Row workloads are small-value and read-heavy.
	opts.MemTableSize = 32 << 20
	opts.BlockCacheSize = 64 << 20
	opts.IndexCacheSize = 32 << 20
	opts.DetectConflicts = false // Single writer via the update manager
	opts.ValueThreshold = 1 << 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, relational.StorageErrorf(err, "open badger at %s", path)
	}

	s := &BadgerStore{db: db, scheme: scheme.Clone()}
	if err := s.checkScheme(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkScheme persists the scheme on first open and verifies it on
// later opens.
func (s *BadgerStore) checkScheme() error {
	encoded := []byte(s.scheme.String())
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerSchemeKey)
		if err == badger.ErrKeyNotFound {
			return txn.Set(badgerSchemeKey, encoded)
		}
		if err != nil {
			return relational.StorageErrorf(err, "read scheme")
		}
		return item.Value(func(val []byte) error {
			if !bytes.Equal(val, encoded) {
				return relational.SchemeViolationf("store has scheme %s, want %s", val, encoded)
			}
			return nil
		})
	})
}

func (s *BadgerStore) Scheme() relational.Scheme { return s.scheme }

func rowKeyBytes(row relational.Row) []byte {
	return append(append([]byte{}, badgerRowPrefix...), row.Key()...)
}

// Rows materializes the row set inside one read transaction so the
// returned iterator does not pin a Badger transaction open.
func (s *BadgerStore) Rows() relational.RowIterator {
	var rows []relational.Row
	var rowErrs []error

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerRowPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				row, err := UnmarshalRow(val)
				if err != nil {
					rowErrs = append(rowErrs, err)
					return nil
				}
				rows = append(rows, row)
				return nil
			})
			if err != nil {
				rowErrs = append(rowErrs, relational.StorageErrorf(err, "read row value"))
			}
		}
		return nil
	})
	if err != nil {
		return relational.NewErrorIterator(relational.StorageErrorf(err, "scan rows"))
	}

	return &badgerRowIterator{rows: rows, errs: rowErrs, pos: -1}
}

func (s *BadgerStore) Add(row relational.Row) error {
	if !row.Satisfies(s.scheme) {
		return relational.SchemeViolationf("row %s does not satisfy scheme %s", row, s.scheme)
	}
	data, err := MarshalRow(row)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rowKeyBytes(row), data)
	})
	if err != nil {
		return relational.StorageErrorf(err, "add row")
	}
	return nil
}

func (s *BadgerStore) Delete(expr relational.SelectExpression) error {
	keys, _, err := s.matchingKeys(expr)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return relational.StorageErrorf(err, "delete rows")
	}
	return nil
}

func (s *BadgerStore) Update(expr relational.SelectExpression, newValues relational.Row) error {
	if !newValues.Scheme().SubsetOf(s.scheme) {
		return relational.SchemeViolationf("update values %s outside scheme %s", newValues, s.scheme)
	}
	keys, rows, err := s.matchingKeys(expr)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for i, row := range rows {
			updated := row.Overwriting(newValues)
			if updated.Equal(row) {
				continue
			}
			data, err := MarshalRow(updated)
			if err != nil {
				return err
			}
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
			if err := txn.Set(rowKeyBytes(updated), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return relational.StorageErrorf(err, "update rows")
	}
	return nil
}

func (s *BadgerStore) matchingKeys(expr relational.SelectExpression) ([][]byte, []relational.Row, error) {
	var keys [][]byte
	var rows []relational.Row
	it := s.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return nil, nil, err
		}
		if relational.Truthy(expr.Evaluate(row)) {
			keys = append(keys, rowKeyBytes(row))
			rows = append(rows, row)
		}
	}
	return keys, rows, nil
}

// Close releases the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerRowIterator delivers the materialized rows first, then any
// per-row decode errors.
type badgerRowIterator struct {
	rows []relational.Row
	errs []error
	pos  int
}

func (it *badgerRowIterator) Next() bool {
	it.pos++
	return it.pos < len(it.rows)+len(it.errs)
}

func (it *badgerRowIterator) Row() (relational.Row, error) {
	if it.pos < 0 {
		return nil, nil
	}
	if it.pos < len(it.rows) {
		return it.rows[it.pos], nil
	}
	if it.pos < len(it.rows)+len(it.errs) {
		return nil, it.errs[it.pos-len(it.rows)]
	}
	return nil, nil
}

func (it *badgerRowIterator) Close() error { return nil }
