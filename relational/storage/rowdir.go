package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wbrown/janus-relational/relational"
	"github.com/wbrown/janus-relational/relational/codec"
)

// RowDirStore persists one plist file per row. The filename is the
// lowercase hexadecimal SHA-256 of the canonical byte encoding of the
// row's primary-key value, sharded into a two-character directory
// prefix, with a .rowplist extension:
//
//	<root>/ab/ab12...ef.rowplist
//
// File contents are an XML plist of the row, optionally wrapped by a
// stream codec.
type RowDirStore struct {
	root    string
	scheme  relational.Scheme
	primary relational.Attribute
	codec   codec.Codec
}

const rowFileExtension = ".rowplist"

// NewRowDirStore opens (creating if needed) a row directory. The
// primary key attribute must be part of the scheme; rows sharing a
// primary-key value overwrite each other.
func NewRowDirStore(root string, scheme relational.Scheme, primary relational.Attribute, contentCodec codec.Codec) (*RowDirStore, error) {
	if !scheme.Contains(primary) {
		return nil, relational.SchemeViolationf("primary key %s absent from %s", primary, scheme)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, relational.StorageErrorf(err, "create row directory %s", root)
	}
	if contentCodec == nil {
		contentCodec = codec.Identity{}
	}
	return &RowDirStore{
		root:    root,
		scheme:  scheme.Clone(),
		primary: primary,
		codec:   contentCodec,
	}, nil
}

func (s *RowDirStore) Scheme() relational.Scheme { return s.scheme }

// RowFileName returns the file name (without directory prefix) for a
// primary-key value. The derivation is part of the on-disk format.
func RowFileName(primaryKey relational.Value) string {
	sum := sha256.Sum256(relational.CanonicalBytes(primaryKey))
	return hex.EncodeToString(sum[:]) + rowFileExtension
}

func (s *RowDirStore) pathForKey(primaryKey relational.Value) string {
	name := RowFileName(primaryKey)
	return filepath.Join(s.root, name[:2], name)
}

func (s *RowDirStore) Rows() relational.RowIterator {
	var paths []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, rowFileExtension) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return relational.NewErrorIterator(relational.StorageErrorf(err, "walk %s", s.root))
	}
	return &rowDirIterator{store: s, paths: paths, pos: -1}
}

func (s *RowDirStore) readRow(path string) (relational.Row, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, relational.StorageErrorf(err, "read %s", path)
	}
	data, err := s.codec.Decode(raw)
	if err != nil {
		return nil, relational.SerializationErrorf("decode %s: %v", path, err)
	}
	row, err := UnmarshalRow(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return row, nil
}

func (s *RowDirStore) writeRow(row relational.Row) error {
	data, err := MarshalRow(row)
	if err != nil {
		return err
	}
	path := s.pathForKey(row.Get(s.primary))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return relational.StorageErrorf(err, "create shard for %s", path)
	}
	if err := os.WriteFile(path, s.codec.Encode(data), 0o644); err != nil {
		return relational.StorageErrorf(err, "write %s", path)
	}
	return nil
}

func (s *RowDirStore) Add(row relational.Row) error {
	if !row.Satisfies(s.scheme) {
		return relational.SchemeViolationf("row %s does not satisfy scheme %s", row, s.scheme)
	}
	return s.writeRow(row)
}

func (s *RowDirStore) Delete(expr relational.SelectExpression) error {
	it := s.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return err
		}
		if !relational.Truthy(expr.Evaluate(row)) {
			continue
		}
		path := s.pathForKey(row.Get(s.primary))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return relational.StorageErrorf(err, "remove %s", path)
		}
	}
	return nil
}

func (s *RowDirStore) Update(expr relational.SelectExpression, newValues relational.Row) error {
	if !newValues.Scheme().SubsetOf(s.scheme) {
		return relational.SchemeViolationf("update values %s outside scheme %s", newValues, s.scheme)
	}
	it := s.Rows()
	defer it.Close()
	for it.Next() {
		row, err := it.Row()
		if err != nil {
			return err
		}
		if !relational.Truthy(expr.Evaluate(row)) {
			continue
		}
		updated := row.Overwriting(newValues)
		if updated.Equal(row) {
			continue
		}
		// A primary-key change moves the row to a new file.
		oldKey := row.Get(s.primary)
		newKey := updated.Get(s.primary)
		if err := s.writeRow(updated); err != nil {
			return err
		}
		if !relational.ValuesEqual(oldKey, newKey) {
			path := s.pathForKey(oldKey)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return relational.StorageErrorf(err, "remove %s", path)
			}
		}
	}
	return nil
}

// rowDirIterator streams rows from the collected file paths. A file
// that fails to read or parse surfaces as a row error and iteration
// continues with the next file.
type rowDirIterator struct {
	store *RowDirStore
	paths []string
	pos   int
}

func (it *rowDirIterator) Next() bool {
	it.pos++
	return it.pos < len(it.paths)
}

func (it *rowDirIterator) Row() (relational.Row, error) {
	if it.pos < 0 || it.pos >= len(it.paths) {
		return nil, nil
	}
	return it.store.readRow(it.paths[it.pos])
}

func (it *rowDirIterator) Close() error { return nil }
