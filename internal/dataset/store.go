// Package dataset holds the training data path: the converted record
// store, the shuffled batch source that reads it and the reader for
// inference inputs.
package dataset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	recordPrefix = "rec:"
	metaKey      = "meta"
)

// ErrEmptyStore is returned when a store holds no records.
var ErrEmptyStore = errors.New("dataset: store has no records")

// Record is one converted training example. Sequences are padded to the
// store's MaxLen with zeros.
type Record struct {
	EncoderInput    []int32 `json:"encoder_input"`
	EncoderInputLen int32   `json:"encoder_input_len"`
	DecoderInput    []int32 `json:"decoder_input"`
	DecoderInputLen int32   `json:"decoder_input_len"`
	SeedID          int32   `json:"seed_id"`
}

// Meta describes a converted store.
type Meta struct {
	Count  int `json:"count"`
	MaxLen int `json:"max_len"`
}

// Store is a badger-backed record store.
type Store struct {
	db *badger.DB
}

// StorePath is the store directory for an architecture and split, e.g.
// data/cnn_train.db.
func StorePath(dataDir, nn, split string) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s_%s.db", nn, split))
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only in memory.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("dataset: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write replaces the store's contents with records.
func (s *Store) Write(ctx context.Context, records []Record, meta Meta) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("dataset: clear store: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("dataset: marshal record %d: %w", i, err)
		}
		if err := wb.Set(recordKey(i), data); err != nil {
			return fmt.Errorf("dataset: write record %d: %w", i, err)
		}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("dataset: marshal meta: %w", err)
	}
	if err := wb.Set([]byte(metaKey), data); err != nil {
		return fmt.Errorf("dataset: write meta: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("dataset: flush: %w", err)
	}
	return nil
}

// Meta returns the store description written by the converter.
func (s *Store) Meta() (Meta, error) {
	var meta Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEmptyStore
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return Meta{}, fmt.Errorf("dataset: read meta: %w", err)
	}
	return meta, nil
}

// Records loads every record in insertion order.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("record %q: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: read records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyStore
	}
	return records, nil
}

// recordKey orders records by index under the record prefix.
func recordKey(i int) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], uint64(i)) //nolint:gosec // i >= 0
	return key
}
