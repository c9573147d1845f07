package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hyperjump/shikibetsu/internal/models"
)

var (
	bucketExamples = []byte("examples") // big-endian sequence -> boltRecord
	bucketKeys     = []byte("keys")     // text \x00 label -> sequence
)

type boltRecord struct {
	Text   string `json:"text"`
	Label  string `json:"label"`
	Vector []byte `json:"vector"`
}

// BoltDataset implements Dataset on a bbolt file. Examples are keyed by a bucket sequence,
// so cursor order is insertion order.
type BoltDataset struct {
	db   *bbolt.DB
	path string
}

// NewBoltDataset opens or creates the bolt file at path.
func NewBoltDataset(path string) (*BoltDataset, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketExamples, bucketKeys} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDataset{db: db, path: path}, nil
}

func boltKey(k models.Key) []byte {
	return []byte(k.Text + "\x00" + k.Label)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// Load returns all examples in insertion order.
func (s *BoltDataset) Load(ctx context.Context) ([]models.Example, error) {
	var examples []models.Example
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketExamples).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			vec, err := decodeVector(rec.Vector)
			if err != nil {
				return err
			}
			examples = append(examples, models.Example{Text: rec.Text, Label: rec.Label, Vector: vec})
			return nil
		})
	})
	return examples, err
}

// Append adds examples in one bolt transaction.
func (s *BoltDataset) Append(ctx context.Context, examples []models.Example) error {
	if len(examples) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		exb, keys := tx.Bucket(bucketExamples), tx.Bucket(bucketKeys)
		for _, ex := range examples {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := boltKey(ex.Key())
			if keys.Get(k) != nil {
				return fmt.Errorf("%w: %s", models.ErrDuplicateExample, ex.Key())
			}
			seq, err := exb.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(boltRecord{Text: ex.Text, Label: ex.Label, Vector: encodeVector(ex.Vector)})
			if err != nil {
				return err
			}
			if err := exb.Put(seqKey(seq), data); err != nil {
				return err
			}
			if err := keys.Put(k, seqKey(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the example with the given key.
func (s *BoltDataset) Delete(ctx context.Context, key models.Key) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket(bucketKeys)
		k := boltKey(key)
		seq := keys.Get(k)
		if seq == nil {
			return fmt.Errorf("%w: %s", models.ErrNotFound, key)
		}
		if err := tx.Bucket(bucketExamples).Delete(bytes.Clone(seq)); err != nil {
			return err
		}
		return keys.Delete(k)
	})
}

// Clear drops and recreates both buckets. The sequence restarts.
func (s *BoltDataset) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketExamples, bucketKeys} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored examples.
func (s *BoltDataset) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketExamples).Stats().KeyN
		return nil
	})
	return n, err
}

// Path returns the bolt file path.
func (s *BoltDataset) Path() string {
	return s.path
}

// Close closes the bolt file.
func (s *BoltDataset) Close() error {
	return s.db.Close()
}
