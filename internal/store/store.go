// Package store provides durable key/value persistence for nonce
// ceilings, reputation audit logs, and proof archives, backed by
// BoltDB. Grounded on
// services/orchestrator/persistence.go's WorkflowStore: a single file,
// one bucket per logical namespace, JSON-free here since callers
// already hand over encoded bytes.
package store

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ailee-network/ailee-core/internal/domain"
)

// BoltStore implements domain.KVStore over a single BoltDB file, with
// one bucket created lazily per distinct bucket name a caller uses.
type BoltStore struct {
	db *bbolt.DB
}

// Open creates or opens a BoltDB file at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put writes value under key in bucket, creating the bucket if absent.
func (s *BoltStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		return b.Put([]byte(key), value)
	})
}

// Get reads key from bucket. A missing bucket or key both return
// (nil, nil), not an error — callers (notably the proof package's
// nonce guard) treat absence as "never seen" rather than a fault.
func (s *BoltStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return value, err
}

// Delete removes key from bucket. A missing bucket is a no-op.
func (s *BoltStore) Delete(ctx context.Context, bucket, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Snapshot returns every key/value pair in bucket. A missing bucket
// returns an empty, non-nil map.
func (s *BoltStore) Snapshot(ctx context.Context, bucket string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			value := make([]byte, len(v))
			copy(value, v)
			out[string(k)] = value
			return nil
		})
	})
	return out, err
}

var _ domain.KVStore = (*BoltStore)(nil)
