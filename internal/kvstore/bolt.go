package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("threatlex")

// BoltKV is a file-backed KV implementation on bbolt. The quota is
// enforced by this layer, not by bbolt: Set tracks logical usage
// (key + value bytes) and rejects writes that would exceed it.
type BoltKV struct {
	db     *bolt.DB
	quota  int64 // 0 = unlimited
	logger *slog.Logger
}

// OpenBolt opens (creating if needed) the store file at path with the
// given byte quota (0 disables the quota).
func OpenBolt(path string, quota int64, logger *slog.Logger) (*BoltKV, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketName)
		return createErr
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &BoltKV{db: db, quota: quota, logger: logger}, nil
}

// Get returns the stored value, or ErrNotFound.
func (b *BoltKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores the value, enforcing the quota against projected logical
// usage.
func (b *BoltKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if b.quota > 0 {
			projected := usageInTx(tx)
			if prev := bucket.Get([]byte(key)); prev != nil {
				projected -= int64(len(key) + len(prev))
			}
			projected += int64(len(key) + len(value))
			if projected > b.quota {
				b.logger.Debug("write rejected by quota", "key", key, "projected", projected, "quota", b.quota)
				return ErrQuotaExceeded
			}
		}
		return bucket.Put([]byte(key), value)
	})
}

// Remove deletes the key.
func (b *BoltKV) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

// BytesInUse reports total logical stored bytes (keys + values).
func (b *BoltKV) BytesInUse(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var total int64
	err := b.db.View(func(tx *bolt.Tx) error {
		total = usageInTx(tx)
		return nil
	})
	return total, err
}

// Close closes the underlying database file.
func (b *BoltKV) Close() error {
	return b.db.Close()
}

func usageInTx(tx *bolt.Tx) int64 {
	var total int64
	_ = tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
		total += int64(len(k) + len(v))
		return nil
	})
	return total
}
