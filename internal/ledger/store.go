// Copyright 2024 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/bank/internal/msgp"
	bolt "go.etcd.io/bbolt"
)

// Store persists accounts.
type Store interface {
	// Load calls fn for every stored account.
	Load(fn func(*Account) error) error

	// Save stores all accounts atomically. Existing
	// accounts are replaced.
	Save(accounts ...*Account) error

	// Close closes the store.
	Close() error
}

const dbAccountBucket = "account"

// BoltStore is a Store backed by a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBoltStore opens the bbolt database at path. It
// creates the database file, and its parent directory,
// if it does not exist.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o640, &bolt.Options{
		Timeout: 3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open database '%s': %v", path, err)
	}
	if err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dbAccountBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Load calls fn for every account stored in the database.
func (s *BoltStore) Load(fn func(*Account) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAccountBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var m msgp.Account
			if err := msgp.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("ledger: invalid account record: %v", err)
			}
			if string(m.Key) != string(k) {
				return errors.New("ledger: account record does not match its key")
			}
			var account Account
			account.UnmarshalMsg(&m)
			return fn(&account)
		})
	})
}

// Save stores all accounts in a single transaction.
func (s *BoltStore) Save(accounts ...*Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(dbAccountBucket))
		if err != nil {
			return err
		}
		for _, account := range accounts {
			v, err := msgp.Marshal(account.MarshalMsg())
			if err != nil {
				return err
			}
			if err = b.Put(account.Key, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }
