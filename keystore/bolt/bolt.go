/*
 * Copyright 2020, Cossack Labs Limited
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bolt provides cache key store in a single BoltDB file.
//
// BoltDB allows only one process to open the database file, so the store
// uses in-process locks only.
package bolt

import (
	"bytes"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/identityclient/cachekeystore/keystore/kv"
	"github.com/identityclient/cachekeystore/keystore/lock"
	"github.com/identityclient/cachekeystore/logging"
)

const subsystemName = "bolt-store"

const (
	root       = "bolt"
	dbFilePerm = 0600
	// How long to wait for another process to close the database file.
	openTimeout = time.Second
)

var bucketName = []byte("blobs")

// Storage keeps values in a bucket of BoltDB.
type Storage struct {
	db *bolt.DB
}

// Open BoltDB file at path, creating it if needed.
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, dbFilePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

// New opens store in BoltDB file at path.
func New(path string) (*kv.Store, error) {
	logger := log.WithFields(log.Fields{"service": logging.ServiceName, "subsystem": subsystemName})
	storage, err := Open(path)
	if err != nil {
		logger.WithError(err).WithField("path", path).Debug("failed to open database")
		return nil, err
	}
	store, err := kv.NewStore(root, storage, lock.NewProcessLocker(), logger.WithField("path", path))
	if err != nil {
		storage.Close()
		return nil, err
	}
	return store, nil
}

// lookup finds value at path. Empty values are distinguished from missing ones.
func lookup(tx *bolt.Tx, path string) ([]byte, bool) {
	key := []byte(path)
	k, v := tx.Bucket(bucketName).Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

// ReadFile returns a copy of value at path.
func (b *Storage) ReadFile(path string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		value, found := lookup(tx, path)
		if !found {
			return os.ErrNotExist
		}
		// value is valid only during the transaction
		data = append([]byte{}, value...)
		return nil
	})
	return data, err
}

// WriteFile replaces value at path.
func (b *Storage) WriteFile(path string, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		// bbolt treats nil value as missing
		if data == nil {
			data = []byte{}
		}
		return tx.Bucket(bucketName).Put([]byte(path), data)
	})
}

// Exists checks whether a value is stored at path.
func (b *Storage) Exists(path string) (bool, error) {
	exists := false
	err := b.db.View(func(tx *bolt.Tx) error {
		_, exists = lookup(tx, path)
		return nil
	})
	return exists, err
}

// Remove value at path.
func (b *Storage) Remove(path string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(path))
	})
}

// RemoveAll removes value at path with all children.
func (b *Storage) RemoveAll(path string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		keys := [][]byte{[]byte(path)}
		prefix := []byte(path + "/")
		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			keys = append(keys, append([]byte{}, k...))
		}
		// deleting while iterating skips entries
		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Children returns immediate children of path.
func (b *Storage) Children(path string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		prefix := []byte(path + "/")
		cursor := tx.Bucket(bucketName).Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return kv.ChildNames(path, keys), nil
}

// Close the database.
func (b *Storage) Close() error {
	return b.db.Close()
}
