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

// Package kv implements cache key store over flat key-value storages.
//
// Locking follows the filesystem store: the key is locked by every operation
// and its parent by operations which add or remove entries. Directories are
// implicit, so CreateDirectoriesLockParent creates nothing and holds nothing.
package kv

import (
	"errors"
	"io/fs"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/lock"
	"github.com/identityclient/cachekeystore/keystore/paths"
	"github.com/identityclient/cachekeystore/logging"
)

// Store keeps blobs in Storage under root path.
type Store struct {
	root    string
	storage Storage
	locker  lock.Locker
	log     *log.Entry
}

// ErrEmptyRoot returned for stores without root path.
var ErrEmptyRoot = errors.New("store root path is empty")

// NewStore creates store over given storage. All keys are kept below root.
func NewStore(root string, storage Storage, locker lock.Locker, logger *log.Entry) (*Store, error) {
	root = paths.Key(root)
	if root == "" {
		return nil, api.NewKeyError("open", root, api.ErrInvalidArgument, ErrEmptyRoot)
	}
	if logger == nil {
		logger = log.WithFields(log.Fields{"service": logging.ServiceName, "subsystem": "kv-store"})
	}
	return &Store{root: root, storage: storage, locker: locker, log: logger.WithField("root", root)}, nil
}

// Root path of all keys.
func (s *Store) Root() string {
	return s.root
}

// Close underlying storage.
func (s *Store) Close() error {
	return s.storage.Close()
}

func (s *Store) fullPath(op, key string) (string, error) {
	full, err := paths.Join(s.root, key)
	if err != nil {
		s.log.WithField("key", key).Debug("invalid key")
		return "", api.NewKeyError(op, key, api.ErrInvalidArgument, err)
	}
	return full, nil
}

func (s *Store) acquire(op, key, full string) (lock.Handle, error) {
	handle, err := s.locker.TryAcquire(paths.LockNameOf(full))
	if err != nil {
		s.log.WithError(err).WithField("path", full).Debug("failed to acquire lock")
		return nil, api.Classify(op, key, err)
	}
	return handle, nil
}

func (s *Store) release(handle lock.Handle) {
	if err := handle.Release(); err != nil {
		s.log.WithError(err).WithFields(log.Fields{
			"lock":                    handle.Name(),
			logging.FieldKeyEventCode: logging.EventCodeErrorCantReleaseLock,
		}).Warn("failed to release lock")
	}
}

func (s *Store) fail(op, key, full string, err error) error {
	s.log.WithError(err).WithFields(log.Fields{"op": op, "path": full}).Debug("operation failed")
	return api.Classify(op, key, err)
}

// Read data stored at key. Missing key reads as empty slice.
func (s *Store) Read(key string) ([]byte, error) {
	full, err := s.fullPath("read", key)
	if err != nil {
		return nil, err
	}
	handle, err := s.acquire("read", key, full)
	if err != nil {
		return nil, err
	}
	defer s.release(handle)
	return s.read("read", key, full)
}

func (s *Store) read(op, key, full string) ([]byte, error) {
	data, err := s.storage.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []byte{}, nil
		}
		return nil, s.fail(op, key, full, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Write data at key. The parent is locked too when the key is created.
func (s *Store) Write(key string, data []byte) error {
	full, err := s.fullPath("write", key)
	if err != nil {
		return err
	}
	if full == s.root {
		return api.NewKeyError("write", key, api.ErrInvalidArgument, errors.New("cannot write store root"))
	}
	handle, err := s.acquire("write", key, full)
	if err != nil {
		return err
	}
	defer s.release(handle)

	exists, err := s.storage.Exists(full)
	if err != nil {
		return s.fail("write", key, full, err)
	}
	if !exists {
		parent, err := s.acquire("write", key, paths.ParentOf(full))
		if err != nil {
			return err
		}
		defer s.release(parent)
	}
	return s.write("write", key, full, data, exists)
}

func (s *Store) write(op, key, full string, data []byte, exists bool) error {
	if !exists {
		if err := s.checkStructure(full); err != nil {
			return s.fail(op, key, full, err)
		}
	}
	if err := s.storage.WriteFile(full, data); err != nil {
		return s.fail(op, key, full, err)
	}
	return nil
}

// checkStructure rejects new entries below existing values or over existing directories,
// like a filesystem would.
func (s *Store) checkStructure(full string) error {
	children, err := s.storage.Children(full)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return &fs.PathError{Op: "write", Path: full, Err: syscall.EISDIR}
	}
	for dir := paths.ParentOf(full); dir != s.root && dir != ""; dir = paths.ParentOf(dir) {
		exists, err := s.storage.Exists(dir)
		if err != nil {
			return err
		}
		if exists {
			return &fs.PathError{Op: "mkdir", Path: dir, Err: syscall.ENOTDIR}
		}
	}
	return nil
}

// Delete key, locking both the key and its parent.
func (s *Store) Delete(key string) error {
	full, err := s.fullPath("delete", key)
	if err != nil {
		return err
	}
	if full == s.root {
		return api.NewKeyError("delete", key, api.ErrInvalidArgument, errors.New("cannot delete store root, use DeleteContent"))
	}
	handle, err := s.acquire("delete", key, full)
	if err != nil {
		return err
	}
	defer s.release(handle)
	parent, err := s.acquire("delete", key, paths.ParentOf(full))
	if err != nil {
		return err
	}
	defer s.release(parent)

	if err := s.storage.Remove(full); err != nil {
		return s.fail("delete", key, full, err)
	}
	return nil
}

// ReadModifyWrite replaces content of key with transformed content under the key lock.
// The parent is locked too when the key is created.
func (s *Store) ReadModifyWrite(key string, transform api.Transform) error {
	full, err := s.fullPath("read-modify-write", key)
	if err != nil {
		return err
	}
	if full == s.root {
		return api.NewKeyError("read-modify-write", key, api.ErrInvalidArgument, errors.New("cannot write store root"))
	}
	handle, err := s.acquire("read-modify-write", key, full)
	if err != nil {
		return err
	}
	defer s.release(handle)

	exists, err := s.storage.Exists(full)
	if err != nil {
		return s.fail("read-modify-write", key, full, err)
	}
	if !exists {
		parent, err := s.acquire("read-modify-write", key, paths.ParentOf(full))
		if err != nil {
			return err
		}
		defer s.release(parent)
	}
	current, err := s.read("read-modify-write", key, full)
	if err != nil {
		return err
	}
	updated, err := transform(current)
	if err != nil {
		s.log.WithError(err).WithField("path", full).Debug("transform failed, nothing written")
		return err
	}
	return s.write("read-modify-write", key, full, updated, exists)
}

// ListContent returns sorted immediate children of key. It takes no locks.
func (s *Store) ListContent(key string) ([]string, error) {
	full, err := s.fullPath("list-content", key)
	if err != nil {
		return nil, err
	}
	names, err := s.storage.Children(full)
	if err != nil {
		return nil, s.fail("list-content", key, full, err)
	}
	content := make([]string, 0, len(names))
	for _, name := range names {
		content = append(content, paths.Child(key, name))
	}
	return content, nil
}

// DeleteContent removes key with all its children, locking its parent.
// Empty key removes all content, locking the root.
func (s *Store) DeleteContent(key string) error {
	full, err := s.fullPath("delete-content", key)
	if err != nil {
		return err
	}
	lockPath := paths.ParentOf(full)
	if full == s.root {
		lockPath = s.root
	}
	handle, err := s.acquire("delete-content", key, lockPath)
	if err != nil {
		return err
	}
	defer s.release(handle)
	if err := s.storage.RemoveAll(full); err != nil {
		return s.fail("delete-content", key, full, err)
	}
	return nil
}

// CreateDirectoriesLockParent only validates key: directories are implicit in key-value storages.
func (s *Store) CreateDirectoriesLockParent(key string) (api.Guard, error) {
	if _, err := s.fullPath("create-directories", key); err != nil {
		return nil, err
	}
	return api.Guards{}, nil
}

// LockFile acquires the lock of key.
func (s *Store) LockFile(key string) (api.Guard, error) {
	full, err := s.fullPath("lock-file", key)
	if err != nil {
		return nil, err
	}
	return s.acquire("lock-file", key, full)
}

// GetFullPath returns storage path of key.
func (s *Store) GetFullPath(key string) (string, error) {
	full, err := s.fullPath("get-full-path", key)
	if err != nil {
		return "", err
	}
	return full, nil
}
