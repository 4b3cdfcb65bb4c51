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

// Package filesystem implements cache key store in a directory hierarchy.
//
// Every key is a file below the base directory. Operations take the locks of
// the key and, when they change the set of entries of a directory, of its
// parent. Locks are named after full paths, so every store instance and every
// process using the same base directory and lock directory share them.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/lock"
	"github.com/identityclient/cachekeystore/keystore/paths"
	"github.com/identityclient/cachekeystore/logging"
)

const subsystemName = "filesystem-store"

// Permissions used to create new files and directories.
const (
	defaultDirPerm  = os.FileMode(0700)
	defaultFilePerm = os.FileMode(0600)
)

// Temporary files of unfinished writes start with this prefix and are never listed.
const tempFilePrefix = ".cachekeystore-tmp-"

const (
	opRead            = "read"
	opWrite           = "write"
	opDelete          = "delete"
	opReadModifyWrite = "read-modify-write"
	opListContent     = "list-content"
	opDeleteContent   = "delete-content"
	opCreateDirs      = "create-directories"
	opLockFile        = "lock-file"
	opGetFullPath     = "get-full-path"
)

// Store keeps blobs in files under base directory.
type Store struct {
	base     string
	locker   lock.Locker
	dirPerm  os.FileMode
	filePerm os.FileMode
	log      *log.Entry
}

// Option configures Store.
type Option func(*options)

type options struct {
	locker   lock.Locker
	lockDir  string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// WithLocker makes store use given locker instead of FileLocker.
func WithLocker(locker lock.Locker) Option {
	return func(o *options) {
		o.locker = locker
	}
}

// WithLockDirectory sets directory of FileLocker lock files.
// All processes sharing a base directory must use the same lock directory.
// Without it lock.DefaultLockDirectory is used. That directory lives in the
// system temp dir, so temp cleaners may remove it, and its lock files are
// created with 0600 permissions: a process of another OS user gets
// ErrPermissionDenied instead of ErrLockContention there. Set a lock directory
// writable by every user of the base directory when they differ.
func WithLockDirectory(dir string) Option {
	return func(o *options) {
		o.lockDir = dir
	}
}

// WithPermissions sets permissions of created directories and files.
func WithPermissions(dirPerm, filePerm os.FileMode) Option {
	return func(o *options) {
		o.dirPerm = dirPerm
		o.filePerm = filePerm
	}
}

// New creates store at given absolute base path.
// Base directory is not created until the first write.
func New(basePath string, opts ...Option) (*Store, error) {
	storeLog := log.WithFields(log.Fields{
		"service":   logging.ServiceName,
		"subsystem": subsystemName,
	})
	if basePath == "" || !filepath.IsAbs(basePath) {
		storeLog.WithField("path", basePath).Debug("base path must be absolute")
		return nil, api.NewKeyError("open", basePath, api.ErrInvalidArgument, errors.New("base path must be absolute"))
	}
	config := options{dirPerm: defaultDirPerm, filePerm: defaultFilePerm}
	for _, opt := range opts {
		opt(&config)
	}
	locker := config.locker
	if locker == nil {
		fileLocker, err := lock.NewFileLocker(config.lockDir)
		if err != nil {
			storeLog.WithError(err).WithField("path", config.lockDir).Debug("failed to create lock directory")
			return nil, api.Classify("open", basePath, err)
		}
		locker = fileLocker
	}
	return &Store{
		base:     paths.Key(basePath),
		locker:   locker,
		dirPerm:  config.dirPerm,
		filePerm: config.filePerm,
		log:      storeLog.WithField("base", basePath),
	}, nil
}

// osPath converts full store path into native OS path.
func osPath(full string) string {
	return filepath.FromSlash(full)
}

// isMissing reports errors meaning that the path does not exist,
// including the case when one of its ancestors is a file.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func (s *Store) fullPath(op, key string) (string, error) {
	full, err := paths.Join(s.base, key)
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
	full, err := s.fullPath(opRead, key)
	if err != nil {
		return nil, err
	}
	handle, err := s.acquire(opRead, key, full)
	if err != nil {
		return nil, err
	}
	defer s.release(handle)
	return s.read(opRead, key, full)
}

func (s *Store) read(op, key, full string) ([]byte, error) {
	data, err := os.ReadFile(osPath(full))
	if err != nil {
		if isMissing(err) {
			return []byte{}, nil
		}
		return nil, s.fail(op, key, full, err)
	}
	return data, nil
}

// Write data at key. The parent directory is locked too when the key is created.
func (s *Store) Write(key string, data []byte) error {
	full, err := s.fullPath(opWrite, key)
	if err != nil {
		return err
	}
	if full == s.base {
		return api.NewKeyError(opWrite, key, api.ErrInvalidArgument, errors.New("cannot write store root"))
	}
	handle, err := s.acquire(opWrite, key, full)
	if err != nil {
		return err
	}
	defer s.release(handle)

	if _, err := os.Lstat(osPath(full)); err != nil {
		if !isMissing(err) {
			return s.fail(opWrite, key, full, err)
		}
		parent, err := s.acquire(opWrite, key, paths.ParentOf(full))
		if err != nil {
			return err
		}
		defer s.release(parent)
	}
	return s.write(opWrite, key, full, data)
}

// write replaces the file atomically: data goes to a temporary file in the same
// directory which is synced and renamed over the target.
func (s *Store) write(op, key, full string, data []byte) error {
	target := osPath(full)
	if fi, err := os.Stat(target); err == nil {
		if fi.IsDir() {
			return s.fail(op, key, full, fmt.Errorf("%s is a directory", target))
		}
		// rename(2) replaces read-only files, so check write permission explicitly
		if fi.Mode().Perm()&0200 == 0 {
			return s.fail(op, key, full, &fs.PathError{Op: "write", Path: target, Err: fs.ErrPermission})
		}
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return s.fail(op, key, full, err)
	}
	temp, err := os.CreateTemp(dir, tempFilePrefix+filepath.Base(target)+"-*")
	if err != nil {
		return s.fail(op, key, full, err)
	}
	tempName := temp.Name()
	// clean up if something goes wrong
	committed := false
	defer func() {
		if !committed {
			temp.Close()
			os.Remove(tempName)
		}
	}()
	if _, err := temp.Write(data); err != nil {
		return s.fail(op, key, full, err)
	}
	if err := temp.Sync(); err != nil {
		return s.fail(op, key, full, err)
	}
	if err := temp.Chmod(s.filePerm); err != nil {
		return s.fail(op, key, full, err)
	}
	if err := temp.Close(); err != nil {
		return s.fail(op, key, full, err)
	}
	if err := os.Rename(tempName, target); err != nil {
		return s.fail(op, key, full, err)
	}
	committed = true
	return nil
}

// Delete key, locking both the key and its parent directory.
func (s *Store) Delete(key string) error {
	full, err := s.fullPath(opDelete, key)
	if err != nil {
		return err
	}
	if full == s.base {
		return api.NewKeyError(opDelete, key, api.ErrInvalidArgument, errors.New("cannot delete store root, use DeleteContent"))
	}
	handle, err := s.acquire(opDelete, key, full)
	if err != nil {
		return err
	}
	defer s.release(handle)
	parent, err := s.acquire(opDelete, key, paths.ParentOf(full))
	if err != nil {
		return err
	}
	defer s.release(parent)

	if err := os.Remove(osPath(full)); err != nil && !isMissing(err) {
		return s.fail(opDelete, key, full, err)
	}
	return nil
}

// ReadModifyWrite replaces content of key with transformed content under the key lock.
// The parent directory is locked too when the key is created.
func (s *Store) ReadModifyWrite(key string, transform api.Transform) error {
	full, err := s.fullPath(opReadModifyWrite, key)
	if err != nil {
		return err
	}
	if full == s.base {
		return api.NewKeyError(opReadModifyWrite, key, api.ErrInvalidArgument, errors.New("cannot write store root"))
	}
	handle, err := s.acquire(opReadModifyWrite, key, full)
	if err != nil {
		return err
	}
	defer s.release(handle)

	if _, err := os.Lstat(osPath(full)); err != nil {
		if !isMissing(err) {
			return s.fail(opReadModifyWrite, key, full, err)
		}
		parent, err := s.acquire(opReadModifyWrite, key, paths.ParentOf(full))
		if err != nil {
			return err
		}
		defer s.release(parent)
	}

	current, err := s.read(opReadModifyWrite, key, full)
	if err != nil {
		return err
	}
	updated, err := transform(current)
	if err != nil {
		s.log.WithError(err).WithField("path", full).Debug("transform failed, nothing written")
		return err
	}
	return s.write(opReadModifyWrite, key, full, updated)
}

// ListContent returns sorted immediate children of key. It takes no locks.
func (s *Store) ListContent(key string) ([]string, error) {
	full, err := s.fullPath(opListContent, key)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(osPath(full))
	if err != nil {
		if isMissing(err) {
			return []string{}, nil
		}
		// ReadDir of a regular file fails on some systems with other errors than ENOTDIR
		if fi, statErr := os.Stat(osPath(full)); statErr == nil && !fi.IsDir() {
			return []string{}, nil
		}
		return nil, s.fail(opListContent, key, full, err)
	}
	content := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), tempFilePrefix) {
			continue
		}
		content = append(content, paths.Child(key, entry.Name()))
	}
	return content, nil
}

// DeleteContent removes key with everything below it, locking its parent.
// Empty key removes all content of the store, locking the base path.
func (s *Store) DeleteContent(key string) error {
	full, err := s.fullPath(opDeleteContent, key)
	if err != nil {
		return err
	}
	lockPath := paths.ParentOf(full)
	if full == s.base {
		lockPath = s.base
	}
	handle, err := s.acquire(opDeleteContent, key, lockPath)
	if err != nil {
		return err
	}
	defer s.release(handle)

	if full != s.base {
		if err := os.RemoveAll(osPath(full)); err != nil {
			return s.fail(opDeleteContent, key, full, err)
		}
		return nil
	}
	entries, err := os.ReadDir(osPath(full))
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return s.fail(opDeleteContent, key, full, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(osPath(full), entry.Name())); err != nil {
			return s.fail(opDeleteContent, key, full, err)
		}
	}
	return nil
}

// CreateDirectoriesLockParent creates every missing directory from the base path down to key.
//
// The base path is created if needed but never locked. Segments which already exist are skipped. A missing segment is locked before it is created,
// if its lock is held by a concurrent creator the segment is created without the lock.
// Returned guard holds the locks of segments created by this call.
func (s *Store) CreateDirectoriesLockParent(key string) (api.Guard, error) {
	if _, err := s.fullPath(opCreateDirs, key); err != nil {
		return nil, err
	}
	// the base path itself is created without locking
	if err := os.MkdirAll(osPath(s.base), s.dirPerm); err != nil {
		return nil, s.fail(opCreateDirs, key, s.base, err)
	}
	var guards api.Guards
	current := s.base
	for _, segment := range paths.Segments(key) {
		next, err := paths.Join(current, segment)
		if err != nil {
			guards.Release()
			return nil, api.NewKeyError(opCreateDirs, key, api.ErrInvalidArgument, err)
		}
		current = next
		handle, err := s.createDirectory(key, current)
		if err != nil {
			guards.Release()
			return nil, err
		}
		if handle != nil {
			guards = append(guards, handle)
		}
	}
	return guards, nil
}

func (s *Store) createDirectory(key, full string) (lock.Handle, error) {
	dir := osPath(full)
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil, nil
		}
		return nil, s.fail(opCreateDirs, key, full, &fs.PathError{Op: "mkdir", Path: dir, Err: syscall.ENOTDIR})
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, s.fail(opCreateDirs, key, full, err)
	}
	handle, err := s.locker.TryAcquire(paths.LockNameOf(full))
	if err != nil {
		if !errors.Is(err, api.ErrLockContention) {
			return nil, s.fail(opCreateDirs, key, full, err)
		}
		s.log.WithField("path", full).Debug("directory is being created concurrently")
		handle = nil
	}
	if err := os.Mkdir(dir, s.dirPerm); err != nil {
		if handle != nil {
			s.release(handle)
		}
		if errors.Is(err, fs.ErrExist) {
			if fi, statErr := os.Stat(dir); statErr == nil && fi.IsDir() {
				return nil, nil
			}
		}
		return nil, s.fail(opCreateDirs, key, full, err)
	}
	return handle, nil
}

// LockFile acquires the lock of key.
func (s *Store) LockFile(key string) (api.Guard, error) {
	full, err := s.fullPath(opLockFile, key)
	if err != nil {
		return nil, err
	}
	return s.acquire(opLockFile, key, full)
}

// GetFullPath returns native path of key.
func (s *Store) GetFullPath(key string) (string, error) {
	full, err := s.fullPath(opGetFullPath, key)
	if err != nil {
		return "", err
	}
	return osPath(full), nil
}

// BasePath returns the base directory of the store.
func (s *Store) BasePath() string {
	return osPath(s.base)
}

// GetParentPath returns parent of a full path, see paths.ParentOf.
func GetParentPath(path string) string {
	return paths.ParentOf(path)
}
