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

package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/logging"
)

const (
	lockDirPerm  = 0700
	lockFilePerm = 0600
	lockFileExt  = ".lock"
)

// DefaultLockDirectory is used by FileLocker when no directory is configured.
// It is shared by all users of the host, but lock files are readable and
// writable by their creator only.
func DefaultLockDirectory() string {
	return filepath.Join(os.TempDir(), "cachekeystore-locks")
}

var errWouldBlock = errors.New("file is locked by another process")

// OS file locks do not serialize goroutines of one process: flock(2) locks
// belong to the open file description and LockFileEx locks to the process.
// All FileLockers of the process share this table keyed by lock file path,
// so that two lockers over the same directory exclude each other too.
var processFileLocks = NewProcessLocker()

// FileLocker is an interprocess lock table.
//
// Every lock name maps to a file in the lock directory named by SHA-256 of the lock name,
// which is locked with flock(2) on Unix and LockFileEx on Windows.
// These are advisory locks: they exclude cooperating processes only.
// Lock files are never removed, removing a lock file while another process holds it
// would let a third process lock a fresh file with the same name.
type FileLocker struct {
	dir string
	log *log.Entry
}

// NewFileLocker creates lock table in given directory, creating it if needed.
func NewFileLocker(dir string) (*FileLocker, error) {
	if dir == "" {
		dir = DefaultLockDirectory()
	}
	if err := os.MkdirAll(dir, lockDirPerm); err != nil {
		return nil, err
	}
	return &FileLocker{
		dir: dir,
		log: log.WithFields(log.Fields{"service": logging.ServiceName, "subsystem": "file-lock"}),
	}, nil
}

// Directory with lock files.
func (l *FileLocker) Directory() string {
	return l.dir
}

func (l *FileLocker) lockPath(name string) string {
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(l.dir, hex.EncodeToString(sum[:])+lockFileExt)
}

// TryAcquire locks name for this goroutine, failing immediately if any goroutine
// of any process holds it.
func (l *FileLocker) TryAcquire(name string) (Handle, error) {
	path := l.lockPath(name)
	local, err := processFileLocks.TryAcquire(path)
	if err != nil {
		return nil, contention(name)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err != nil {
		local.Release()
		l.log.WithError(err).WithField("path", path).Debug("Failed to open lock file")
		return nil, err
	}
	if err := tryLockFile(file); err != nil {
		file.Close()
		local.Release()
		if errors.Is(err, errWouldBlock) {
			return nil, contention(name)
		}
		l.log.WithError(err).WithField("path", path).Debug("Failed to lock file")
		return nil, err
	}
	return &fileHandle{name: name, path: path, file: file, local: local, log: l.log}, nil
}

type fileHandle struct {
	name  string
	path  string
	file  *os.File
	local Handle
	log   *log.Entry
	once  sync.Once
	err   error
}

func (h *fileHandle) Name() string {
	return h.name
}

func (h *fileHandle) Release() error {
	h.once.Do(func() {
		log := h.log.WithField("path", h.path)
		// Closing the file drops the OS lock even if unlock failed.
		if err := unlockFile(h.file); err != nil {
			log.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReleaseLock).Warn("Failed to unlock file")
			h.err = err
		}
		if err := h.file.Close(); err != nil {
			log.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReleaseLock).Warn("Failed to close lock file")
			if h.err == nil {
				h.err = err
			}
		}
		h.local.Release()
	})
	return h.err
}
