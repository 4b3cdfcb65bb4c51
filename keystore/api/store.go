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

// Package api defines abstract cache key store interface.
package api

// PathSeparator used in keys.
const PathSeparator = "/"

// Transform computes new content of a key from its current content.
// Current content is empty if the key does not exist.
type Transform func(current []byte) ([]byte, error)

// Store persists opaque blobs under hierarchical relative keys.
//
// Keys use "/" or "\" as separators. Absolute keys are rejected with ErrInvalidArgument.
// Every operation tries each lock it needs exactly once: if the lock is held by
// anyone else (another goroutine or another process) the operation fails with
// ErrLockContention and it is up to the caller to retry.
type Store interface {
	// Read data stored at key.
	// Returns empty slice if key does not exist.
	Read(key string) ([]byte, error)
	// Write data at key, replacing previous content atomically.
	// Missing intermediate directories are created.
	Write(key string, data []byte) error
	// Delete key. Deleting a missing key is not an error.
	Delete(key string) error
	// ReadModifyWrite replaces content of key with the result of transform,
	// holding the key lock for the whole sequence.
	// Nothing is written if transform returns an error.
	ReadModifyWrite(key string, transform Transform) error

	// ListContent returns sorted immediate children of key as keys relative to the store root.
	// Returns empty list if key does not exist or is not a directory.
	ListContent(key string) ([]string, error)
	// DeleteContent removes key with all its content.
	// Empty key removes everything in the store but the root itself.
	DeleteContent(key string) error

	// CreateDirectoriesLockParent creates every missing directory down to key.
	// Returned guard holds locks on the directories created by this call.
	CreateDirectoriesLockParent(key string) (Guard, error)
	// LockFile acquires the lock of key for an explicit critical section.
	LockFile(key string) (Guard, error)

	// GetFullPath returns the location of key inside the store, for diagnostics.
	GetFullPath(key string) (string, error)
}
