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

// Package memory provides cache key store which keeps all data in memory.
// It is mostly useful for testing.
package memory

import (
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/keystore/kv"
	"github.com/identityclient/cachekeystore/keystore/lock"
	"github.com/identityclient/cachekeystore/logging"
)

const root = "memory"

// Storage keeps values in a map.
type Storage struct {
	storage map[string][]byte
	lock    sync.RWMutex
}

// NewStorage makes a new empty in-memory storage.
func NewStorage() *Storage {
	return &Storage{storage: make(map[string][]byte)}
}

// New makes a new empty in-memory store. Locks are shared by goroutines of this process only.
func New() *kv.Store {
	store, err := kv.NewStore(root, NewStorage(), lock.NewProcessLocker(), log.WithFields(log.Fields{
		"service":   logging.ServiceName,
		"subsystem": "memory-store",
	}))
	if err != nil {
		// root is a non-empty constant
		panic(err)
	}
	return store
}

// ReadFile returns a copy of stored data.
func (m *Storage) ReadFile(path string) ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	data, found := m.storage[path]
	if !found {
		return nil, os.ErrNotExist
	}
	return append([]byte{}, data...), nil
}

// WriteFile stores a copy of data.
func (m *Storage) WriteFile(path string, data []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.storage[path] = append([]byte{}, data...)
	return nil
}

// Exists checks whether a value is stored at path.
func (m *Storage) Exists(path string) (bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, found := m.storage[path]
	return found, nil
}

// Remove value at path.
func (m *Storage) Remove(path string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.storage, path)
	return nil
}

// RemoveAll removes value at path with all children.
func (m *Storage) RemoveAll(path string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	prefix := path + "/"
	for key := range m.storage {
		if key == path || strings.HasPrefix(key, prefix) {
			delete(m.storage, key)
		}
	}
	return nil
}

// Children returns immediate children of path.
func (m *Storage) Children(path string) ([]string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	keys := make([]string, 0, len(m.storage))
	for key := range m.storage {
		keys = append(keys, key)
	}
	return kv.ChildNames(path, keys), nil
}

// Close does nothing.
func (m *Storage) Close() error {
	return nil
}
