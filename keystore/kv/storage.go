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

package kv

import (
	"sort"
	"strings"

	"github.com/identityclient/cachekeystore/keystore/api"
)

// Storage is a flat key-value storage with "/"-separated paths.
// Hierarchy exists only in path names: a directory exists while it has children.
// Semantics of methods follow corresponding "os" functions where applicable.
type Storage interface {
	// ReadFile returns content at path, or an error matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces content at path.
	WriteFile(path string, data []byte) error
	// Exists checks whether a value is stored at path.
	Exists(path string) (bool, error)
	// Remove the value at path. Missing path is not an error.
	Remove(path string) error
	// RemoveAll removes the value at path with any children.
	RemoveAll(path string) error
	// Children returns names of immediate children of path, in any order.
	Children(path string) ([]string, error)
	// Close the storage, freeing associated resources.
	Close() error
}

// ChildNames extracts sorted unique immediate child names of dir from full paths of its descendants.
// Paths outside of dir are ignored.
func ChildNames(dir string, descendants []string) []string {
	prefix := dir + api.PathSeparator
	seen := make(map[string]struct{}, len(descendants))
	names := make([]string, 0, len(descendants))
	for _, path := range descendants {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		name := strings.TrimPrefix(path, prefix)
		if idx := strings.Index(name, api.PathSeparator); idx != -1 {
			name = name[:idx]
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
