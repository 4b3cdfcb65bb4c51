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

// Package paths converts store keys into full paths and lock names.
//
// All functions are lexical: "." and ".." are never resolved and the filesystem is never consulted.
// Full paths always use "/" as separator, stores convert them with filepath.FromSlash before
// passing to the OS.
package paths

import (
	"fmt"
	"strings"

	"github.com/identityclient/cachekeystore/keystore/api"
)

// LockPrefix starts every lock name.
const LockPrefix = "cachekeystore-lock:"

const separator = api.PathSeparator

// Both "/" and "\" are accepted as separators in keys, on any OS.
var pathSeparators = strings.NewReplacer("\\", separator)

// Normalize replaces "\" separators with "/".
func Normalize(path string) string {
	return pathSeparators.Replace(path)
}

// IsAbs reports whether path starts with a separator or a drive letter.
func IsAbs(path string) bool {
	path = Normalize(path)
	return strings.HasPrefix(path, separator) || hasDrive(path)
}

func hasDrive(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}
	c := path[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// trimTrailing removes trailing separators but keeps root ("/", "C:/") intact.
func trimTrailing(path string) string {
	for len(path) > 1 && strings.HasSuffix(path, separator) {
		if len(path) == 3 && hasDrive(path) {
			break
		}
		path = path[:len(path)-1]
	}
	return path
}

// Key returns normalized key without trailing separators.
func Key(key string) string {
	return trimTrailing(Normalize(key))
}

// Join appends key to base.
// Returns ErrInvalidArgument if key is absolute. Empty key yields base itself.
func Join(base, key string) (string, error) {
	if IsAbs(key) {
		return "", fmt.Errorf("%w: key %q is absolute", api.ErrInvalidArgument, key)
	}
	base = Key(base)
	key = Key(key)
	if key == "" {
		return base, nil
	}
	if strings.HasSuffix(base, separator) {
		return base + key, nil
	}
	return base + separator + key, nil
}

// ParentOf returns path without its last element.
//
// Trailing separators are ignored. ParentOf("/x") is "/", while the parent of a root
// ("/", "C:") or of a single relative element is empty string.
// Repeated application always ends with empty string.
func ParentOf(path string) string {
	path = Key(path)
	idx := strings.LastIndex(path, separator)
	switch {
	case idx < 0:
		return ""
	case idx == 0:
		if len(path) == 1 {
			return ""
		}
		return separator
	default:
		return path[:idx]
	}
}

// LockNameOf returns name of the lock which guards path.
func LockNameOf(path string) string {
	return LockPrefix + Normalize(path)
}

// Segments splits key into its non-empty elements.
func Segments(key string) []string {
	parts := strings.Split(Normalize(key), separator)
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Rel returns full path relative to base, or empty string if full is not inside base.
func Rel(base, full string) string {
	base = Key(base)
	full = Key(full)
	if !strings.HasSuffix(base, separator) {
		base += separator
	}
	if !strings.HasPrefix(full, base) {
		return ""
	}
	return full[len(base):]
}

// Child returns key of the element name inside key.
func Child(key, name string) string {
	key = Key(key)
	if key == "" {
		return name
	}
	return key + separator + name
}
