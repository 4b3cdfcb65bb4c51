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

// Package redis provides cache key store which keeps data in Redis.
//
// Every key is a Redis string named by its full path, values are base64-encoded.
// Locks are Redis keys too, so the store is shared by all clients of the server.
package redis

import (
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v7"
	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/keystore/kv"
	"github.com/identityclient/cachekeystore/keystore/lock"
	"github.com/identityclient/cachekeystore/logging"
)

const subsystemName = "redis-store"

// DefaultRoot is the key prefix used when none is configured.
const DefaultRoot = "cachekeystore"

const (
	noExpiration = 0
	scanCount    = 100
)

// Storage keeps values in Redis.
type Storage struct {
	client *redis.Client
}

// NewStorage wraps Redis client.
func NewStorage(client *redis.Client) *Storage {
	return &Storage{client: client}
}

// New creates store with keys below given root in Redis.
// Locks expire after lockDuration, non-positive value selects lock.DefaultRedisLockDuration.
func New(client *redis.Client, root string, lockDuration time.Duration) (*kv.Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	logger := log.WithFields(log.Fields{"service": logging.ServiceName, "subsystem": subsystemName})
	if err := client.Ping().Err(); err != nil {
		logger.WithError(err).Debug("failed to ping Redis")
		return nil, err
	}
	return kv.NewStore(root, NewStorage(client), lock.NewRedisLocker(client, lockDuration), logger)
}

// Storage users expect errors compatible with os.IsNotExist().
func fixupENOENT(err error) error {
	if err == redis.Nil {
		return os.ErrNotExist
	}
	return err
}

// ReadFile reads entire value at path.
func (r *Storage) ReadFile(path string) ([]byte, error) {
	b64, err := r.client.Get(path).Result()
	if err != nil {
		return nil, fixupENOENT(err)
	}
	return base64.StdEncoding.DecodeString(b64)
}

// WriteFile replaces value at path.
func (r *Storage) WriteFile(path string, data []byte) error {
	b64 := base64.StdEncoding.EncodeToString(data)
	return r.client.Set(path, b64, noExpiration).Err()
}

// Exists checks whether a value is stored at path.
func (r *Storage) Exists(path string) (bool, error) {
	count, err := r.client.Exists(path).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Remove value at path.
func (r *Storage) Remove(path string) error {
	return r.client.Del(path).Err()
}

// RemoveAll removes value at path with all children.
func (r *Storage) RemoveAll(path string) error {
	// There might be no child elements at all, or there might be no key named "path".
	// RemoveAll only ensures that neither "${path}" nor any "${path}/*" refers to anything anymore.
	keys, err := r.descendants(path)
	if err != nil {
		return err
	}
	keys = append(keys, path)
	return r.client.Del(keys...).Err()
}

// Children returns immediate children of path.
func (r *Storage) Children(path string) ([]string, error) {
	keys, err := r.descendants(path)
	if err != nil {
		return nil, err
	}
	// Scan traverses all 'subdirectories' too, ChildNames keeps direct children only.
	return kv.ChildNames(path, keys), nil
}

func (r *Storage) descendants(path string) ([]string, error) {
	keys := make([]string, 0)
	pattern := globEscaper.Replace(path) + "/*"
	var cursor uint64
	for {
		nextKeys, nextCursor, err := r.client.Scan(cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		cursor = nextCursor
		keys = append(keys, nextKeys...)
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Close the client.
func (r *Storage) Close() error {
	return r.client.Close()
}

// SCAN patterns are globs, paths must match literally.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
