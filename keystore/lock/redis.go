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
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	goRedis "github.com/go-redis/redis/v7"
	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/logging"
)

// DefaultRedisLockDuration limits how long a Redis lock survives a crashed owner.
const DefaultRedisLockDuration = 30 * time.Second

const lockTokenSize = 16

// Delete the lock only if it still carries our token: after expiration it may belong to somebody else.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLocker keeps named locks in Redis.
//
// See https://redis.io/commands/set#patterns for how we implement basic locking.
// Locks expire after configured duration so that a crashed owner does not block others forever.
type RedisLocker struct {
	redis    *goRedis.Client
	duration time.Duration
	log      *log.Entry
}

// NewRedisLocker creates lock table over Redis client.
// Non-positive duration selects DefaultRedisLockDuration.
func NewRedisLocker(client *goRedis.Client, duration time.Duration) *RedisLocker {
	if duration <= 0 {
		duration = DefaultRedisLockDuration
	}
	return &RedisLocker{
		redis:    client,
		duration: duration,
		log:      log.WithFields(log.Fields{"service": logging.ServiceName, "subsystem": "redis-lock"}),
	}
}

// TryAcquire sets lock key in Redis unless it already exists.
func (l *RedisLocker) TryAcquire(name string) (Handle, error) {
	token := make([]byte, lockTokenSize)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	tokenString := hex.EncodeToString(token)
	locked, err := l.redis.SetNX(name, tokenString, l.duration).Result()
	if err != nil {
		l.log.WithError(err).WithField("lock", name).Debug("Failed to acquire Redis lock")
		return nil, err
	}
	if !locked {
		return nil, contention(name)
	}
	return &redisHandle{locker: l, name: name, token: tokenString}, nil
}

type redisHandle struct {
	locker *RedisLocker
	name   string
	token  string
	once   sync.Once
	err    error
}

func (h *redisHandle) Name() string {
	return h.name
}

func (h *redisHandle) Release() error {
	h.once.Do(func() {
		log := h.locker.log.WithField("lock", h.name)
		released, err := h.locker.redis.Eval(releaseScript, []string{h.name}, h.token).Int64()
		if err != nil {
			log.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReleaseLock).Debug("Failed to release Redis lock")
			h.err = err
			return
		}
		if released != 1 {
			log.Warn("Releasing expired Redis lock")
		}
	})
	return h.err
}
