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

// Package lock provides named exclusive locks which are tried exactly once.
//
// A lock is identified by an arbitrary string name. Acquisition never waits:
// if the name is already held, TryAcquire fails with an error matching
// api.ErrLockContention and the caller decides whether to retry.
//
// ProcessLocker serializes goroutines of one process. FileLocker extends it to
// all processes on the host with advisory OS file locks, RedisLocker to all
// clients of a Redis server.
package lock

import (
	"fmt"

	"github.com/identityclient/cachekeystore/keystore/api"
)

// Handle represents ownership of a named lock.
type Handle interface {
	// Name of the held lock.
	Name() string
	// Release the lock. Subsequent calls do nothing.
	Release() error
}

// Locker acquires named locks.
type Locker interface {
	// TryAcquire makes a single attempt to acquire named lock.
	TryAcquire(name string) (Handle, error)
}

func contention(name string) error {
	return fmt.Errorf("%w: %s", api.ErrLockContention, name)
}
