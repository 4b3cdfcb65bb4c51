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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/cmd"
	"github.com/identityclient/cachekeystore/keystore/api"
)

func TestRedisLocker(t *testing.T) {
	client := cmd.NewTestRedisClient(t)
	testLocker(t, NewRedisLocker(client, 0))
}

func TestRedisLockerExpiration(t *testing.T) {
	client := cmd.NewTestRedisClient(t)
	locker := NewRedisLocker(client, 100*time.Millisecond)

	first, err := locker.TryAcquire("expiring")
	require.NoError(t, err)
	_, err = locker.TryAcquire("expiring")
	assert.ErrorIs(t, err, api.ErrLockContention)

	time.Sleep(300 * time.Millisecond)
	second, err := locker.TryAcquire("expiring")
	require.NoError(t, err)
	// expired owner must not remove the lock of the new one
	require.NoError(t, first.Release())
	_, err = locker.TryAcquire("expiring")
	assert.ErrorIs(t, err, api.ErrLockContention)
	require.NoError(t, second.Release())
}
