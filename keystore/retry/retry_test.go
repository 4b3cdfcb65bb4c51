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

package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/api/tests"
	"github.com/identityclient/cachekeystore/keystore/memory"
)

// flakyStore fails Write and Read with given error a few times before passing calls through.
type flakyStore struct {
	api.Store
	err      error
	failures int
	calls    int
}

func (f *flakyStore) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return api.NewKeyError("test", "key", api.KindOf(f.err), f.err)
	}
	return nil
}

func (f *flakyStore) Write(key string, data []byte) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.Write(key, data)
}

func (f *flakyStore) Read(key string) ([]byte, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Store.Read(key)
}

func quickRetries(maxRetries uint64) Option {
	return WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxRetries)
	})
}

func TestRetryStore(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		// no retries: contention must still be reported
		return New(memory.New(), quickRetries(0))
	})
}

func TestRetriesContention(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(), err: api.ErrLockContention, failures: 3}
	s := New(flaky, quickRetries(5))
	require.NoError(t, s.Write("key", []byte("data")))
	assert.Equal(t, 4, flaky.calls)

	flaky.calls = 0
	data, err := s.Read("key")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, 4, flaky.calls)
}

func TestGivesUp(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(), err: api.ErrLockContention, failures: 10}
	s := New(flaky, quickRetries(2))
	err := s.Write("key", []byte("data"))
	assert.ErrorIs(t, err, api.ErrLockContention)
	assert.Equal(t, 3, flaky.calls)
}

func TestDoesNotRetryOtherErrors(t *testing.T) {
	flaky := &flakyStore{Store: memory.New(), err: api.ErrIOFailure, failures: 1}
	s := New(flaky, quickRetries(5))
	assert.ErrorIs(t, s.Write("key", []byte("data")), api.ErrIOFailure)
	assert.Equal(t, 1, flaky.calls)

	flaky.calls = 0
	s = New(flaky, quickRetries(5), RetryIOFailures())
	assert.NoError(t, s.Write("key", []byte("data")))
	assert.Equal(t, 2, flaky.calls)

	_, err := s.Read("/absolute")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestTransformErrorIsNotRetried(t *testing.T) {
	s := New(memory.New(), quickRetries(5))
	calls := 0
	transformErr := errors.New("transform failed")
	err := s.ReadModifyWrite("key", func(current []byte) ([]byte, error) {
		calls++
		return nil, transformErr
	})
	assert.ErrorIs(t, err, transformErr)
	assert.Equal(t, 1, calls)
}

func TestWaitsForReleasedLock(t *testing.T) {
	store := memory.New()
	guard, err := store.LockFile("key")
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		guard.Release()
	}()

	s := New(store, WithMaxElapsedTime(5*time.Second))
	require.NoError(t, s.Write("key", []byte("data")))
	data, err := store.Read("key")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
