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

// Package retry wraps cache key store with retries of contended operations.
//
// Stores try every lock once and report contention to the caller. This
// decorator repeats such operations with exponential backoff until they
// succeed, fail for another reason or the backoff gives up.
package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/logging"
)

// Default backoff parameters.
const (
	DefaultInitialInterval = 10 * time.Millisecond
	DefaultMaxInterval     = 500 * time.Millisecond
	DefaultMaxElapsedTime  = 5 * time.Second
)

// Store retries operations of wrapped store.
type Store struct {
	store           api.Store
	newBackOff      func() backoff.BackOff
	retryIOFailures bool
	log             *log.Entry
}

// Option configures Store.
type Option func(*Store)

// WithBackOff sets backoff policy factory, called once per operation.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Store) {
		s.newBackOff = newBackOff
	}
}

// WithMaxElapsedTime limits the time spent on retries of one operation.
func WithMaxElapsedTime(maxElapsedTime time.Duration) Option {
	return func(s *Store) {
		s.newBackOff = func() backoff.BackOff {
			return newExponentialBackOff(maxElapsedTime)
		}
	}
}

// RetryIOFailures makes I/O failures retryable in addition to lock contention.
func RetryIOFailures() Option {
	return func(s *Store) {
		s.retryIOFailures = true
	}
}

func newExponentialBackOff(maxElapsedTime time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialInterval
	b.MaxInterval = DefaultMaxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Reset()
	return b
}

// New wraps store with retries.
func New(store api.Store, opts ...Option) *Store {
	s := &Store{
		store: store,
		newBackOff: func() backoff.BackOff {
			return newExponentialBackOff(DefaultMaxElapsedTime)
		},
		log: log.WithFields(log.Fields{"service": logging.ServiceName, "subsystem": "retry"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) retryable(err error) bool {
	return errors.Is(err, api.ErrLockContention) || (s.retryIOFailures && errors.Is(err, api.ErrIOFailure))
}

func (s *Store) retry(op, key string, operation func() error) error {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := operation()
		if err == nil || s.retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackOff(), func(err error, delay time.Duration) {
		s.log.WithError(err).WithFields(log.Fields{"op": op, "key": key, "delay": delay}).Debug("retrying operation")
	})
	if err != nil && s.retryable(err) {
		s.log.WithError(err).WithFields(log.Fields{"op": op, "key": key, "attempts": attempts}).Debug("giving up")
	}
	return err
}

// Read data stored at key.
func (s *Store) Read(key string) ([]byte, error) {
	var data []byte
	err := s.retry("read", key, func() error {
		var err error
		data, err = s.store.Read(key)
		return err
	})
	return data, err
}

// Write data at key.
func (s *Store) Write(key string, data []byte) error {
	return s.retry("write", key, func() error {
		return s.store.Write(key, data)
	})
}

// Delete key.
func (s *Store) Delete(key string) error {
	return s.retry("delete", key, func() error {
		return s.store.Delete(key)
	})
}

// ReadModifyWrite key. Transform may be called once per attempt.
func (s *Store) ReadModifyWrite(key string, transform api.Transform) error {
	return s.retry("read-modify-write", key, func() error {
		return s.store.ReadModifyWrite(key, transform)
	})
}

// ListContent of key.
func (s *Store) ListContent(key string) ([]string, error) {
	var content []string
	err := s.retry("list-content", key, func() error {
		var err error
		content, err = s.store.ListContent(key)
		return err
	})
	return content, err
}

// DeleteContent of key.
func (s *Store) DeleteContent(key string) error {
	return s.retry("delete-content", key, func() error {
		return s.store.DeleteContent(key)
	})
}

// CreateDirectoriesLockParent down to key.
func (s *Store) CreateDirectoriesLockParent(key string) (api.Guard, error) {
	var guard api.Guard
	err := s.retry("create-directories", key, func() error {
		var err error
		guard, err = s.store.CreateDirectoriesLockParent(key)
		return err
	})
	return guard, err
}

// LockFile of key.
func (s *Store) LockFile(key string) (api.Guard, error) {
	var guard api.Guard
	err := s.retry("lock-file", key, func() error {
		var err error
		guard, err = s.store.LockFile(key)
		return err
	})
	return guard, err
}

// GetFullPath of key. It never waits for locks.
func (s *Store) GetFullPath(key string) (string, error) {
	return s.store.GetFullPath(key)
}
