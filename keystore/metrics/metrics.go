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

// Package metrics wraps cache key store with Prometheus metrics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/identityclient/cachekeystore/keystore/api"
)

// Labels and values of store metrics
const (
	LabelOperation = "operation"
	LabelStatus    = "status"

	LabelStatusSuccess    = "success"
	LabelStatusContention = "contention"
	LabelStatusFail       = "fail"
)

var (
	// OperationCounter collects count of store operations by result
	OperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachekeystore_operations_total",
			Help: "number of cache key store operations",
		}, []string{LabelOperation, LabelStatus})

	// OperationTimeHistogram collects duration of store operations
	OperationTimeHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cachekeystore_operation_seconds",
		Help:    "Time of cache key store operations",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{LabelOperation})
)

var registerLock = sync.Once{}

// RegisterStoreMetrics registers store metrics in default prometheus registry
func RegisterStoreMetrics() {
	registerLock.Do(func() {
		prometheus.MustRegister(OperationCounter)
		prometheus.MustRegister(OperationTimeHistogram)
	})
}

// Store collects metrics of wrapped store operations.
type Store struct {
	store api.Store
}

// New wraps store with metrics.
func New(store api.Store) *Store {
	return &Store{store: store}
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return LabelStatusSuccess
	case errors.Is(err, api.ErrLockContention):
		return LabelStatusContention
	default:
		return LabelStatusFail
	}
}

func observe(operation string, start time.Time, err error) {
	OperationCounter.WithLabelValues(operation, statusOf(err)).Inc()
	OperationTimeHistogram.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Read data stored at key.
func (s *Store) Read(key string) ([]byte, error) {
	start := time.Now()
	data, err := s.store.Read(key)
	observe("read", start, err)
	return data, err
}

// Write data at key.
func (s *Store) Write(key string, data []byte) error {
	start := time.Now()
	err := s.store.Write(key, data)
	observe("write", start, err)
	return err
}

// Delete key.
func (s *Store) Delete(key string) error {
	start := time.Now()
	err := s.store.Delete(key)
	observe("delete", start, err)
	return err
}

// ReadModifyWrite key.
func (s *Store) ReadModifyWrite(key string, transform api.Transform) error {
	start := time.Now()
	err := s.store.ReadModifyWrite(key, transform)
	observe("read-modify-write", start, err)
	return err
}

// ListContent of key.
func (s *Store) ListContent(key string) ([]string, error) {
	start := time.Now()
	content, err := s.store.ListContent(key)
	observe("list-content", start, err)
	return content, err
}

// DeleteContent of key.
func (s *Store) DeleteContent(key string) error {
	start := time.Now()
	err := s.store.DeleteContent(key)
	observe("delete-content", start, err)
	return err
}

// CreateDirectoriesLockParent down to key.
func (s *Store) CreateDirectoriesLockParent(key string) (api.Guard, error) {
	start := time.Now()
	guard, err := s.store.CreateDirectoriesLockParent(key)
	observe("create-directories", start, err)
	return guard, err
}

// LockFile of key.
func (s *Store) LockFile(key string) (api.Guard, error) {
	start := time.Now()
	guard, err := s.store.LockFile(key)
	observe("lock-file", start, err)
	return guard, err
}

// GetFullPath of key.
func (s *Store) GetFullPath(key string) (string, error) {
	return s.store.GetFullPath(key)
}
