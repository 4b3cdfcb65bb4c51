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
	"sync"
)

// ProcessLocker is a table of locks held by goroutines of the current process.
// Zero value is ready to use.
type ProcessLocker struct {
	mutex sync.Mutex
	held  map[string]struct{}
}

// NewProcessLocker creates an empty lock table.
func NewProcessLocker() *ProcessLocker {
	return &ProcessLocker{held: make(map[string]struct{})}
}

// TryAcquire marks name as held if nobody holds it yet.
func (l *ProcessLocker) TryAcquire(name string) (Handle, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.held == nil {
		l.held = make(map[string]struct{})
	}
	if _, ok := l.held[name]; ok {
		return nil, contention(name)
	}
	l.held[name] = struct{}{}
	return &processHandle{locker: l, name: name}, nil
}

// Held reports whether name is currently held in this table.
func (l *ProcessLocker) Held(name string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	_, ok := l.held[name]
	return ok
}

func (l *ProcessLocker) release(name string) {
	l.mutex.Lock()
	delete(l.held, name)
	l.mutex.Unlock()
}

type processHandle struct {
	locker *ProcessLocker
	name   string
	once   sync.Once
}

func (h *processHandle) Name() string {
	return h.name
}

func (h *processHandle) Release() error {
	h.once.Do(func() {
		h.locker.release(h.name)
	})
	return nil
}
