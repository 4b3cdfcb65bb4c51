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

package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
)

// Priority of signal callbacks
type Priority int

// Callback priorities. Only one callback may be Last.
const (
	Indifferent Priority = iota
	Last
)

// SignalCallback is a callback with priority called on exit signal
type SignalCallback struct {
	callbackFunc func()
	priority     Priority
}

// NewSignalCallback creates a callback with priority
func NewSignalCallback(callback func(), priority Priority) SignalCallback {
	return SignalCallback{callbackFunc: callback, priority: priority}
}

// SignalHandler closes listeners and calls registered callbacks on exit signals
type SignalHandler struct {
	mutex     sync.Mutex
	listeners []net.Listener
	callbacks []SignalCallback
	signals   []os.Signal
}

// NewSignalHandler returns new SignalHandler registered for particular os.Signals
func NewSignalHandler(handledSignals []os.Signal) *SignalHandler {
	return &SignalHandler{signals: handledSignals}
}

// AddListener to listeners list
func (handler *SignalHandler) AddListener(listener net.Listener) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	handler.listeners = append(handler.listeners, listener)
}

// AddCallback to callbacks list
func (handler *SignalHandler) AddCallback(callback SignalCallback) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()
	if callback.priority == Last {
		for _, c := range handler.callbacks {
			if c.priority == Last {
				panic("callback with 'Last' priority has been already specified")
			}
		}
	}
	handler.callbacks = append(handler.callbacks, callback)
}

// Wait blocks until one of handled signals or ctx cancellation, then finalizes
// listeners and callbacks. Returns received signal or nil on cancellation.
func (handler *SignalHandler) Wait(ctx context.Context) os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, handler.signals...)
	defer signal.Stop(ch)

	var received os.Signal
	select {
	case received = <-ch:
	case <-ctx.Done():
	}
	handler.Finalize()
	return received
}

// Register should be called as goroutine. Exits process after signal.
func (handler *SignalHandler) Register() {
	handler.Wait(context.Background())
	os.Exit(0)
}

// Finalize closes all listeners and executes callbacks, Last priority callback is called at the end
func (handler *SignalHandler) Finalize() {
	handler.mutex.Lock()
	listeners, callbacks := handler.listeners, handler.callbacks
	handler.listeners, handler.callbacks = nil, nil
	handler.mutex.Unlock()

	for _, listener := range listeners {
		listener.Close()
	}
	var last *SignalCallback
	for i := range callbacks {
		if callbacks[i].priority == Last {
			last = &callbacks[i]
			continue
		}
		callbacks[i].callbackFunc()
	}
	if last != nil {
		last.callbackFunc()
	}
}
