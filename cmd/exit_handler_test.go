//go:build unix

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
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalHandlerOrder(t *testing.T) {
	handler := NewSignalHandler([]os.Signal{syscall.SIGUSR1})

	var results []string
	handler.AddCallback(NewSignalCallback(func() { results = append(results, "last") }, Last))
	handler.AddCallback(NewSignalCallback(func() { results = append(results, "stub1") }, Indifferent))
	handler.AddCallback(NewSignalCallback(func() { results = append(results, "stub2") }, Indifferent))
	assert.Panics(t, func() {
		handler.AddCallback(NewSignalCallback(func() {}, Last))
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	handler.AddListener(listener)

	go func() {
		time.Sleep(time.Millisecond * 50)
		process, err := os.FindProcess(os.Getpid())
		if err != nil {
			return
		}
		process.Signal(syscall.SIGUSR1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	received := handler.Wait(ctx)
	assert.Equal(t, syscall.SIGUSR1, received)
	assert.Equal(t, []string{"stub1", "stub2", "last"}, results)

	_, err = listener.Accept()
	assert.Error(t, err, "listener should be closed")
}

func TestSignalHandlerContext(t *testing.T) {
	handler := NewSignalHandler([]os.Signal{syscall.SIGUSR2})
	called := false
	handler.AddCallback(NewSignalCallback(func() { called = true }, Indifferent))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Nil(t, handler.Wait(ctx))
	assert.True(t, called)
}
