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

package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/api/tests"
)

func TestMemoryStore(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		return New()
	})
}

func TestStructuralConflicts(t *testing.T) {
	s := New()
	require.NoError(t, s.Write("x", []byte("file")))
	assert.ErrorIs(t, s.Write("x/y", []byte("below file")), api.ErrIOFailure)

	require.NoError(t, s.Write("dir/file", []byte("data")))
	assert.ErrorIs(t, s.Write("dir", []byte("over directory")), api.ErrIOFailure)
}

func TestStoredDataIsCopied(t *testing.T) {
	s := New()
	data := []byte("original")
	require.NoError(t, s.Write("key", data))
	data[0] = 'X'

	read, err := s.Read("key")
	require.NoError(t, err)
	assert.Equal(t, "original", string(read))
	read[0] = 'Y'

	again, err := s.Read("key")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestFullPath(t *testing.T) {
	s := New()
	full, err := s.GetFullPath(`a\b`)
	require.NoError(t, err)
	assert.Equal(t, "memory/a/b", full)
}
