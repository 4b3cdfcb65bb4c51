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

package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/api/tests"
	"github.com/identityclient/cachekeystore/keystore/kv"
)

func newTestStore(t *testing.T, path string) *kv.Store {
	store, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestBoltStore(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		return newTestStore(t, filepath.Join(t.TempDir(), "cache.db"))
	})
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Write("a/b", []byte("persistent")))
	require.NoError(t, store.Write("a/c", []byte{}))
	require.NoError(t, store.Close())

	store = newTestStore(t, path)
	data, err := store.Read("a/b")
	require.NoError(t, err)
	assert.Equal(t, "persistent", string(data))
	content, err := store.ListContent("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b", "a/c"}, content)
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "cache.db"))
	assert.Error(t, err)
}
