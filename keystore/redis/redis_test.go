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

package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/cmd"
	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/api/tests"
)

func TestRedisStore(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		client := cmd.NewTestRedisClient(t)
		store, err := New(client, "", 0)
		if err != nil {
			t.Fatalf("New(): %v", err)
		}
		return store
	})
}

func TestGlobCharactersInKeys(t *testing.T) {
	client := cmd.NewTestRedisClient(t)
	s, err := New(client, "glob[root]", 0)
	require.NoError(t, err)

	require.NoError(t, s.Write("dir*/a?", []byte("a")))
	require.NoError(t, s.Write("dirx/b", []byte("b")))

	content, err := s.ListContent("dir*")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir*/a?"}, content)

	require.NoError(t, s.DeleteContent("dir*"))
	data, err := s.Read("dirx/b")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestValuesAreEncoded(t *testing.T) {
	client := cmd.NewTestRedisClient(t)
	s, err := New(client, "encoded", 0)
	require.NoError(t, err)
	require.NoError(t, s.Write("key", []byte{0, 1, 2}))

	raw, err := client.Get("encoded/key").Result()
	require.NoError(t, err)
	assert.Equal(t, "AAEC", raw)
}
