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

package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/keystore/api"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a/b/c", Normalize(`a\b\c`))
	assert.Equal(t, "a/b/c", Normalize(`a\b/c`))
	assert.Equal(t, "a/../b", Normalize(`a\..\b`))
	assert.Equal(t, "", Normalize(""))
}

func TestIsAbs(t *testing.T) {
	for _, path := range []string{"/a", `\a`, "C:", "c:/x", `D:\x`, "/"} {
		assert.True(t, IsAbs(path), path)
	}
	for _, path := range []string{"", "a", "a/b", "./a", "../a", "1:/x", "ab:c"} {
		assert.False(t, IsAbs(path), path)
	}
}

func TestJoin(t *testing.T) {
	testCases := []struct {
		base, key, full string
	}{
		{"/base", "a/b", "/base/a/b"},
		{"/base/", `a\b`, "/base/a/b"},
		{`C:\base`, `a\b`, "C:/base/a/b"},
		{"/base", "", "/base"},
		{"/base", "a/", "/base/a"},
		{"/", "a", "/a"},
		{"C:/", "a", "C:/a"},
		{"/base", "a/../b", "/base/a/../b"},
	}
	for _, tc := range testCases {
		full, err := Join(tc.base, tc.key)
		require.NoError(t, err)
		assert.Equal(t, tc.full, full, "Join(%q, %q)", tc.base, tc.key)
	}

	for _, key := range []string{"/a", `\a`, "C:/a"} {
		_, err := Join("/base", key)
		assert.ErrorIs(t, err, api.ErrInvalidArgument, key)
	}
}

func TestParentOf(t *testing.T) {
	testCases := []struct {
		path, parent string
	}{
		{"/a/b/c", "/a/b"},
		{"/a/b/c/", "/a/b"},
		{`\a\b`, "/a"},
		{"/x", "/"},
		{"/", ""},
		{"C:/x", "C:"},
		{"C:/", "C:"},
		{"C:", ""},
		{"a/b", "a"},
		{"a", ""},
		{"", ""},
		{"a/../b", "a/.."},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.parent, ParentOf(tc.path), "ParentOf(%q)", tc.path)
	}
}

func TestParentOfTerminates(t *testing.T) {
	for _, path := range []string{"/a/b/c", `C:\Users\x\cache`, "a/b", "//server/share/x", "////", ""} {
		current := path
		for i := 0; current != ""; i++ {
			require.Less(t, i, 100, "ParentOf loop did not terminate for %q", path)
			current = ParentOf(current)
		}
		assert.Equal(t, "", ParentOf(current))
	}
}

func TestLockNameOf(t *testing.T) {
	assert.Equal(t, LockPrefix+"/base/a/b", LockNameOf(`\base\a\b`))
	assert.Equal(t, LockNameOf("/base/a/b"), LockNameOf(`/base\a/b`))
	// lexical only: ".." is preserved
	assert.NotEqual(t, LockNameOf("/base/a/b/f"), LockNameOf("/base/a/x/../b/f"))
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Segments(`a\b//c/`))
	assert.Empty(t, Segments(""))
}

func TestRelAndChild(t *testing.T) {
	assert.Equal(t, "a/b", Rel("/base", "/base/a/b"))
	assert.Equal(t, "a", Rel("/base/", "/base/a"))
	assert.Equal(t, "", Rel("/base", "/other/a"))
	assert.Equal(t, "", Rel("/base", "/basement/a"))

	assert.Equal(t, "x/a.txt", Child(`x\`, "a.txt"))
	assert.Equal(t, "a.txt", Child("", "a.txt"))
}
