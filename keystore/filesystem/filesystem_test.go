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

package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/api/tests"
	"github.com/identityclient/cachekeystore/keystore/lock"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	base := filepath.Join(t.TempDir(), "store")
	opts = append([]Option{WithLockDirectory(t.TempDir())}, opts...)
	s, err := New(base, opts...)
	require.NoError(t, err)
	return s
}

func TestFilesystemStore(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		return newTestStore(t)
	})
}

func TestFilesystemStoreWithProcessLocker(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		return newTestStore(t, WithLocker(lock.NewProcessLocker()))
	})
}

func TestNewInvalidBasePath(t *testing.T) {
	for _, base := range []string{"", "relative/path", "."} {
		_, err := New(base, WithLocker(lock.NewProcessLocker()))
		assert.ErrorIs(t, err, api.ErrInvalidArgument, base)
	}
}

func TestBaseCreatedOnFirstWrite(t *testing.T) {
	s := newTestStore(t)
	_, err := os.Stat(s.BasePath())
	require.True(t, os.IsNotExist(err))

	data, err := s.Read("key")
	require.NoError(t, err)
	assert.Empty(t, data)
	content, err := s.ListContent("")
	require.NoError(t, err)
	assert.Empty(t, content)
	require.NoError(t, s.DeleteContent(""))

	require.NoError(t, s.Write("key", []byte("data")))
	assert.DirExists(t, s.BasePath())
	assert.FileExists(t, filepath.Join(s.BasePath(), "key"))
}

func TestGetFullPath(t *testing.T) {
	s := newTestStore(t)
	full, err := s.GetFullPath(`a\b/c`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.BasePath(), "a", "b", "c"), full)
	assert.Equal(t, "/base", GetParentPath("/base/key"))
}

func TestWriteLeavesNoTemporaryFiles(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write("dir/key", []byte(strings.Repeat("x", i))))
	}
	entries, err := os.ReadDir(filepath.Join(s.BasePath(), "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key", entries[0].Name())

	info, err := os.Stat(filepath.Join(s.BasePath(), "dir", "key"))
	require.NoError(t, err)
	if filepath.Separator == '/' {
		assert.Equal(t, defaultFilePerm, info.Mode().Perm())
	}
}

func TestListContentSkipsTemporaryFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("dir/key", []byte("data")))
	leftover := filepath.Join(s.BasePath(), "dir", tempFilePrefix+"key-123")
	require.NoError(t, os.WriteFile(leftover, []byte("partial"), 0600))

	content, err := s.ListContent("dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/key"}, content)
}

func TestReadOnlyTarget(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("ro", []byte("original")))
	path := filepath.Join(s.BasePath(), "ro")
	require.NoError(t, os.Chmod(path, 0444))
	defer os.Chmod(path, 0600)

	err := s.Write("ro", []byte("changed"))
	assert.ErrorIs(t, err, api.ErrPermissionDenied)
	err = s.ReadModifyWrite("ro", func(current []byte) ([]byte, error) {
		return []byte("changed"), nil
	})
	assert.ErrorIs(t, err, api.ErrPermissionDenied)

	data, err := s.Read("ro")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestFileDirectoryConflicts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("x", []byte("file")))
	err := s.Write("x/y", []byte("below file"))
	assert.ErrorIs(t, err, api.ErrIOFailure)

	require.NoError(t, s.Write("dir/file", []byte("data")))
	err = s.Write("dir", []byte("over directory"))
	assert.ErrorIs(t, err, api.ErrIOFailure)
	_, err = s.Read("dir")
	assert.ErrorIs(t, err, api.ErrIOFailure)
	err = s.Delete("dir")
	assert.ErrorIs(t, err, api.ErrIOFailure, "non-empty directory can not be deleted")

	_, err = s.CreateDirectoriesLockParent("x/y")
	assert.ErrorIs(t, err, api.ErrIOFailure)
}

func TestCreateDirectoriesHoldsCreatedSegments(t *testing.T) {
	s := newTestStore(t)
	guard, err := s.CreateDirectoriesLockParent("d1/d2")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(s.BasePath(), "d1", "d2"))

	assert.ErrorIs(t, s.Write("d1/d2/new", []byte("data")), api.ErrLockContention)
	assert.ErrorIs(t, s.Write("d1/new", []byte("data")), api.ErrLockContention)
	// the base path is never locked
	assert.NoError(t, s.Write("top", []byte("data")))

	require.NoError(t, guard.Release())
	require.NoError(t, s.Write("d1/d2/new", []byte("data")))

	// nothing is created, nothing is held
	guard, err = s.CreateDirectoriesLockParent("d1/d2")
	require.NoError(t, err)
	assert.NoError(t, s.Write("d1/d2/other", []byte("data")))
	require.NoError(t, guard.Release())

	// only the new segment is held
	guard, err = s.CreateDirectoriesLockParent("d1/d2/d3")
	require.NoError(t, err)
	assert.NoError(t, s.Write("d1/d2/another", []byte("data")))
	assert.ErrorIs(t, s.Write("d1/d2/d3/new", []byte("data")), api.ErrLockContention)
	require.NoError(t, guard.Release())
}

func TestCreateDirectoriesUnderContention(t *testing.T) {
	s := newTestStore(t)
	held, err := s.LockFile("a/b")
	require.NoError(t, err)
	defer held.Release()

	// a missing segment locked by somebody else is still created
	guard, err := s.CreateDirectoriesLockParent("a/b/c")
	require.NoError(t, err)
	defer guard.Release()
	assert.DirExists(t, filepath.Join(s.BasePath(), "a", "b", "c"))
}

func TestConcurrentDirectoryCreation(t *testing.T) {
	s := newTestStore(t)
	const workers = 16
	group := errgroup.Group{}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			guard, err := s.CreateDirectoriesLockParent("a/b/c")
			if err != nil {
				return err
			}
			return guard.Release()
		})
	}
	require.NoError(t, group.Wait())
	assert.DirExists(t, filepath.Join(s.BasePath(), "a", "b", "c"))

	content, err := s.ListContent("a/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c"}, content)
	content, err = s.ListContent("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, content)
}

func TestStoresShareLocks(t *testing.T) {
	base := filepath.Join(t.TempDir(), "store")
	locks := t.TempDir()
	first, err := New(base, WithLockDirectory(locks))
	require.NoError(t, err)
	second, err := New(base, WithLockDirectory(locks))
	require.NoError(t, err)

	guard, err := first.LockFile("shared")
	require.NoError(t, err)
	_, err = second.Read("shared")
	assert.ErrorIs(t, err, api.ErrLockContention)
	require.NoError(t, guard.Release())
	_, err = second.Read("shared")
	assert.NoError(t, err)
}

func TestLexicalLockNames(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Write("a/b/f", []byte("data")))
	require.NoError(t, s.Write("a/x/other", []byte("other")))
	guard, err := s.LockFile("a/b/f")
	require.NoError(t, err)
	defer guard.Release()

	// the same file through ".." is a different lock
	data, err := s.Read("a/x/../b/f")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
