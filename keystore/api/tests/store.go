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

// Package tests provides conformity test suite for cache key store API.
package tests

import (
	"bytes"
	"crypto/rand"
	"errors"
	mathrand "math/rand"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/identityclient/cachekeystore/keystore/api"
)

// NewStore is a factory of stores under test. Every call must return an empty store.
type NewStore func(t *testing.T) api.Store

// TestStore runs common store tests.
func TestStore(t *testing.T, newStore NewStore) {
	t.Run("TestRoundTrip", func(t *testing.T) {
		testRoundTrip(t, newStore)
	})
	t.Run("TestMissingKeys", func(t *testing.T) {
		testMissingKeys(t, newStore)
	})
	t.Run("TestSeparators", func(t *testing.T) {
		testSeparators(t, newStore)
	})
	t.Run("TestInvalidKeys", func(t *testing.T) {
		testInvalidKeys(t, newStore)
	})
	t.Run("TestDelete", func(t *testing.T) {
		testDelete(t, newStore)
	})
	t.Run("TestContentionSignaling", func(t *testing.T) {
		testContentionSignaling(t, newStore)
	})
	t.Run("TestParentLockScoping", func(t *testing.T) {
		testParentLockScoping(t, newStore)
	})
	t.Run("TestRootLockScoping", func(t *testing.T) {
		testRootLockScoping(t, newStore)
	})
	t.Run("TestIndependentKeys", func(t *testing.T) {
		testIndependentKeys(t, newStore)
	})
	t.Run("TestListContent", func(t *testing.T) {
		testListContent(t, newStore)
	})
	t.Run("TestListContentMixedEntries", func(t *testing.T) {
		testListContentMixedEntries(t, newStore)
	})
	t.Run("TestDeleteContent", func(t *testing.T) {
		testDeleteContent(t, newStore)
	})
	t.Run("TestReadModifyWrite", func(t *testing.T) {
		testReadModifyWrite(t, newStore)
	})
	t.Run("TestCreateDirectories", func(t *testing.T) {
		testCreateDirectories(t, newStore)
	})
	t.Run("TestGetFullPath", func(t *testing.T) {
		testGetFullPath(t, newStore)
	})
	t.Run("TestConcurrentAccess", func(t *testing.T) {
		testConcurrentAccess(t, newStore)
	})
}

func randomData(t *testing.T, size int) []byte {
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("failed to generate data: %v", err)
	}
	return data
}

func testRoundTrip(t *testing.T, newStore NewStore) {
	s := newStore(t)
	for _, size := range []int{1, 1024, 64 * 1024, 256 * 1024} {
		data := randomData(t, size)
		if err := s.Write("blobs/blob", data); err != nil {
			t.Fatalf("Write() of %d bytes: %v", size, err)
		}
		read, err := s.Read("blobs/blob")
		if err != nil {
			t.Fatalf("Read() of %d bytes: %v", size, err)
		}
		if !bytes.Equal(data, read) {
			t.Errorf("Read() returned incorrect data of size %d, expected %d", len(read), size)
		}
	}

	if err := s.Write("empty", []byte{}); err != nil {
		t.Fatalf("Write() of empty data: %v", err)
	}
	read, err := s.Read("empty")
	if err != nil || len(read) != 0 {
		t.Errorf("Read() of empty data: %v, %v", read, err)
	}
}

func testMissingKeys(t *testing.T, newStore NewStore) {
	s := newStore(t)
	data, err := s.Read("missing")
	if err != nil {
		t.Errorf("Read() of missing key: %v", err)
	}
	if data == nil || len(data) != 0 {
		t.Errorf("Read() of missing key must return empty slice, got %v", data)
	}

	if err := s.Write("x/a.txt", []byte("file")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	data, err = s.Read("x/a.txt/below")
	if err != nil || len(data) != 0 {
		t.Errorf("Read() below a file: %v, %v", data, err)
	}
	data, err = s.Read("missing/dir/key")
	if err != nil || len(data) != 0 {
		t.Errorf("Read() in missing directory: %v, %v", data, err)
	}
}

func testSeparators(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Write(`a\b\c`, []byte("alpha")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	data, err := s.Read("a/b/c")
	if err != nil || string(data) != "alpha" {
		t.Errorf("Read() with other separator: %q, %v", data, err)
	}
	if err := s.Write("a/b/c", []byte("beta")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	data, err = s.Read(`a/b\c`)
	if err != nil || string(data) != "beta" {
		t.Errorf("Read() with mixed separators: %q, %v", data, err)
	}
	content, err := s.ListContent(`a\b`)
	if err != nil || !reflect.DeepEqual(content, []string{"a/b/c"}) {
		t.Errorf("ListContent() with other separator: %v, %v", content, err)
	}
}

func testInvalidKeys(t *testing.T, newStore NewStore) {
	s := newStore(t)
	for _, key := range []string{"/abs", `\abs`, "C:/abs", `c:\abs`} {
		checks := map[string]error{}
		_, checks["Read"] = s.Read(key)
		checks["Write"] = s.Write(key, []byte("data"))
		checks["Delete"] = s.Delete(key)
		checks["ReadModifyWrite"] = s.ReadModifyWrite(key, func(b []byte) ([]byte, error) { return b, nil })
		_, checks["ListContent"] = s.ListContent(key)
		checks["DeleteContent"] = s.DeleteContent(key)
		_, checks["CreateDirectoriesLockParent"] = s.CreateDirectoriesLockParent(key)
		_, checks["LockFile"] = s.LockFile(key)
		_, checks["GetFullPath"] = s.GetFullPath(key)
		for op, err := range checks {
			if !errors.Is(err, api.ErrInvalidArgument) {
				t.Errorf("%s(%q) must fail with invalid argument, got %v", op, key, err)
			}
		}
	}

	if err := s.Write("", []byte("data")); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Write() of store root: %v", err)
	}
	if err := s.Delete(""); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Delete() of store root: %v", err)
	}
}

func testDelete(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Delete("missing"); err != nil {
		t.Errorf("Delete() of missing key: %v", err)
	}
	if err := s.Write("dir/key", []byte("data")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	if err := s.Delete("dir/key"); err != nil {
		t.Errorf("Delete(): %v", err)
	}
	data, err := s.Read("dir/key")
	if err != nil || len(data) != 0 {
		t.Errorf("Read() after Delete(): %q, %v", data, err)
	}
	if err := s.Delete("dir/key"); err != nil {
		t.Errorf("Delete() twice: %v", err)
	}
}

func testContentionSignaling(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Write("k", []byte("before")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	guard, err := s.LockFile("k")
	if err != nil {
		t.Fatalf("LockFile(): %v", err)
	}
	// contending calls come from another goroutine than the lock owner
	checks := map[string]error{}
	var group errgroup.Group
	group.Go(func() error {
		_, checks["Read"] = s.Read("k")
		checks["Write"] = s.Write("k", []byte("after"))
		checks["Delete"] = s.Delete("k")
		checks["ReadModifyWrite"] = s.ReadModifyWrite("k", func(b []byte) ([]byte, error) { return b, nil })
		_, checks["LockFile"] = s.LockFile("k")
		_, checks["LockFile with other separator"] = s.LockFile(`k\`)
		return nil
	})
	if err := group.Wait(); err != nil {
		t.Fatalf("contending goroutine: %v", err)
	}
	for op, err := range checks {
		if !errors.Is(err, api.ErrLockContention) {
			t.Errorf("%s() of locked key must fail with contention, got %v", op, err)
		}
	}
	if err := guard.Release(); err != nil {
		t.Errorf("Release(): %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("Release() twice: %v", err)
	}

	data, err := s.Read("k")
	if err != nil || string(data) != "before" {
		t.Errorf("Read() after release: %q, %v", data, err)
	}
	if err := s.Write("k", []byte("after")); err != nil {
		t.Errorf("Write() after release: %v", err)
	}
}

func testParentLockScoping(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Write("scope/existing", []byte("data")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	guard, err := s.LockFile("scope")
	if err != nil {
		t.Fatalf("LockFile(): %v", err)
	}

	// existing entries can be read and updated without the parent lock
	if err := s.Write("scope/existing", []byte("updated")); err != nil {
		t.Errorf("Write() of existing key under locked parent: %v", err)
	}
	if data, err := s.Read("scope/existing"); err != nil || string(data) != "updated" {
		t.Errorf("Read() under locked parent: %q, %v", data, err)
	}
	if err := s.ReadModifyWrite("scope/existing", func(b []byte) ([]byte, error) { return b, nil }); err != nil {
		t.Errorf("ReadModifyWrite() under locked parent: %v", err)
	}
	if content, err := s.ListContent("scope"); err != nil || len(content) != 1 {
		t.Errorf("ListContent() of locked directory: %v, %v", content, err)
	}

	// changing the set of entries needs the parent lock
	if err := s.Write("scope/new", []byte("data")); !errors.Is(err, api.ErrLockContention) {
		t.Errorf("Write() of new key under locked parent: %v", err)
	}
	transformed := false
	err = s.ReadModifyWrite("scope/new", func(b []byte) ([]byte, error) {
		transformed = true
		return []byte("data"), nil
	})
	if !errors.Is(err, api.ErrLockContention) {
		t.Errorf("ReadModifyWrite() of new key under locked parent: %v", err)
	}
	if transformed {
		t.Error("ReadModifyWrite() of new key under locked parent called transform")
	}
	if err := s.Delete("scope/existing"); !errors.Is(err, api.ErrLockContention) {
		t.Errorf("Delete() under locked parent: %v", err)
	}
	if err := s.DeleteContent("scope/existing"); !errors.Is(err, api.ErrLockContention) {
		t.Errorf("DeleteContent() under locked parent: %v", err)
	}

	// nothing above the direct parent is locked
	if err := s.Write("scope/deeper/new", []byte("data")); err != nil {
		t.Errorf("Write() of new key two levels below locked directory: %v", err)
	}

	if err := guard.Release(); err != nil {
		t.Errorf("Release(): %v", err)
	}
	if err := s.Write("scope/new", []byte("data")); err != nil {
		t.Errorf("Write() of new key after release: %v", err)
	}
	err = s.ReadModifyWrite("scope/appended", func(b []byte) ([]byte, error) {
		return append(b, "data"...), nil
	})
	if err != nil {
		t.Errorf("ReadModifyWrite() of new key after release: %v", err)
	}
	if err := s.Delete("scope/existing"); err != nil {
		t.Errorf("Delete() after release: %v", err)
	}
}

func testRootLockScoping(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Write("top", []byte("data")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	guard, err := s.LockFile("")
	if err != nil {
		t.Fatalf("LockFile() of store root: %v", err)
	}
	if err := s.Write("top", []byte("updated")); err != nil {
		t.Errorf("Write() of existing top-level key: %v", err)
	}
	if err := s.Write("other", []byte("data")); !errors.Is(err, api.ErrLockContention) {
		t.Errorf("Write() of new top-level key under locked root: %v", err)
	}
	if err := s.DeleteContent(""); !errors.Is(err, api.ErrLockContention) {
		t.Errorf("DeleteContent() of locked root: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("Release(): %v", err)
	}
	if err := s.Write("other", []byte("data")); err != nil {
		t.Errorf("Write() after release: %v", err)
	}
}

func testIndependentKeys(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Write("dir/a", []byte("a")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	guard, err := s.LockFile("dir/a")
	if err != nil {
		t.Fatalf("LockFile(): %v", err)
	}
	defer guard.Release()
	if err := s.Write("dir/b", []byte("b")); err != nil {
		t.Errorf("Write() of sibling key: %v", err)
	}
	if data, err := s.Read("dir/b"); err != nil || string(data) != "b" {
		t.Errorf("Read() of sibling key: %q, %v", data, err)
	}
	if err := s.Delete("dir/b"); err != nil {
		t.Errorf("Delete() of sibling key: %v", err)
	}
}

func testListContent(t *testing.T, newStore NewStore) {
	s := newStore(t)
	for _, key := range []string{"x/b.txt", "x/a.txt", "x/sub/c.txt", "y"} {
		if err := s.Write(key, []byte(key)); err != nil {
			t.Fatalf("Write(%q): %v", key, err)
		}
	}
	testCases := []struct {
		key      string
		expected []string
	}{
		{"x", []string{"x/a.txt", "x/b.txt", "x/sub"}},
		{"x/", []string{"x/a.txt", "x/b.txt", "x/sub"}},
		{"x/sub", []string{"x/sub/c.txt"}},
		{"", []string{"x", "y"}},
		{"missing", []string{}},
		{"missing/deeper", []string{}},
		{"x/a.txt", []string{}},
		{"x/a.txt/below", []string{}},
	}
	for _, testCase := range testCases {
		content, err := s.ListContent(testCase.key)
		if err != nil {
			t.Errorf("ListContent(%q): %v", testCase.key, err)
			continue
		}
		if content == nil || !reflect.DeepEqual(content, testCase.expected) {
			t.Errorf("ListContent(%q) = %#v, expected %#v", testCase.key, content, testCase.expected)
		}
	}
}

func testListContentMixedEntries(t *testing.T, newStore NewStore) {
	s := newStore(t)
	for _, key := range []string{"x/a.txt", "x/b.txt", "x/c/d.txt", "x/e/f.txt", "x/e/g.txt", "z.txt"} {
		if err := s.Write(key, []byte(key)); err != nil {
			t.Fatalf("Write(%q): %v", key, err)
		}
	}
	content, err := s.ListContent("x")
	if err != nil {
		t.Fatalf("ListContent(): %v", err)
	}
	expected := []string{"x/a.txt", "x/b.txt", "x/c", "x/e"}
	if !reflect.DeepEqual(content, expected) {
		t.Errorf("ListContent(\"x\") = %#v, expected %#v", content, expected)
	}
}

func testDeleteContent(t *testing.T, newStore NewStore) {
	s := newStore(t)
	for _, key := range []string{"x/a.txt", "x/sub/c.txt", "y/d.txt"} {
		if err := s.Write(key, []byte(key)); err != nil {
			t.Fatalf("Write(%q): %v", key, err)
		}
	}
	if err := s.DeleteContent("missing"); err != nil {
		t.Errorf("DeleteContent() of missing key: %v", err)
	}
	if err := s.DeleteContent("x"); err != nil {
		t.Errorf("DeleteContent(): %v", err)
	}
	if data, err := s.Read("x/sub/c.txt"); err != nil || len(data) != 0 {
		t.Errorf("Read() after DeleteContent(): %q, %v", data, err)
	}
	if content, err := s.ListContent(""); err != nil || !reflect.DeepEqual(content, []string{"y"}) {
		t.Errorf("ListContent() after DeleteContent(): %v, %v", content, err)
	}

	if err := s.DeleteContent(""); err != nil {
		t.Errorf("DeleteContent() of store root: %v", err)
	}
	if content, err := s.ListContent(""); err != nil || len(content) != 0 {
		t.Errorf("ListContent() after DeleteContent() of store root: %v, %v", content, err)
	}
	if err := s.Write("again", []byte("data")); err != nil {
		t.Errorf("Write() after DeleteContent() of store root: %v", err)
	}
}

func testReadModifyWrite(t *testing.T, newStore NewStore) {
	s := newStore(t)
	if err := s.Write("rmw/key", []byte("No regrets")); err != nil {
		t.Fatalf("Write(): %v", err)
	}
	err := s.ReadModifyWrite("rmw/key", func(current []byte) ([]byte, error) {
		return []byte(strings.ReplaceAll(string(current), "e", "a")), nil
	})
	if err != nil {
		t.Errorf("ReadModifyWrite(): %v", err)
	}
	if data, err := s.Read("rmw/key"); err != nil || string(data) != "No ragrats" {
		t.Errorf("Read() after ReadModifyWrite(): %q, %v", data, err)
	}

	transformErr := errors.New("transform failed")
	err = s.ReadModifyWrite("rmw/key", func(current []byte) ([]byte, error) {
		return []byte("must not be written"), transformErr
	})
	if !errors.Is(err, transformErr) {
		t.Errorf("ReadModifyWrite() must return transform error, got %v", err)
	}
	if data, err := s.Read("rmw/key"); err != nil || string(data) != "No ragrats" {
		t.Errorf("Read() after failed ReadModifyWrite(): %q, %v", data, err)
	}

	var seen []byte
	err = s.ReadModifyWrite("rmw/new", func(current []byte) ([]byte, error) {
		seen = current
		return append(current, "created"...), nil
	})
	if err != nil {
		t.Errorf("ReadModifyWrite() of missing key: %v", err)
	}
	if seen == nil || len(seen) != 0 {
		t.Errorf("ReadModifyWrite() of missing key must see empty content, got %v", seen)
	}
	if data, err := s.Read("rmw/new"); err != nil || string(data) != "created" {
		t.Errorf("Read() of key created by ReadModifyWrite(): %q, %v", data, err)
	}
}

func testCreateDirectories(t *testing.T, newStore NewStore) {
	s := newStore(t)
	guard, err := s.CreateDirectoriesLockParent("d1/d2/d3")
	if err != nil {
		t.Fatalf("CreateDirectoriesLockParent(): %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("Release(): %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("Release() twice: %v", err)
	}
	if err := s.Write("d1/d2/d3/file", []byte("data")); err != nil {
		t.Errorf("Write() into created directory: %v", err)
	}
	guard, err = s.CreateDirectoriesLockParent(`d1\d2\d3`)
	if err != nil {
		t.Fatalf("CreateDirectoriesLockParent() of existing directories: %v", err)
	}
	if err := guard.Release(); err != nil {
		t.Errorf("Release(): %v", err)
	}
	guard, err = s.CreateDirectoriesLockParent("")
	if err != nil {
		t.Fatalf("CreateDirectoriesLockParent() of store root: %v", err)
	}
	guard.Release()
}

func testGetFullPath(t *testing.T, newStore NewStore) {
	s := newStore(t)
	full, err := s.GetFullPath(`a\b`)
	if err != nil {
		t.Fatalf("GetFullPath(): %v", err)
	}
	if !strings.HasSuffix(strings.ReplaceAll(full, `\`, "/"), "/a/b") {
		t.Errorf("GetFullPath() = %q", full)
	}
	root, err := s.GetFullPath("")
	if err != nil {
		t.Fatalf("GetFullPath() of store root: %v", err)
	}
	if !strings.HasPrefix(full, root) {
		t.Errorf("GetFullPath() = %q is not inside %q", full, root)
	}
}

// testConcurrentAccess hammers a few keys from many goroutines.
// Every operation either succeeds or reports contention, and every read
// returns one of the written values or nothing.
func testConcurrentAccess(t *testing.T, newStore NewStore) {
	s := newStore(t)
	keys := []string{"fuzz/a", "fuzz/b", "fuzz/sub/c"}
	values := [][]byte{
		[]byte("short"),
		bytes.Repeat([]byte("medium"), 100),
		bytes.Repeat([]byte{0xAB}, 64*1024),
	}
	isKnown := func(data []byte) bool {
		if len(data) == 0 {
			return true
		}
		for _, value := range values {
			if bytes.Equal(data, value) {
				return true
			}
		}
		return false
	}
	acceptable := func(err error) error {
		if err == nil || errors.Is(err, api.ErrLockContention) {
			return nil
		}
		return err
	}

	const workers = 8
	const iterations = 100
	group := errgroup.Group{}
	for w := 0; w < workers; w++ {
		group.Go(func() error {
			for i := 0; i < iterations; i++ {
				key := keys[mathrand.Intn(len(keys))]
				value := values[mathrand.Intn(len(values))]
				var err error
				switch mathrand.Intn(4) {
				case 0:
					var data []byte
					data, err = s.Read(key)
					if err == nil && !isKnown(data) {
						return errors.New("torn read of " + key)
					}
				case 1:
					err = s.Write(key, value)
				case 2:
					err = s.Delete(key)
				case 3:
					err = s.ReadModifyWrite(key, func(current []byte) ([]byte, error) {
						if !isKnown(current) {
							return nil, errors.New("torn read in transform of " + key)
						}
						return value, nil
					})
				}
				if err := acceptable(err); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("concurrent access: %v", err)
	}
	for _, key := range keys {
		data, err := s.Read(key)
		if err != nil || !isKnown(data) {
			t.Errorf("Read(%q) after concurrent access: %d bytes, %v", key, len(data), err)
		}
	}
}
