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
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/keystore/api"
)

// Environment of the helper process which holds a key lock until its stdin is closed.
const (
	helperEnv        = "CACHEKEYSTORE_LOCK_HELPER"
	helperBaseEnv    = "CACHEKEYSTORE_LOCK_HELPER_BASE"
	helperLockDirEnv = "CACHEKEYSTORE_LOCK_HELPER_LOCKS"
	helperKeyEnv     = "CACHEKEYSTORE_LOCK_HELPER_KEY"
	helperReady      = "locked"
)

func TestLockHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	s, err := New(os.Getenv(helperBaseEnv), WithLockDirectory(os.Getenv(helperLockDirEnv)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	guard, err := s.LockFile(os.Getenv(helperKeyEnv))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	fmt.Println(helperReady)
	io.Copy(io.Discard, os.Stdin)
	guard.Release()
	os.Exit(0)
}

func TestCrossProcessContention(t *testing.T) {
	if runtime.GOOS == "js" || runtime.GOOS == "wasip1" {
		t.Skip("no subprocesses and no file locks on", runtime.GOOS)
	}
	base := filepath.Join(t.TempDir(), "store")
	locks := t.TempDir()
	s, err := New(base, WithLockDirectory(locks))
	require.NoError(t, err)
	require.NoError(t, s.Write("shared/key", []byte("data")))

	helper := exec.Command(os.Args[0], "-test.run=^TestLockHelperProcess$")
	helper.Env = append(os.Environ(),
		helperEnv+"=1",
		helperBaseEnv+"="+base,
		helperLockDirEnv+"="+locks,
		helperKeyEnv+"=shared/key",
	)
	helper.Stderr = os.Stderr
	stdin, err := helper.StdinPipe()
	require.NoError(t, err)
	stdout, err := helper.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, helper.Start())
	stopped := false
	defer func() {
		if !stopped {
			stdin.Close()
			helper.Wait()
		}
	}()

	line, err := bufio.NewReader(stdout).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, helperReady+"\n", line)

	_, err = s.Read("shared/key")
	assert.ErrorIs(t, err, api.ErrLockContention)
	assert.ErrorIs(t, s.Write("shared/key", []byte("changed")), api.ErrLockContention)
	assert.ErrorIs(t, s.Delete("shared/key"), api.ErrLockContention)
	// other keys are not affected
	assert.NoError(t, s.Write("shared/other", []byte("data")))

	require.NoError(t, stdin.Close())
	stopped = true
	require.NoError(t, helper.Wait())

	data, err := s.Read("shared/key")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
