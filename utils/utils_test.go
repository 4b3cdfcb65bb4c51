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

package utils

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	testPath := filepath.Join(t.TempDir(), "testfile")
	exists, err := FileExists(testPath)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, os.WriteFile(testPath, []byte("data"), 0600))
	exists, err = FileExists(testPath)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := ReadFile(testPath)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestAbsPath(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)
	path, err := AbsPath("~/configs/tool.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "configs", "tool.yaml"), path)

	wd, err := os.Getwd()
	require.NoError(t, err)
	path, err = AbsPath("configs/tool.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "configs", "tool.yaml"), path)
}

func TestGetConfigPathByName(t *testing.T) {
	assert.Equal(t, filepath.Join("configs", "cachekeystore-tool.yaml"), GetConfigPathByName("cachekeystore-tool"))
}
