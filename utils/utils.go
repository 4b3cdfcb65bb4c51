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

// Package utils contains small helpers shared by cache key store utilities:
// path expansion, file checks and version information.
package utils

import (
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// AbsPath expands "~/" to home directory of current user and makes path absolute.
func AbsPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		usr, err := user.Current()
		if err != nil {
			return path, err
		}
		path = filepath.Join(usr.HomeDir, path[2:])
	}
	return filepath.Abs(path)
}

// ReadFile reads whole file by path after AbsPath expansion.
func ReadFile(path string) ([]byte, error) {
	absPath, err := AbsPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// FileExists returns true if file exists by path, false if not and error if can't check.
func FileExists(path string) (bool, error) {
	absPath, err := AbsPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetConfigPathByName returns filepath to config file named by service name.
func GetConfigPathByName(name string) string {
	return filepath.Join("configs", name+".yaml")
}
