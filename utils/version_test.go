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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	version, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, &Version{Major: 1, Minor: 2, Patch: 3}, version)
	assert.Equal(t, "1.2.3", version.String())

	for _, invalid := range []string{"1.1.", "1.1", "1.1.1.1", "a.b.c", "1.-1.0", ""} {
		_, err := ParseVersion(invalid)
		assert.ErrorIs(t, err, ErrInvalidVersionFormat, invalid)
	}
}

func getVersion(t *testing.T, v string) *Version {
	version, err := ParseVersion(v)
	require.NoError(t, err)
	return version
}

func TestVersion_Compare(t *testing.T) {
	testData := []struct {
		v1, v2 string
		result ComparisonStatus
	}{
		{"0.0.0", "0.0.0", Equal},
		{"1.0.0", "0.0.0", Greater},
		{"0.0.0", "1.0.0", Less},

		{"0.1.0", "0.0.0", Greater},
		{"0.0.0", "0.1.0", Less},

		{"0.0.1", "0.0.0", Greater},
		{"0.0.0", "0.0.1", Less},

		{"10.0.0", "1.0.0", Greater},
		{"0.0.0", "10.0.0", Less},

		{"1.10.0", "1.1.0", Greater},
		{"1.1.0", "1.10.0", Less},

		{"1.1.10", "1.1.1", Greater},
		{"1.1.1", "1.1.10", Less},
	}

	for _, data := range testData {
		res := getVersion(t, data.v1).Compare(getVersion(t, data.v2))
		assert.Equal(t, data.result, res, "%s compare with %s", data.v1, data.v2)
	}
}

func TestGetParsedVersion(t *testing.T) {
	version, err := GetParsedVersion()
	require.NoError(t, err)
	assert.Equal(t, Equal, version.Compare(getVersion(t, VERSION)))
	assert.Equal(t, VERSION, version.String())
}
