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

package args

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFlags() *flag.FlagSet {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	flags.String("backend", "filesystem", "")
	flags.String("lock_dir", "", "")
	flags.Bool("retry", false, "")
	flags.Int("redis_db", 0, "")
	flags.Duration("hold_duration", time.Second, "")
	return flags
}

func TestExtractorOrder(t *testing.T) {
	flags := newTestFlags()
	require.NoError(t, flags.Parse([]string{"--backend=redis"}))
	config := map[string]interface{}{
		"backend":       "bolt",
		"retry":         true,
		"redis_db":      3,
		"hold_duration": "2m",
		"locks":         "/var/locks",
	}
	extractor := NewServiceExtractor(flags, config)

	assert.Equal(t, "redis", extractor.GetString("backend", ""))
	assert.True(t, extractor.GetBool("retry", ""))
	assert.Equal(t, 3, extractor.GetInt("redis_db", ""))
	assert.Equal(t, 2*time.Minute, extractor.GetDuration("hold_duration", ""))
	assert.Equal(t, "/var/locks", extractor.GetString("lock_dir", "locks"))
}

func TestExtractorDefaults(t *testing.T) {
	flags := newTestFlags()
	require.NoError(t, flags.Parse(nil))
	extractor := NewServiceExtractor(flags, nil)

	assert.Equal(t, "filesystem", extractor.GetString("backend", ""))
	assert.False(t, extractor.GetBool("retry", ""))
	assert.Equal(t, 0, extractor.GetInt("redis_db", ""))
	assert.Equal(t, time.Second, extractor.GetDuration("hold_duration", ""))
	assert.Equal(t, "", extractor.GetString("unknown", ""))
}

func TestExtractorCLIOverConfig(t *testing.T) {
	flags := newTestFlags()
	require.NoError(t, flags.Parse([]string{"--retry=false", "--redis_db=5", "--hold_duration=10s"}))
	extractor := NewServiceExtractor(flags, map[string]interface{}{"retry": true, "redis_db": 1, "hold_duration": "1h"})

	assert.False(t, extractor.GetBool("retry", ""))
	assert.Equal(t, 5, extractor.GetInt("redis_db", ""))
	assert.Equal(t, 10*time.Second, extractor.GetDuration("hold_duration", ""))
}
