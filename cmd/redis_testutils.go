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

package cmd

import (
	"os"
	"strconv"
	"testing"

	goRedis "github.com/go-redis/redis/v7"
)

// GetTestRedisOptions returns options configured with test env variables.
// Tests are skipped unless TEST_REDIS_HOSTPORT is set.
func GetTestRedisOptions(t *testing.T) RedisOptions {
	hostport := os.Getenv("TEST_REDIS_HOSTPORT")
	if hostport == "" {
		t.Skip("TEST_REDIS_HOSTPORT is not set")
	}
	// default is empty
	password := os.Getenv("TEST_REDIS_PASSWORD")
	dbNum := os.Getenv("TEST_REDIS_DB")
	if dbNum == "" {
		dbNum = "0"
	}
	dbInt, err := strconv.ParseInt(dbNum, 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	return RedisOptions{DB: int(dbInt), HostPort: hostport, Password: password, LockDuration: DefaultRedisLockDuration}
}

// NewTestRedisClient connects to test Redis database, flushes it and closes client after test.
func NewTestRedisClient(t *testing.T) *goRedis.Client {
	options := GetTestRedisOptions(t)
	client, err := options.NewClient()
	if err != nil {
		t.Fatal(err)
	}
	if err := client.FlushDB().Err(); err != nil {
		client.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		client.FlushDB()
		client.Close()
	})
	return client
}
