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

package commands

import (
	"fmt"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/bolt"
	"github.com/identityclient/cachekeystore/keystore/filesystem"
	"github.com/identityclient/cachekeystore/keystore/metrics"
	"github.com/identityclient/cachekeystore/keystore/redis"
	"github.com/identityclient/cachekeystore/keystore/retry"
)

func noClose() error {
	return nil
}

// OpenStore creates store selected by params and wraps it with metrics and retries if requested.
// Returned function releases resources of the store.
func OpenStore(params *CommonParams) (api.Store, func() error, error) {
	var (
		store      api.Store
		closeStore = noClose
	)
	switch params.Backend {
	case BackendFilesystem:
		var opts []filesystem.Option
		if params.LockDirectory != "" {
			opts = append(opts, filesystem.WithLockDirectory(params.LockDirectory))
		}
		fsStore, err := filesystem.New(params.BasePath, opts...)
		if err != nil {
			return nil, nil, err
		}
		store = fsStore
	case BackendBolt:
		boltStore, err := bolt.New(params.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		store, closeStore = boltStore, boltStore.Close
	case BackendRedis:
		client, err := params.Redis.NewClient()
		if err != nil {
			return nil, nil, err
		}
		redisStore, err := redis.New(client, params.RedisRoot, params.Redis.LockDuration)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		store, closeStore = redisStore, redisStore.Close
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, params.Backend)
	}

	if params.Metrics {
		metrics.RegisterStoreMetrics()
		store = metrics.New(store)
	}
	if params.Retry || params.RetryIOFailures {
		opts := []retry.Option{retry.WithMaxElapsedTime(params.RetryMaxElapsed)}
		if params.RetryIOFailures {
			opts = append(opts, retry.RetryIOFailures())
		}
		store = retry.New(store, opts...)
	}
	return store, closeStore, nil
}
