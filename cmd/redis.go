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
	"errors"
	"flag"
	"time"

	goRedis "github.com/go-redis/redis/v7"
	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/logging"
)

// RedisOptions keep command-line options related to Redis database configuration.
type RedisOptions struct {
	HostPort     string
	Password     string
	DB           int
	LockDuration time.Duration
}

const redisDefaultDB = 0

// ErrRedisNotConfigured is returned when Redis client requested without host:port.
var ErrRedisNotConfigured = errors.New("redis host:port is not configured")

// ErrInvalidRedisDB is returned for negative database numbers.
var ErrInvalidRedisDB = errors.New("redis db number should be non-negative")

// RegisterRedisParameters registers Redis parameters with given flag set and prefix.
// Use empty prefix, or something like "src_" or "dst_", for example.
func (redis *RedisOptions) RegisterRedisParameters(flags *flag.FlagSet, prefix string, description string) {
	if description != "" {
		description = " (" + description + ")"
	}
	flags.StringVar(&redis.HostPort, prefix+"redis_host_port", "", "<host>:<port> used to connect to Redis"+description)
	flags.StringVar(&redis.Password, prefix+"redis_password", "", "Password to Redis database"+description)
	flags.IntVar(&redis.DB, prefix+"redis_db", redisDefaultDB, "Number of Redis database"+description)
	flags.DurationVar(&redis.LockDuration, prefix+"redis_lock_duration", DefaultRedisLockDuration, "Expiration time of locks stored in Redis"+description)
}

// Configured returns true if Redis host:port is set.
func (redis *RedisOptions) Configured() bool {
	return redis.HostPort != ""
}

// Validate checks consistency of Redis options.
func (redis *RedisOptions) Validate() error {
	if !redis.Configured() {
		return ErrRedisNotConfigured
	}
	if redis.DB < 0 {
		return ErrInvalidRedisDB
	}
	return nil
}

// Options returns Redis connection configuration.
func (redis *RedisOptions) Options() *goRedis.Options {
	return &goRedis.Options{
		Addr:         redis.HostPort,
		Password:     redis.Password,
		DB:           redis.DB,
		DialTimeout:  DefaultNetworkTimeout,
		ReadTimeout:  DefaultNetworkTimeout,
		WriteTimeout: DefaultNetworkTimeout,
	}
}

// NewClient validates options and connects to Redis.
func (redis *RedisOptions) NewClient() (*goRedis.Client, error) {
	if err := redis.Validate(); err != nil {
		log.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorWrongParam).
			Errorln("Invalid Redis parameters")
		return nil, err
	}
	client := goRedis.NewClient(redis.Options())
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
