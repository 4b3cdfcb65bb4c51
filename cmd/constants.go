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

// Package cmd contains shared settings/constants among cache key store utilities:
// config and flag parsing, Redis connection options, prometheus handler and
// signal handling.
package cmd

import "time"

// Default values of command-line parameters.
const (
	DefaultBackend           = "filesystem"
	DefaultLogFormat         = "plaintext"
	DefaultBoltPath          = "cachekeystore.db"
	DefaultRetryMaxElapsed   = 5 * time.Second
	DefaultHoldDuration      = 0
	DefaultPrometheusAddress = ""
	DefaultRedisLockDuration = 30 * time.Second
	DefaultNetworkTimeout    = 5 * time.Second
)
