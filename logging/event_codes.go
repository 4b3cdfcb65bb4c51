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

package logging

// Event codes for different events in cache key store components, splitted by groups.
const (
	// 100 .. 200 some events
	EventCodeGeneral = 100

	// 500 .. 600 errors
	EventCodeErrorGeneral    = 500
	EventCodeErrorWrongParam = 501

	// processes
	EventCodeErrorCantStartService      = 505
	EventCodeErrorWrongConfiguration    = 507
	EventCodeErrorCantReadServiceConfig = 508
	EventCodeErrorCantDumpConfig        = 509

	// store
	EventCodeErrorCantInitKeyStore = 510
	EventCodeErrorCantReadKey      = 511
	EventCodeErrorCantWriteKey     = 512
	EventCodeErrorCantDeleteKey    = 513
	EventCodeErrorCantListContent  = 514

	// locks
	EventCodeErrorCantAcquireLock = 520
	EventCodeErrorCantReleaseLock = 521

	// system events
	EventCodeErrorCantRegisterSignalHandler = 530

	// prometheus
	EventCodeErrorPrometheusHTTPHandler = 590
)
