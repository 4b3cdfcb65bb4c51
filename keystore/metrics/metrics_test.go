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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/keystore/api/tests"
	"github.com/identityclient/cachekeystore/keystore/memory"
)

func TestMetricsStore(t *testing.T) {
	tests.TestStore(t, func(t *testing.T) api.Store {
		return New(memory.New())
	})
}

func TestOperationCounters(t *testing.T) {
	RegisterStoreMetrics()
	RegisterStoreMetrics()

	success := testutil.ToFloat64(OperationCounter.WithLabelValues("write", LabelStatusSuccess))
	contention := testutil.ToFloat64(OperationCounter.WithLabelValues("write", LabelStatusContention))
	failed := testutil.ToFloat64(OperationCounter.WithLabelValues("write", LabelStatusFail))

	s := New(memory.New())
	require.NoError(t, s.Write("key", []byte("data")))

	guard, err := s.LockFile("key")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Write("key", []byte("data")), api.ErrLockContention)
	require.NoError(t, guard.Release())

	assert.ErrorIs(t, s.Write("/absolute", []byte("data")), api.ErrInvalidArgument)

	assert.Equal(t, success+1, testutil.ToFloat64(OperationCounter.WithLabelValues("write", LabelStatusSuccess)))
	assert.Equal(t, contention+1, testutil.ToFloat64(OperationCounter.WithLabelValues("write", LabelStatusContention)))
	assert.Equal(t, failed+1, testutil.ToFloat64(OperationCounter.WithLabelValues("write", LabelStatusFail)))
}
