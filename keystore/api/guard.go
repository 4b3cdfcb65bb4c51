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

package api

import (
	"errors"
)

// Guard keeps locks until released.
// Release is idempotent.
type Guard interface {
	Release() error
}

// Guards is a Guard over several guards, released in reverse order.
// An empty Guards holds nothing.
type Guards []Guard

// Release all guards, starting from the last one.
func (g Guards) Release() error {
	var errs []error
	for i := len(g) - 1; i >= 0; i-- {
		if err := g[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
