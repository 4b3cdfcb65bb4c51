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
	"io/fs"
	"strconv"
)

// Errors returned by Store implementations:
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrLockContention   = errors.New("lock is held by another owner")
	ErrIOFailure        = errors.New("i/o failure")
	ErrPermissionDenied = errors.New("permission denied")
)

var errorKinds = []error{ErrInvalidArgument, ErrLockContention, ErrPermissionDenied, ErrIOFailure}

// KeyError records an error and the operation and key that caused it.
// Both Kind and Err are matched by errors.Is.
type KeyError struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

// NewKeyError returns new KeyError of given kind.
func NewKeyError(op, key string, kind, err error) *KeyError {
	return &KeyError{Op: op, Key: key, Kind: kind, Err: err}
}

func (e *KeyError) Error() string {
	msg := e.Op + " " + strconv.Quote(e.Key) + ": "
	switch {
	case e.Err == nil:
		return msg + e.Kind.Error()
	case errors.Is(e.Err, e.Kind):
		return msg + e.Err.Error()
	default:
		return msg + e.Kind.Error() + ": " + e.Err.Error()
	}
}

// Unwrap returns error kind and underlying cause.
func (e *KeyError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns error kind of err, or nil if err does not belong to any.
func KindOf(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Classify wraps err into KeyError of matching kind.
// Errors of known kinds keep their kind, permission errors become ErrPermissionDenied,
// all other errors are reported as ErrIOFailure.
func Classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var keyErr *KeyError
	if errors.As(err, &keyErr) {
		return err
	}
	if kind := KindOf(err); kind != nil {
		return NewKeyError(op, key, kind, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return NewKeyError(op, key, ErrPermissionDenied, err)
	}
	return NewKeyError(op, key, ErrIOFailure, err)
}
