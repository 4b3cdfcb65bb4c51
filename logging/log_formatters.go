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

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/utils"
)

// Field names of JSON log entries
const (
	FieldKeyUnixTime  = "unixTime"
	FieldKeyProduct   = "product"
	FieldKeyVersion   = "version"
	FieldKeyEventCode = "code"
)

// TextFormatter returns a default logrus.TextFormatter with specific settings
func TextFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  time.RFC3339,
		QuoteEmptyFields: true}
}

// JSONFormatter returns a formatter that adds fields to every entry unless the entry has them already.
func JSONFormatter(fields logrus.Fields) logrus.Formatter {
	if fields == nil {
		fields = logrus.Fields{}
	}
	for k, v := range extraJSONFields {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}

	return jsonFormatter{
		Formatter: &logrus.JSONFormatter{
			FieldMap:        JSONFieldMap,
			TimestampFormat: time.RFC3339,
		},
		Fields: fields,
	}
}

// Using a pool to re-use of old entries when formatting messages.
var entryPool = sync.Pool{
	New: func() interface{} {
		return &logrus.Entry{}
	},
}

// copyEntry copies the entry `e` to a new entry and then adds all the fields in `fields` that are missing in the new entry data.
// It uses `entryPool` to re-use allocated entries.
func copyEntry(e *logrus.Entry, fields logrus.Fields) *logrus.Entry {
	ne := entryPool.Get().(*logrus.Entry)
	ne.Message = e.Message
	ne.Level = e.Level
	ne.Time = e.Time
	ne.Data = logrus.Fields{}
	for k, v := range fields {
		ne.Data[k] = v
	}
	for k, v := range e.Data {
		ne.Data[k] = v
	}
	return ne
}

// releaseEntry puts the given entry back to `entryPool`. It must be called if copyEntry is called.
func releaseEntry(e *logrus.Entry) {
	entryPool.Put(e)
}

type jsonFormatter struct {
	logrus.Formatter
	logrus.Fields
}

var (
	extraJSONFields = logrus.Fields{
		FieldKeyProduct: ServiceName,
		FieldKeyVersion: utils.VERSION,
	}

	// JSONFieldMap renames default logrus fields
	JSONFieldMap = logrus.FieldMap{
		logrus.FieldKeyTime:  "timestamp",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}
)

// Format formats an entry according to the wrapped Formatter and Fields.
// The given entry is copied and not changed.
func (f jsonFormatter) Format(e *logrus.Entry) ([]byte, error) {
	ne := copyEntry(e, f.Fields)
	ne.Data[FieldKeyUnixTime] = unixTimeWithMilliseconds(e)
	dataBytes, err := f.Formatter.Format(ne)
	releaseEntry(ne)
	return dataBytes, err
}

func unixTimeWithMilliseconds(e *logrus.Entry) string {
	millis := e.Time.UnixNano() / int64(time.Millisecond)
	return fmt.Sprintf("%.3f", float64(millis)/1000.0)
}
