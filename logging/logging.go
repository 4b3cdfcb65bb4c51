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

// Package logging contains log formatters (plaintext and JSON), verbosity
// levels and event codes shared by cache key store components.
// Logging mode and verbosity level can be configured in the yaml config file
// of cachekeystore-tool or passed as CLI parameters.
package logging

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ServiceName is the default value of "service" field in log entries.
const ServiceName = "cachekeystore"

// Log modes
const (
	LogDebug = iota
	LogVerbose
	LogDiscard
)

// Supported log formats
const (
	PlaintextFormatString = "plaintext"
	JSONFormatString      = "json"
)

type loggerKey struct{}

// IsDebugLevel return true if logger configured to log debug messages
func IsDebugLevel(logger *log.Entry) bool {
	return logger.Logger.IsLevelEnabled(log.DebugLevel)
}

// SetLogLevel sets logging level
func SetLogLevel(level int) {
	switch level {
	case LogDebug:
		log.SetLevel(log.DebugLevel)
	case LogVerbose:
		log.SetLevel(log.InfoLevel)
	case LogDiscard:
		log.SetLevel(log.WarnLevel)
	default:
		panic(fmt.Sprintf("Incorrect log level - %v", level))
	}
}

// GetLogLevel gets logrus log level and returns int log level
func GetLogLevel() int {
	switch log.GetLevel() {
	case log.DebugLevel, log.TraceLevel:
		return LogDebug
	case log.InfoLevel:
		return LogVerbose
	}
	return LogDiscard
}

// CreateFormatter creates formatter object and sets it for the standard logger.
// Unknown formats fall back to plaintext.
func CreateFormatter(format, serviceName string) log.Formatter {
	var formatter log.Formatter
	switch strings.ToLower(format) {
	case JSONFormatString:
		formatter = JSONFormatter(log.Fields{FieldKeyProduct: serviceName})
	default:
		formatter = TextFormatter()
	}
	log.SetFormatter(formatter)
	return formatter
}

// SetLoggerToContext sets logger to corresponded context
func SetLoggerToContext(ctx context.Context, logger *log.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLoggerFromContext gets logger from context, returns standard logger entry if no logger.
func GetLoggerFromContext(ctx context.Context) *log.Entry {
	if entry, ok := GetLoggerFromContextOk(ctx); ok {
		return entry
	}
	return log.NewEntry(log.StandardLogger())
}

// GetLoggerFromContextOk gets logger from context, returns logger and success code.
func GetLoggerFromContextOk(ctx context.Context) (*log.Entry, bool) {
	entry, ok := ctx.Value(loggerKey{}).(*log.Entry)
	return entry, ok
}
