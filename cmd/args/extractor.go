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

// Package args resolves typed parameters of utilities from CLI flags and yaml config.
package args

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// ServiceExtractor encapsulate logic of parsing parameters from CLI and config
type ServiceExtractor struct {
	configData map[string]interface{}
	flags      *flag.FlagSet
}

// NewServiceExtractor create new ServiceExtractor
func NewServiceExtractor(flags *flag.FlagSet, config map[string]interface{}) *ServiceExtractor {
	if config == nil {
		config = map[string]interface{}{}
	}
	return &ServiceExtractor{
		configData: config,
		flags:      flags,
	}
}

// lookup returns raw value of param in the following order
// CLI param -> Config param -> CLI generalParam if present -> Config generalParam if present -> CLI default value
func (e *ServiceExtractor) lookup(param, generalParam string) (interface{}, bool) {
	for _, name := range []string{param, generalParam} {
		if name == "" {
			continue
		}
		if isFlagSet(name, e.flags) {
			return e.flags.Lookup(name).Value.String(), true
		}
		if rawValue, ok := e.configData[name]; ok && rawValue != nil {
			return rawValue, true
		}
	}
	if f := e.flags.Lookup(param); f != nil {
		return f.DefValue, true
	}
	return nil, false
}

// GetString parse string param from CLI and Config
func (e *ServiceExtractor) GetString(param, generalParam string) string {
	rawValue, ok := e.lookup(param, generalParam)
	if !ok {
		return ""
	}
	if value, ok := rawValue.(string); ok {
		return value
	}
	return fmt.Sprintf("%v", rawValue)
}

// GetBool parse bool param from CLI and Config
func (e *ServiceExtractor) GetBool(param, generalParam string) bool {
	rawValue, ok := e.lookup(param, generalParam)
	if !ok {
		return false
	}
	switch value := rawValue.(type) {
	case bool:
		return value
	case string:
		v, err := strconv.ParseBool(value)
		if err != nil {
			log.WithField("value", value).Fatalf("Can't cast %s to boolean value", param)
		}
		return v
	}
	log.WithField("value", rawValue).Fatalf("Can't cast %s to boolean value", param)
	return false
}

// GetInt parse int param from CLI and Config
func (e *ServiceExtractor) GetInt(param, generalParam string) int {
	rawValue, ok := e.lookup(param, generalParam)
	if !ok {
		return 0
	}
	switch value := rawValue.(type) {
	case int:
		return value
	case string:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			log.WithField("value", value).Fatalf("Can't cast %s to integer value", param)
		}
		return int(v)
	}
	log.WithField("value", rawValue).Fatalf("Can't cast %s to integer value", param)
	return 0
}

// GetDuration parse duration param like "1m30s" from CLI and Config
func (e *ServiceExtractor) GetDuration(param, generalParam string) time.Duration {
	rawValue, ok := e.lookup(param, generalParam)
	if !ok {
		return 0
	}
	value, ok := rawValue.(string)
	if !ok {
		log.WithField("value", rawValue).Fatalf("Can't cast %s to duration value", param)
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		log.WithField("value", value).Fatalf("Can't cast %s to duration value", param)
	}
	return v
}

// isFlagSet returns true if flag explicitly set via CLI arguments
// Don't move it to the cmd package due to import cycle
func isFlagSet(name string, flagset *flag.FlagSet) bool {
	set := false
	flagset.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
