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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/identityclient/cachekeystore/logging"
	"github.com/identityclient/cachekeystore/utils"
)

// Names of flags registered by ParseFlagsWithConfig
const (
	ConfigFlagName     = "config"
	DumpConfigFlagName = "dump_config"
)

// ErrDumpRequested is returned by ParseFlagsWithConfig after config was dumped with --dump_config.
var ErrDumpRequested = errors.New("config dump requested")

// ErrConfigNotFound is returned when config path passed explicitly does not exist.
var ErrConfigNotFound = errors.New("config file not found")

func isZeroValue(f *flag.Flag, value string) bool {
	// Build a zero value of the flag's Value type, and see if the
	// result of calling its String method equals the value passed in.
	// This works unless the Value type is itself an interface type.
	typ := reflect.TypeOf(f.Value)
	var z reflect.Value
	if typ.Kind() == reflect.Ptr {
		z = reflect.New(typ.Elem())
	} else {
		z = reflect.Zero(typ)
	}
	if value == z.Interface().(flag.Value).String() {
		return true
	}

	switch value {
	case "false", "", "0":
		return true
	}
	return false
}

// PrintFlags pretty-prints CLI flag set with default values to stderr.
func PrintFlags(flags *flag.FlagSet) {
	WriteFlags(os.Stderr, flags)
}

// WriteFlags writes flag usage with --long-flag format to output.
func WriteFlags(output io.Writer, flags *flag.FlagSet) {
	flags.VisitAll(func(f *flag.Flag) {
		var s string
		if len(f.Name) > 2 {
			s = fmt.Sprintf("  --%s", f.Name)
		} else {
			s = fmt.Sprintf("  -%s", f.Name)
		}
		name, usage := flag.UnquoteUsage(f)
		if len(name) > 0 {
			s += "=" + name
		}
		// Four spaces before the tab triggers good alignment
		// for both 4- and 8-space tab stops.
		s += "\n    \t" + usage
		if !isZeroValue(f, f.DefValue) {
			quoted := false
			if getter, ok := f.Value.(flag.Getter); ok {
				_, quoted = getter.Get().(string)
			}
			if quoted {
				s += fmt.Sprintf(" (default %q)", f.DefValue)
			} else {
				s += fmt.Sprintf(" (default %v)", f.DefValue)
			}
		}
		fmt.Fprint(output, s, "\n")
	})
}

// GenerateYaml writes flags as yaml config with usage as comments.
// Flags controlling config itself are skipped.
func GenerateYaml(output io.Writer, serviceName string, flags *flag.FlagSet, useDefault bool) error {
	if _, err := fmt.Fprintf(output, "# %s configuration\n\n", serviceName); err != nil {
		return err
	}
	var err error
	flags.VisitAll(func(f *flag.Flag) {
		if err != nil || f.Name == ConfigFlagName || f.Name == DumpConfigFlagName {
			return
		}
		value := f.Value.String()
		if useDefault {
			value = f.DefValue
		}
		encoded, marshalErr := yaml.Marshal(map[string]string{f.Name: value})
		if marshalErr != nil {
			err = marshalErr
			return
		}
		_, err = fmt.Fprintf(output, "# %v\n%s\n", f.Usage, encoded)
	})
	return err
}

// DumpConfig writes yaml config generated from flags to configPath.
func DumpConfig(configPath, serviceName string, flags *flag.FlagSet, useDefault bool) error {
	absPath, err := utils.AbsPath(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0744); err != nil {
		return err
	}
	file, err := os.Create(absPath)
	if err != nil {
		return err
	}
	if err := GenerateYaml(file, serviceName, flags, useDefault); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	log.WithField("service", serviceName).Infof("Config dumped to %s", absPath)
	return nil
}

// ParseConfig reads yaml config. Missing file yields empty config.
func ParseConfig(configPath, serviceName string) (map[string]interface{}, error) {
	config := map[string]interface{}{}
	if configPath == "" {
		return config, nil
	}
	exists, err := utils.FileExists(configPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.WithFields(log.Fields{"service": serviceName, "config": configPath}).Debugln("Config file not found, using defaults")
		return config, nil
	}
	data, err := utils.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseFlagsWithConfig parses arguments into flags, then sets flags which were not passed
// via command line from yaml config. Config path is taken from --config or defaultConfigPath.
// With --dump_config it writes current values to the config path and returns ErrDumpRequested.
func ParseFlagsWithConfig(flags *flag.FlagSet, arguments []string, defaultConfigPath, serviceName string) error {
	if flags.Lookup(ConfigFlagName) == nil {
		flags.String(ConfigFlagName, defaultConfigPath, "path to config")
	}
	if flags.Lookup(DumpConfigFlagName) == nil {
		flags.Bool(DumpConfigFlagName, false, "dump config")
	}
	if err := flags.Parse(arguments); err != nil {
		return err
	}

	setArgs := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) {
		setArgs[f.Name] = true
	})

	configPath := flags.Lookup(ConfigFlagName).Value.String()
	if setArgs[ConfigFlagName] {
		exists, err := utils.FileExists(configPath)
		if err != nil {
			return err
		}
		dumping, _ := strconv.ParseBool(flags.Lookup(DumpConfigFlagName).Value.String())
		if !exists && !dumping {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
	}

	config, err := ParseConfig(configPath, serviceName)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(config))
	for name := range config {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := config[name]
		if setArgs[name] || value == nil || flags.Lookup(name) == nil {
			continue
		}
		if err := flags.Set(name, fmt.Sprintf("%v", value)); err != nil {
			return fmt.Errorf("invalid value of %q in config: %w", name, err)
		}
	}

	if dump, _ := strconv.ParseBool(flags.Lookup(DumpConfigFlagName).Value.String()); dump {
		if err := DumpConfig(configPath, serviceName, flags, false); err != nil {
			log.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantDumpConfig).
				Errorln("Can't dump config")
			return err
		}
		return ErrDumpRequested
	}
	return nil
}
