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

// Package main is entry point for `cachekeystore-tool` utility.
//
// It accesses cache key stores from command line:
//
//   - read, write, append and delete keys
//   - list and delete directory content
//   - create directories and hold key locks for testing of concurrent clients
package main

import (
	"errors"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/cmd"
	"github.com/identityclient/cachekeystore/cmd/cachekeystore-tool/commands"
	"github.com/identityclient/cachekeystore/logging"
)

func main() {
	subcommand, err := commands.ParseParameters(os.Args[1:], commands.Subcommands())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, cmd.ErrDumpRequested) {
			os.Exit(commands.ExitCodeSuccess)
		}
		log.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReadServiceConfig).
			Errorln("Cannot parse arguments")
		os.Exit(commands.ExitCodeFailure)
	}

	if err := subcommand.Execute(); err != nil {
		log.WithError(err).WithField("command", subcommand.Name()).Errorln("Command failed")
		os.Exit(commands.ExitCode(err))
	}
}
