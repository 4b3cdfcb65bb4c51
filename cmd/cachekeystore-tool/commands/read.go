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

package commands

import (
	"fmt"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/logging"
)

// ReadSubcommand is the "cachekeystore-tool read" subcommand.
type ReadSubcommand struct {
	baseSubcommand
}

// NewReadSubcommand creates "read" subcommand.
func NewReadSubcommand() *ReadSubcommand {
	return &ReadSubcommand{newBaseSubcommand(CmdRead, "print data stored at key, nothing for missing key", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool read".
func (p *ReadSubcommand) RegisterFlags() {
	p.registerFlags()
}

// Parse command-line parameters of the subcommand.
func (p *ReadSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *ReadSubcommand) Execute() error {
	return p.withStore(func(store api.Store) error {
		data, err := store.Read(p.key)
		if err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReadKey).
				Errorln("Failed to read key")
			return err
		}
		_, err = p.output().Write(data)
		return err
	})
}

// ListSubcommand is the "cachekeystore-tool list" subcommand.
type ListSubcommand struct {
	baseSubcommand
}

// NewListSubcommand creates "list" subcommand.
func NewListSubcommand() *ListSubcommand {
	return &ListSubcommand{newBaseSubcommand(CmdList, "print keys of direct children of directory key, one per line", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool list".
func (p *ListSubcommand) RegisterFlags() {
	p.registerFlags()
}

// Parse command-line parameters of the subcommand.
// Empty key "" lists the root.
func (p *ListSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *ListSubcommand) Execute() error {
	return p.withStore(func(store api.Store) error {
		content, err := store.ListContent(p.key)
		if err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantListContent).
				Errorln("Failed to list content")
			return err
		}
		if logging.IsDebugLevel(p.logger()) {
			p.logger().WithField("content", content).Debugln("Listed content")
		}
		for _, child := range content {
			if _, err := fmt.Fprintln(p.output(), child); err != nil {
				return err
			}
		}
		return nil
	})
}

// PathSubcommand is the "cachekeystore-tool path" subcommand.
type PathSubcommand struct {
	baseSubcommand
}

// NewPathSubcommand creates "path" subcommand.
func NewPathSubcommand() *PathSubcommand {
	return &PathSubcommand{newBaseSubcommand(CmdPath, "print full path of key in the store", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool path".
func (p *PathSubcommand) RegisterFlags() {
	p.registerFlags()
}

// Parse command-line parameters of the subcommand.
func (p *PathSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *PathSubcommand) Execute() error {
	return p.withStore(func(store api.Store) error {
		fullPath, err := store.GetFullPath(p.key)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.output(), fullPath)
		return err
	})
}
