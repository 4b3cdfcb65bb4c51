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
	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/logging"
)

// DeleteSubcommand is the "cachekeystore-tool delete" subcommand.
type DeleteSubcommand struct {
	baseSubcommand
}

// NewDeleteSubcommand creates "delete" subcommand.
func NewDeleteSubcommand() *DeleteSubcommand {
	return &DeleteSubcommand{newBaseSubcommand(CmdDelete, "delete file key, missing key is not an error", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool delete".
func (p *DeleteSubcommand) RegisterFlags() {
	p.registerFlags()
}

// Parse command-line parameters of the subcommand.
func (p *DeleteSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *DeleteSubcommand) Execute() error {
	return p.withStore(func(store api.Store) error {
		if err := store.Delete(p.key); err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantDeleteKey).
				Errorln("Failed to delete key")
			return err
		}
		return nil
	})
}

// DeleteContentSubcommand is the "cachekeystore-tool delete-content" subcommand.
type DeleteContentSubcommand struct {
	baseSubcommand
}

// NewDeleteContentSubcommand creates "delete-content" subcommand.
func NewDeleteContentSubcommand() *DeleteContentSubcommand {
	return &DeleteContentSubcommand{newBaseSubcommand(CmdDeleteContent, "delete directory key with everything below it", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool delete-content".
func (p *DeleteContentSubcommand) RegisterFlags() {
	p.registerFlags()
}

// Parse command-line parameters of the subcommand.
func (p *DeleteContentSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *DeleteContentSubcommand) Execute() error {
	return p.withStore(func(store api.Store) error {
		// log what is going to be removed for debug mode
		if logging.GetLogLevel() == logging.LogDebug {
			if content, err := store.ListContent(p.key); err == nil {
				p.logger().WithField("content", content).Debugln("Deleting content")
			}
		}
		if err := store.DeleteContent(p.key); err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantDeleteKey).
				Errorln("Failed to delete content")
			return err
		}
		return nil
	})
}
