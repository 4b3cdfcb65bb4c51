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
	"io"

	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/logging"
	"github.com/identityclient/cachekeystore/utils"
)

// dataInput selects data source of write-like subcommands.
type dataInput struct {
	data     string
	dataFile string
}

func (d *dataInput) registerFlags(b *baseSubcommand) {
	b.flagSet.StringVar(&d.data, "data", "", "data to store (default: read from stdin)")
	b.flagSet.StringVar(&d.dataFile, "data_file", "", "path to file with data to store")
}

func (d *dataInput) read(b *baseSubcommand) ([]byte, error) {
	if d.data != "" {
		return []byte(d.data), nil
	}
	if d.dataFile != "" {
		return utils.ReadFile(d.dataFile)
	}
	return io.ReadAll(b.input())
}

// WriteSubcommand is the "cachekeystore-tool write" subcommand.
type WriteSubcommand struct {
	baseSubcommand
	source dataInput
}

// NewWriteSubcommand creates "write" subcommand.
func NewWriteSubcommand() *WriteSubcommand {
	return &WriteSubcommand{baseSubcommand: newBaseSubcommand(CmdWrite, "replace data stored at key", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool write".
func (p *WriteSubcommand) RegisterFlags() {
	p.registerFlags()
	p.source.registerFlags(&p.baseSubcommand)
}

// Parse command-line parameters of the subcommand.
func (p *WriteSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *WriteSubcommand) Execute() error {
	data, err := p.source.read(&p.baseSubcommand)
	if err != nil {
		return err
	}
	return p.withStore(func(store api.Store) error {
		if err := store.Write(p.key, data); err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantWriteKey).
				Errorln("Failed to write key")
			return err
		}
		p.logger().WithField("size", len(data)).Infoln("Key written")
		return nil
	})
}

// AppendSubcommand is the "cachekeystore-tool append" subcommand.
type AppendSubcommand struct {
	baseSubcommand
	source dataInput
}

// NewAppendSubcommand creates "append" subcommand.
func NewAppendSubcommand() *AppendSubcommand {
	return &AppendSubcommand{baseSubcommand: newBaseSubcommand(CmdAppend, "append data to value stored at key under the key lock", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool append".
func (p *AppendSubcommand) RegisterFlags() {
	p.registerFlags()
	p.source.registerFlags(&p.baseSubcommand)
}

// Parse command-line parameters of the subcommand.
func (p *AppendSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *AppendSubcommand) Execute() error {
	data, err := p.source.read(&p.baseSubcommand)
	if err != nil {
		return err
	}
	return p.withStore(func(store api.Store) error {
		err := store.ReadModifyWrite(p.key, func(current []byte) ([]byte, error) {
			updated := make([]byte, 0, len(current)+len(data))
			updated = append(updated, current...)
			return append(updated, data...), nil
		})
		if err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantWriteKey).
				Errorln("Failed to append to key")
			return err
		}
		return nil
	})
}
