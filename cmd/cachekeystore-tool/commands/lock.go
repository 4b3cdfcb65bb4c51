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
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/identityclient/cachekeystore/cmd"
	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/logging"
)

// MkdirSubcommand is the "cachekeystore-tool mkdir" subcommand.
type MkdirSubcommand struct {
	baseSubcommand
}

// NewMkdirSubcommand creates "mkdir" subcommand.
func NewMkdirSubcommand() *MkdirSubcommand {
	return &MkdirSubcommand{newBaseSubcommand(CmdMkdir, "create directories down to key", "<key>")}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool mkdir".
func (p *MkdirSubcommand) RegisterFlags() {
	p.registerFlags()
}

// Parse command-line parameters of the subcommand.
func (p *MkdirSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *MkdirSubcommand) Execute() error {
	return p.withStore(func(store api.Store) error {
		guard, err := store.CreateDirectoriesLockParent(p.key)
		if err != nil {
			return err
		}
		if err := guard.Release(); err != nil {
			p.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReleaseLock).
				Warningln("Failed to release directory locks")
		}
		fullPath, err := store.GetFullPath(p.key)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.output(), fullPath)
		return err
	})
}

// HoldSubcommand is the "cachekeystore-tool hold" subcommand.
// It takes the lock of a key and keeps it until timeout or exit signal.
type HoldSubcommand struct {
	baseSubcommand
	duration          time.Duration
	prometheusAddress string
	signals           []os.Signal
}

// NewHoldSubcommand creates "hold" subcommand.
func NewHoldSubcommand() *HoldSubcommand {
	return &HoldSubcommand{
		baseSubcommand: newBaseSubcommand(CmdHold, "take lock of key and hold it until timeout or SIGINT/SIGTERM", "<key>"),
		signals:        []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// RegisterFlags registers command-line flags of "cachekeystore-tool hold".
func (p *HoldSubcommand) RegisterFlags() {
	p.registerFlags()
	p.flagSet.DurationVar(&p.duration, "duration", cmd.DefaultHoldDuration, "how long to hold the lock, 0 waits for exit signal")
	p.flagSet.StringVar(&p.prometheusAddress, "incoming_connection_prometheus_metrics_string", cmd.DefaultPrometheusAddress, "address like 127.0.0.1:9399 to export prometheus metrics on while holding the lock")
}

// Parse command-line parameters of the subcommand.
func (p *HoldSubcommand) Parse(arguments []string) error {
	return p.parse(arguments)
}

// Execute this subcommand.
func (p *HoldSubcommand) Execute() error {
	logger := p.logger()
	handler := cmd.NewSignalHandler(p.signals)
	defer handler.Finalize()
	if p.prometheusAddress != "" {
		if err := cmd.RegisterBuildInfoMetrics(ServiceName); err != nil {
			return err
		}
		listener, _, err := cmd.RunPrometheusHTTPHandler(p.prometheusAddress)
		if err != nil {
			logger.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorPrometheusHTTPHandler).
				Errorln("Can't start prometheus handler")
			return err
		}
		handler.AddListener(listener)
	}
	return p.withStore(func(store api.Store) error {
		guard, err := store.LockFile(p.key)
		if err != nil {
			logger.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantAcquireLock).
				Errorln("Can't take lock")
			return err
		}
		handler.AddCallback(cmd.NewSignalCallback(func() {
			if err := guard.Release(); err != nil {
				logger.WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantReleaseLock).
					Warningln("Failed to release lock")
				return
			}
			logger.Infoln("Lock released")
		}, cmd.Last))
		defer handler.Finalize()

		fullPath, err := store.GetFullPath(p.key)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(p.output(), fullPath); err != nil {
			return err
		}
		logger.WithField("duration", p.duration).Infoln("Lock taken")

		ctx := p.ctx
		if p.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.duration)
			defer cancel()
		}
		if received := handler.Wait(ctx); received != nil {
			logger.WithField("signal", received.String()).Infoln("Got exit signal")
		}
		return nil
	})
}
