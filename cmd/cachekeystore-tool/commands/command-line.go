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

// Package commands defines subcommands of `cachekeystore-tool` utility.
package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/identityclient/cachekeystore/cmd"
	"github.com/identityclient/cachekeystore/cmd/args"
	"github.com/identityclient/cachekeystore/keystore/api"
	"github.com/identityclient/cachekeystore/logging"
	"github.com/identityclient/cachekeystore/utils"
)

// ServiceName constant for logging and configuration parsing.
const ServiceName = "cachekeystore-tool"

// DefaultConfigPath is the default path to service configuration file.
var DefaultConfigPath = utils.GetConfigPathByName(ServiceName)

// Subcommand names
const (
	CmdRead          = "read"
	CmdWrite         = "write"
	CmdAppend        = "append"
	CmdDelete        = "delete"
	CmdList          = "list"
	CmdDeleteContent = "delete-content"
	CmdMkdir         = "mkdir"
	CmdHold          = "hold"
	CmdPath          = "path"
)

// Supported storage backends
const (
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"
	BackendBolt       = "bolt"
)

// SupportedBackends lists values of --backend.
var SupportedBackends = []string{BackendFilesystem, BackendRedis, BackendBolt}

// Exit codes of the utility
const (
	ExitCodeSuccess    = 0
	ExitCodeFailure    = 1
	ExitCodeContention = 2
)

// Command-line errors
var (
	ErrMissingSubcommand = errors.New("subcommand is missing")
	ErrUnknownSubcommand = errors.New("unknown subcommand")
	ErrMissingKey        = errors.New("key argument is missing")
	ErrExtraArguments    = errors.New("unexpected extra arguments")
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrMissingParameter  = errors.New("required parameter is missing")
)

// Subcommand is a single command of cachekeystore-tool.
type Subcommand interface {
	Name() string
	Description() string
	GetFlagSet() *flag.FlagSet
	RegisterFlags()
	Parse(arguments []string) error
	Execute() error
}

// CommonParams are store and logging parameters shared by all subcommands.
type CommonParams struct {
	Backend         string
	BasePath        string
	LockDirectory   string
	BoltPath        string
	RedisRoot       string
	Redis           cmd.RedisOptions
	Retry           bool
	RetryIOFailures bool
	RetryMaxElapsed time.Duration
	Metrics         bool
	LogFormat       string
	Verbose         bool
	Debug           bool
}

// Register adds common parameters to flag set.
func (params *CommonParams) Register(flags *flag.FlagSet) {
	flags.String("backend", cmd.DefaultBackend, "storage backend, one of: "+strings.Join(SupportedBackends, ", "))
	flags.String("base_dir", "", "base directory of filesystem store")
	flags.String("lock_dir", "", "directory of interprocess lock files (default: temporary directory)")
	flags.String("bolt_path", cmd.DefaultBoltPath, "path to bolt database file")
	flags.String("redis_root", "", "root of keys in Redis")
	params.Redis.RegisterRedisParameters(flags, "", "")
	flags.Bool("retry", false, "retry operations on lock contention")
	flags.Bool("retry_io_failures", false, "retry operations on I/O failures too")
	flags.Duration("retry_max_elapsed", cmd.DefaultRetryMaxElapsed, "time limit of retries of one operation")
	flags.Bool("metrics", false, "collect prometheus metrics of store operations")
	flags.String("logging_format", cmd.DefaultLogFormat, "logging format: plaintext or json")
	flags.Bool("v", false, "log to stderr all INFO, WARNING and ERROR logs")
	flags.Bool("d", false, "log everything to stderr")
}

// resolve reads values in order CLI -> config -> default. Config may use
// cache_dir and lock_directory as aliases of base_dir and lock_dir.
func (params *CommonParams) resolve(extractor *args.ServiceExtractor) {
	params.Backend = extractor.GetString("backend", "")
	params.BasePath = extractor.GetString("base_dir", "cache_dir")
	params.LockDirectory = extractor.GetString("lock_dir", "lock_directory")
	params.BoltPath = extractor.GetString("bolt_path", "")
	params.RedisRoot = extractor.GetString("redis_root", "")
	params.Retry = extractor.GetBool("retry", "")
	params.RetryIOFailures = extractor.GetBool("retry_io_failures", "")
	params.RetryMaxElapsed = extractor.GetDuration("retry_max_elapsed", "")
	params.Metrics = extractor.GetBool("metrics", "")
	params.LogFormat = extractor.GetString("logging_format", "")
	params.Verbose = extractor.GetBool("v", "")
	params.Debug = extractor.GetBool("d", "")
}

// SetDefaults sets dynamically configured default values.
func (params *CommonParams) SetDefaults() error {
	if params.BasePath != "" {
		absPath, err := utils.AbsPath(params.BasePath)
		if err != nil {
			return err
		}
		params.BasePath = absPath
	}
	if params.Backend == BackendRedis && params.Redis.LockDuration <= 0 {
		params.Redis.LockDuration = cmd.DefaultRedisLockDuration
	}
	return nil
}

// Check command-line for consistency.
func (params *CommonParams) Check() error {
	switch params.Backend {
	case BackendFilesystem:
		if params.BasePath == "" {
			return fmt.Errorf("%w: --base_dir", ErrMissingParameter)
		}
	case BackendBolt:
		if params.BoltPath == "" {
			return fmt.Errorf("%w: --bolt_path", ErrMissingParameter)
		}
	case BackendRedis:
		if err := params.Redis.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, params.Backend)
	}
	return nil
}

func (params *CommonParams) setupLogging() {
	logging.CreateFormatter(params.LogFormat, ServiceName)
	switch {
	case params.Debug:
		logging.SetLogLevel(logging.LogDebug)
	case params.Verbose:
		logging.SetLogLevel(logging.LogVerbose)
	default:
		logging.SetLogLevel(logging.LogDiscard)
	}
}

// baseSubcommand keeps state shared by all subcommands.
type baseSubcommand struct {
	CommonParams
	name        string
	description string
	usageArgs   string
	flagSet     *flag.FlagSet
	key         string
	ctx         context.Context

	// allow to override writers and readers for tests
	outWriter io.Writer
	inReader  io.Reader
}

func newBaseSubcommand(name, description, usageArgs string) baseSubcommand {
	return baseSubcommand{name: name, description: description, usageArgs: usageArgs}
}

// Name returns the name of this subcommand.
func (b *baseSubcommand) Name() string {
	return b.name
}

// Description returns short help of this subcommand.
func (b *baseSubcommand) Description() string {
	return b.description
}

// GetFlagSet returns flag set of this subcommand.
func (b *baseSubcommand) GetFlagSet() *flag.FlagSet {
	return b.flagSet
}

func (b *baseSubcommand) registerFlags() {
	b.flagSet = flag.NewFlagSet(b.name, flag.ContinueOnError)
	b.CommonParams.Register(b.flagSet)
	b.flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Command \"%s\": %s\n", b.name, b.description)
		fmt.Fprintf(os.Stderr, "\n\t%s %s [options...] %s\n", os.Args[0], b.name, b.usageArgs)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		cmd.PrintFlags(b.flagSet)
	}
}

// parse command-line parameters and the key argument.
func (b *baseSubcommand) parse(arguments []string) error {
	if err := cmd.ParseFlagsWithConfig(b.flagSet, arguments, DefaultConfigPath, ServiceName); err != nil {
		return err
	}
	config, err := cmd.ParseConfig(b.flagSet.Lookup(cmd.ConfigFlagName).Value.String(), ServiceName)
	if err != nil {
		return err
	}
	b.resolve(args.NewServiceExtractor(b.flagSet, config))
	if err := b.SetDefaults(); err != nil {
		return err
	}
	if err := b.Check(); err != nil {
		return err
	}
	b.setupLogging()

	positional := b.flagSet.Args()
	switch {
	case len(positional) == 0:
		return ErrMissingKey
	case len(positional) > 1:
		return fmt.Errorf("%w: %v", ErrExtraArguments, positional[1:])
	}
	b.key = positional[0]
	b.ctx = logging.SetLoggerToContext(context.Background(),
		log.WithFields(log.Fields{"service": ServiceName, "command": b.name, "key": b.key}))
	return nil
}

func (b *baseSubcommand) logger() *log.Entry {
	if b.ctx == nil {
		return log.WithField("service", ServiceName)
	}
	return logging.GetLoggerFromContext(b.ctx)
}

func (b *baseSubcommand) setIO(out io.Writer, in io.Reader) {
	b.outWriter = out
	b.inReader = in
}

func (b *baseSubcommand) output() io.Writer {
	if b.outWriter != nil {
		return b.outWriter
	}
	return os.Stdout
}

func (b *baseSubcommand) input() io.Reader {
	if b.inReader != nil {
		return b.inReader
	}
	return os.Stdin
}

// withStore opens store, runs action and closes the store.
func (b *baseSubcommand) withStore(action func(store api.Store) error) error {
	store, closeStore, err := OpenStore(&b.CommonParams)
	if err != nil {
		b.logger().WithError(err).WithField(logging.FieldKeyEventCode, logging.EventCodeErrorCantInitKeyStore).
			Errorln("Can't open store")
		return err
	}
	err = action(store)
	if closeErr := closeStore(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Subcommands returns all subcommands of the utility.
func Subcommands() []Subcommand {
	return []Subcommand{
		NewReadSubcommand(),
		NewWriteSubcommand(),
		NewAppendSubcommand(),
		NewDeleteSubcommand(),
		NewListSubcommand(),
		NewDeleteContentSubcommand(),
		NewMkdirSubcommand(),
		NewHoldSubcommand(),
		NewPathSubcommand(),
	}
}

// PrintUsage writes list of subcommands.
func PrintUsage(output io.Writer, subcommands []Subcommand) {
	fmt.Fprintf(output, "Usage:\n\t%s <command> [options...] <key>\n\nCommands:\n", os.Args[0])
	sorted := append([]Subcommand(nil), subcommands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	for _, subcommand := range sorted {
		fmt.Fprintf(output, "  %-16s %s\n", subcommand.Name(), subcommand.Description())
	}
	fmt.Fprintf(output, "\nRun \"%s <command> --help\" for options of a command.\n", os.Args[0])
}

// ParseParameters selects subcommand by the first argument and parses the rest.
func ParseParameters(arguments []string, subcommands []Subcommand) (Subcommand, error) {
	if len(arguments) == 0 {
		PrintUsage(os.Stderr, subcommands)
		return nil, ErrMissingSubcommand
	}
	switch arguments[0] {
	case "-h", "-help", "--help", "help":
		PrintUsage(os.Stderr, subcommands)
		return nil, flag.ErrHelp
	}
	for _, subcommand := range subcommands {
		if subcommand.Name() != arguments[0] {
			continue
		}
		subcommand.RegisterFlags()
		if err := subcommand.Parse(arguments[1:]); err != nil {
			return nil, err
		}
		return subcommand, nil
	}
	PrintUsage(os.Stderr, subcommands)
	return nil, fmt.Errorf("%w: %q", ErrUnknownSubcommand, arguments[0])
}

// ExitCode maps error of subcommand to process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, api.ErrLockContention):
		return ExitCodeContention
	}
	return ExitCodeFailure
}
