// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/minio/bank"
	"github.com/minio/bank/bankconf"
	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/log"
	flag "github.com/spf13/pflag"
)

const serverCmdUsage = `Usage:
    bank server [options]

Options:
    --config <PATH>          Path to the replica configuration file.
    --addr <IP:PORT>         The network interface the replica listens on.
                             Takes precedence over the config file.
    --log-format <FORMAT>    The error log format: 'text' or 'json'. (default: text)
    --mlock                  Lock all allocated memory pages to prevent the OS
                             from swapping the replica's private key to disk.

    -h, --help               Print command line options.

Examples:
    $ bank server --config replica-0.yml
    $ bank server --config replica-0.yml --addr :7373 --log-format json
`

func serverCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, serverCmdUsage) }

	var (
		configFlag    string
		addrFlag      string
		logFormatFlag string
		mlockFlag     bool
	)
	cmd.StringVar(&configFlag, "config", "", "Path to the replica configuration file")
	cmd.StringVar(&addrFlag, "addr", "", "The network interface the replica listens on")
	cmd.StringVar(&logFormatFlag, "log-format", "text", "The error log format")
	cmd.BoolVar(&mlockFlag, "mlock", false, "Lock all allocated memory pages")
	cli.Parse(cmd, args[1:])

	cli.Assert(cmd.NArg() == 0, "too many arguments. See 'bank server --help'")
	cli.Assert(configFlag != "", "no config file specified. See 'bank server --help'")

	if mlockFlag {
		if err := mlockall(); err != nil {
			cli.Exitf("failed to lock memory pages: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	file, err := bankconf.ReadFile(configFlag)
	if err != nil {
		cli.Exitf("failed to read config file '%s': %v", configFlag, err)
	}
	if addrFlag != "" {
		file.Addr = addrFlag
	}

	conf, err := file.Config(ctx)
	if err != nil {
		cli.Exitf("invalid config file '%s': %v", configFlag, err)
	}

	errLevel, auditLevel := slog.LevelInfo, slog.LevelInfo
	if file.Log != nil {
		errLevel, auditLevel = file.Log.ErrLevel, file.Log.AuditLevel
	}
	format := log.ParseFormat(logFormatFlag)
	conf.ErrorLog = bank.NewLogHandler(os.Stderr, format, &slog.HandlerOptions{Level: errLevel})
	conf.AuditLog = bank.NewLogHandler(os.Stdout, log.JSONFormat, &slog.HandlerOptions{Level: auditLevel})

	cli.PrintStartupMessage(conf)

	var srv bank.Server
	if err = srv.ListenAndStart(ctx, conf); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Exit(err)
	}
}
