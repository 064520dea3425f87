// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/sys"
	flag "github.com/spf13/pflag"
)

const usage = `Usage:
    bank [options] <command>

Commands:
    server                   Start a bank replica.

    ping                     Ping all replicas.
    open                     Open a new account.
    check                    Show the balance and pending transfers of an account.
    send                     Send an amount to another account.
    receive                  Accept a pending transfer.
    audit                    List the transaction history of an account.

    identity                 Create and inspect API keys.
    status                   Print the status of all replicas.
    log                      Print the error log of a replica.
    metric                   Print the metrics of all replicas.

Options:
    -v, --version            Print version information.
    -h, --help               Print command line options.
`

func main() {
	cmd := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	subCmds := cli.SubCommands{
		"server": serverCmd,

		"ping":    pingCmd,
		"open":    openCmd,
		"check":   checkCmd,
		"send":    sendCmd,
		"receive": receiveCmd,
		"audit":   auditCmd,

		"identity": identityCmd,
		"status":   statusCmd,
		"log":      logCmd,
		"metric":   metricCmd,
	}
	if len(os.Args) < 2 {
		cmd.Usage()
		os.Exit(2)
	}
	if sub, ok := subCmds[os.Args[1]]; ok {
		sub(os.Args[1:])
		return
	}

	var showVersion bool
	cmd.BoolVarP(&showVersion, "version", "v", false, "Print version information.")
	if err := cmd.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		cli.Exitf("%v. See 'bank --help'", err)
	}
	if showVersion {
		fmt.Println("bank", sys.BinaryInfo())
		return
	}
	if cmd.NArg() > 0 {
		cli.Exitf("'%s' is not a bank command. See 'bank --help'", cmd.Arg(0))
	}
	cmd.Usage()
	os.Exit(2)
}
