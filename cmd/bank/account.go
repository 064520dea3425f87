// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	tui "github.com/charmbracelet/lipgloss"
	"github.com/minio/bank"
	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/xterm"
	flag "github.com/spf13/pflag"
)

const clientOptions = `Options:
    --config <PATH>          Path to the client configuration file.
                             (default: $BANK_CONFIG or ./bank.yml)
    --api-key <KEY>          The API key of the account, if the config file
                             contains none. (default: $BANK_API_KEY)
    --json                   Print output in JSON format.

    -h, --help               Print command line options.
`

const pingCmdUsage = `Usage:
    bank ping [options] [<TEXT>]

` + clientOptions

func pingCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, pingCmdUsage) }

	var flags clientFlags
	flags.register(cmd)
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() <= 1, "too many arguments. See 'bank ping --help'")

	text := "Ping"
	if cmd.NArg() == 1 {
		text = cmd.Arg(0)
	}

	client := newClient(&flags)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	reply, err := client.Ping(ctx, text)
	exitOnError(err)
	if flags.json {
		json.NewEncoder(os.Stdout).Encode(map[string]string{"text": reply})
		return
	}
	fmt.Println(reply)
}

const openCmdUsage = `Usage:
    bank open [options] <USERNAME>

` + clientOptions + `
Examples:
    $ export BANK_API_KEY=$(bank identity new --quiet)
    $ bank open alice
`

func openCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, openCmdUsage) }

	var flags clientFlags
	flags.register(cmd)
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 1, "no username specified. See 'bank open --help'")

	client := newClient(&flags)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	exitOnError(client.OpenAccount(ctx, cmd.Arg(0)))
	if flags.json {
		return
	}
	fmt.Println(cli.Fg(tui.ANSIColor(2), "Opened account:"), cmd.Arg(0), bank.EncodePublicKey(client.Key()))
}

const checkCmdUsage = `Usage:
    bank check [options] [<ACCOUNT>]

Shows the balance and the pending incoming transfers of
the account. If no ACCOUNT is given, the client's own
account is checked.

` + clientOptions

func checkCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, checkCmdUsage) }

	var flags clientFlags
	flags.register(cmd)
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() <= 1, "too many arguments. See 'bank check --help'")

	client := newClient(&flags)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	account, err := client.CheckAccount(ctx, parseAccount(client, cmd.Arg(0)))
	exitOnError(err)
	if flags.json {
		json.NewEncoder(os.Stdout).Encode(account)
		return
	}

	bold := tui.NewStyle().Bold(true)
	fmt.Println(bold.Render("Account: "), account.Username, bank.EncodePublicKey(account.Key))
	fmt.Println(bold.Render("Balance: "), account.Balance)
	fmt.Println(bold.Render("Writes:  "), account.WID)
	if len(account.Pending) > 0 {
		fmt.Println()
		fmt.Println(transactionTable(account.Pending).Format(cli.Width()))
	}
}

const sendCmdUsage = `Usage:
    bank send [options] <ACCOUNT> <AMOUNT>

Sends AMOUNT to the account with the hex-encoded public
key ACCOUNT. The amount becomes available once the
receiver accepts the transfer.

` + clientOptions

func sendCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, sendCmdUsage) }

	var flags clientFlags
	flags.register(cmd)
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 2, "invalid arguments. See 'bank send --help'")

	amount, err := strconv.ParseInt(cmd.Arg(1), 10, 64)
	if err != nil {
		cli.Exitf("invalid amount '%s'", cmd.Arg(1))
	}

	client := newClient(&flags)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	exitOnError(client.SendAmount(ctx, parseAccount(client, cmd.Arg(0)), amount))
	if !flags.json {
		fmt.Println(cli.Fg(tui.ANSIColor(2), "Sent:"), amount, "to", cmd.Arg(0))
	}
}

const receiveCmdUsage = `Usage:
    bank receive [options] <INDEX>

Accepts the pending transfer at position INDEX, as
listed by 'bank check', and adds its amount to the
balance of the client's account.

` + clientOptions

func receiveCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, receiveCmdUsage) }

	var flags clientFlags
	flags.register(cmd)
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 1, "no transfer index specified. See 'bank receive --help'")

	index, err := strconv.ParseUint(cmd.Arg(0), 10, 64)
	if err != nil {
		cli.Exitf("invalid index '%s'", cmd.Arg(0))
	}

	client := newClient(&flags)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	exitOnError(client.ReceiveAmount(ctx, index))
	if !flags.json {
		fmt.Println(cli.Fg(tui.ANSIColor(2), "Received transfer:"), index)
	}
}

const auditCmdUsage = `Usage:
    bank audit [options] [<ACCOUNT>]

Lists all outgoing and accepted incoming transfers of
the account. If no ACCOUNT is given, the client's own
account is audited.

` + clientOptions

func auditCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, auditCmdUsage) }

	var flags clientFlags
	flags.register(cmd)
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() <= 1, "too many arguments. See 'bank audit --help'")

	client := newClient(&flags)
	defer client.Close()

	ctx, cancel := signalContext()
	defer cancel()

	history, err := client.Audit(ctx, parseAccount(client, cmd.Arg(0)))
	exitOnError(err)
	if flags.json {
		json.NewEncoder(os.Stdout).Encode(history)
		return
	}
	if len(history) == 0 {
		fmt.Println("No transactions")
		return
	}
	fmt.Println(transactionTable(history).Format(cli.Width()))
}

// transactionTable returns a table with one row per transaction.
func transactionTable(txs []bank.Transaction) *xterm.Table {
	table := xterm.NewTable("#", "From", "To", "Amount", "WID")
	columns := table.Columns()
	columns[0].Width, columns[0].Alignment = 0.08, xterm.AlignRight
	columns[1].Width = 0.32
	columns[2].Width = 0.32
	columns[3].Width, columns[3].Alignment = 0.16, xterm.AlignRight
	columns[4].Width, columns[4].Alignment = 0.12, xterm.AlignRight

	for i, tx := range txs {
		table.AddRow(
			xterm.NewCell(strconv.Itoa(i)),
			xterm.NewCell(tx.SourceUsername),
			xterm.NewCell(tx.DestUsername),
			xterm.NewCell(strconv.FormatInt(tx.Amount, 10)),
			xterm.NewCell(strconv.FormatUint(tx.WID, 10)),
		)
	}
	return table
}
