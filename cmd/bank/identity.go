// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	tui "github.com/charmbracelet/lipgloss"
	"github.com/minio/bank"
	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/keysource"
	flag "github.com/spf13/pflag"
)

const identityCmdUsage = `Usage:
    bank identity <command>

Commands:
    new                      Create a new API key.
    of                       Compute the public key and identity of an API key.

Options:
    -h, --help               Print command line options.
`

func identityCmd(args []string) {
	cli.SubCommands{
		"new": newIdentityCmd,
		"of":  ofIdentityCmd,
	}.Run(args, identityCmdUsage)
}

const newIdentityCmdUsage = `Usage:
    bank identity new [options]

Options:
    --out <PATH>             Write the API key to a new file at PATH. Replicas
                             load their key from such a file.
    -q, --quiet              Only print the API key.

    -h, --help               Print command line options.

Examples:
    $ bank identity new
    $ bank identity new --out replica-0.key
`

func newIdentityCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, newIdentityCmdUsage) }

	var (
		outFlag   string
		quietFlag bool
	)
	cmd.StringVar(&outFlag, "out", "", "Write the API key to a new file")
	cmd.BoolVarP(&quietFlag, "quiet", "q", false, "Only print the API key")
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 0, "too many arguments. See 'bank identity new --help'")

	key, err := bank.GenerateAPIKey(nil)
	if err != nil {
		cli.Exitf("failed to generate API key: %v", err)
	}
	if outFlag != "" {
		file := &keysource.File{Path: outFlag}
		if err = file.Create(key); err != nil {
			cli.Exitf("failed to create '%s': %v", outFlag, err)
		}
	}
	if quietFlag {
		fmt.Println(key)
		return
	}
	printIdentity(key.Public(), key)
}

const ofIdentityCmdUsage = `Usage:
    bank identity of <KEY>

Prints the public key and identity of an API key or
a hex-encoded public key.

Options:
    -h, --help               Print command line options.

Examples:
    $ bank identity of bank:v1:AGaV6VXHasF0FnaB60WdCOeTZ8eTIDikL4zlN16c8NAs
`

func ofIdentityCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, ofIdentityCmdUsage) }
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 1, "no key specified. See 'bank identity of --help'")

	s := strings.TrimSpace(cmd.Arg(0))
	if strings.HasPrefix(s, "bank:") {
		key, err := bank.ParseAPIKey(s)
		if err != nil {
			cli.Exitf("invalid API key: %v", err)
		}
		printIdentity(key.Public(), nil)
		return
	}
	pub, err := bank.ParsePublicKey(s)
	if err != nil {
		cli.Exitf("invalid public key: %v", err)
	}
	printIdentity(pub, nil)
}

func printIdentity(pub ed25519.PublicKey, key bank.APIKey) {
	var bold tui.Style
	if cli.IsTerminal() {
		bold = bold.Bold(true)
	}

	buffer := new(cli.Buffer)
	if key != nil {
		buffer.Field(bold, "API Key", key)
	}
	buffer.Field(bold, "Public Key", bank.EncodePublicKey(pub))
	buffer.Field(bold, "Identity", bank.IdentityOf(pub))
	fmt.Print(buffer.String())
}
