// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Command is a CLI command. It receives its own name
// as first argument.
type Command func(args []string)

// SubCommands maps command names to commands.
type SubCommands map[string]Command

// Run runs the sub command named by args[1]. If no such
// command exists, Run prints the usage and exits.
func (s SubCommands) Run(args []string, usage string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	if len(args) < 2 {
		cmd.Usage()
		os.Exit(2)
	}
	if sub, ok := s[args[1]]; ok {
		sub(args[1:])
		return
	}

	if err := cmd.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		Exitf("%v. See '%s --help'", err, args[0])
	}
	cmd.Usage()
	os.Exit(2)
}

// Parse parses the command line flags of cmd. It exits
// if the flags are invalid or if --help is provided.
func Parse(cmd *flag.FlagSet, args []string) {
	if err := cmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		Exitf("%v. See 'bank %s --help'", err, cmd.Name())
	}
}
