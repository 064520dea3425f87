// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/minio/bank/bankconf"
	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/headers"
	flag "github.com/spf13/pflag"
)

const logCmdUsage = `Usage:
    bank log [options] <REPLICA>

Prints the error log of the named replica until
interrupted.

` + replicaOptions

func logCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, logCmdUsage) }

	var (
		configFlag string
		jsonFlag   bool
	)
	cmd.StringVar(&configFlag, "config", "", "Path to the client configuration file")
	cmd.BoolVar(&jsonFlag, "json", false, "Print output in JSON format")
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 1, "no replica specified. See 'bank log --help'")

	file := readClientFile(configFlag)
	var replica *bankconf.Replica
	for i := range file.Replicas {
		if file.Replicas[i].Name == cmd.Arg(0) {
			replica = &file.Replicas[i]
			break
		}
	}
	cli.Assertf(replica != nil, "unknown replica '%s'", cmd.Arg(0))

	ctx, cancel := signalContext()
	defer cancel()

	resp, err := get(ctx, newHTTPClient(file), replica.Endpoint, api.PathLogError, headers.ContentTypeJSONLines)
	exitOnError(err)
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	encoder := json.NewEncoder(os.Stdout)
	for {
		var event api.ErrorLogEvent
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if ctx.Err() != nil {
				os.Exit(1)
			}
			cli.Exit(err)
		}
		if jsonFlag {
			encoder.Encode(event)
		} else {
			fmt.Println(event.Message)
		}
	}
}
