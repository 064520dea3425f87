// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/minio/bank"
	"github.com/minio/bank/bankconf"
	"github.com/minio/bank/internal/cli"
	flag "github.com/spf13/pflag"
)

// clientFlags are the flags shared by all commands
// that talk to the replicas.
type clientFlags struct {
	config string
	apiKey string
	json   bool
}

func (f *clientFlags) register(cmd *flag.FlagSet) {
	cmd.StringVar(&f.config, "config", "", "Path to the client configuration file")
	cmd.StringVar(&f.apiKey, "api-key", "", "The API key of the account")
	cmd.BoolVar(&f.json, "json", false, "Print output in JSON format")
}

// readClientFile reads the client configuration file at
// path. If path is empty, the file named by the BANK_CONFIG
// environment variable or './bank.yml' is used.
func readClientFile(path string) *bankconf.ClientFile {
	if path == "" {
		path = cli.Env(cli.EnvConfig)
	}
	if path == "" {
		path = "bank.yml"
	}
	file, err := bankconf.ReadClientFile(path)
	if err != nil {
		cli.Exitf("failed to read config file '%s': %v", path, err)
	}
	return file
}

// newClient returns a new quorum client as specified by
// the flags. The API key in the config file takes precedence
// over the --api-key flag and the BANK_API_KEY environment
// variable.
func newClient(flags *clientFlags) *bank.Client {
	file := readClientFile(flags.config)

	apiKey := flags.apiKey
	if apiKey == "" {
		apiKey = cli.Env(cli.EnvAPIKey)
	}
	var key bank.APIKey
	if apiKey != "" {
		var err error
		if key, err = bank.ParseAPIKey(apiKey); err != nil {
			cli.Exitf("invalid API key: %v", err)
		}
	}

	conf, err := file.Config(key)
	if err != nil {
		cli.Exit(err)
	}
	client, err := bank.NewClient(conf)
	if err != nil {
		cli.Exit(err)
	}
	return client
}

// newHTTPClient returns a HTTP client for requests to
// individual replicas, like status or metric requests.
func newHTTPClient(file *bankconf.ClientFile) *http.Client {
	tlsConfig, err := file.TLSConfig()
	if err != nil {
		cli.Exit(err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport}
}

// parseAccount parses s as hex-encoded account key. If s is
// empty, parseAccount returns the key of the client.
func parseAccount(client *bank.Client, s string) ed25519.PublicKey {
	if s == "" {
		return client.Key()
	}
	key, err := bank.ParsePublicKey(s)
	if err != nil {
		cli.Exitf("invalid account key '%s': %v", s, err)
	}
	return key
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// exitOnError aborts with an error message unless err is nil.
// It aborts silently if the command got canceled.
func exitOnError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
	cli.Exit(err)
}
