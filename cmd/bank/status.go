// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"aead.dev/mem"
	tui "github.com/charmbracelet/lipgloss"
	"github.com/minio/bank"
	"github.com/minio/bank/bankconf"
	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/headers"
	flag "github.com/spf13/pflag"
)

const replicaOptions = `Options:
    --config <PATH>          Path to the client configuration file.
                             (default: $BANK_CONFIG or ./bank.yml)
    --json                   Print output in JSON format.

    -h, --help               Print command line options.
`

const statusCmdUsage = `Usage:
    bank status [options]

` + replicaOptions

func statusCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, statusCmdUsage) }

	var (
		configFlag string
		jsonFlag   bool
	)
	cmd.StringVar(&configFlag, "config", "", "Path to the client configuration file")
	cmd.BoolVar(&jsonFlag, "json", false, "Print output in JSON format")
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 0, "too many arguments. See 'bank status --help'")

	file := readClientFile(configFlag)
	client := newHTTPClient(file)

	ctx, cancel := signalContext()
	defer cancel()

	type replicaStatus struct {
		Endpoint string              `json:"endpoint"`
		Status   *api.StatusResponse `json:"status,omitempty"`
		Latency  time.Duration       `json:"latency,omitempty"`
		Error    string              `json:"error,omitempty"`
	}
	statuses := make([]replicaStatus, 0, len(file.Replicas))
	for _, replica := range file.Replicas {
		start := time.Now()
		status, err := fetchStatus(ctx, client, replica, file.Timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				os.Exit(1)
			}
			statuses = append(statuses, replicaStatus{Endpoint: replica.Endpoint.String(), Error: err.Error()})
			continue
		}
		statuses = append(statuses, replicaStatus{
			Endpoint: replica.Endpoint.String(),
			Status:   status,
			Latency:  time.Since(start),
		})
	}

	if jsonFlag {
		json.NewEncoder(os.Stdout).Encode(statuses)
		return
	}

	var (
		green = tui.NewStyle().Foreground(tui.ANSIColor(2))
		red   = tui.NewStyle().Foreground(tui.ANSIColor(1))
		blue  = tui.NewStyle().Foreground(tui.ANSIColor(4)).Bold(true)
	)
	for i, s := range statuses {
		if i > 0 {
			fmt.Println()
		}
		name := file.Replicas[i].Name
		if s.Status == nil {
			fmt.Println(red.Render("●  ") + blue.Render(name) + "  " + s.Endpoint)
			fmt.Println("   Error:   ", s.Error)
			continue
		}
		fmt.Println(green.Render("●  ") + blue.Render(name) + "  " + s.Endpoint)
		fmt.Println("   UpTime:  ", formatUpTime(s.Status.UpTime))
		fmt.Println("   Latency: ", s.Latency.Round(time.Millisecond))
		fmt.Println("   Version: ", s.Status.Version, s.Status.OS+"/"+s.Status.Arch)
		fmt.Println("   Accounts:", s.Status.Accounts)
		fmt.Println("   Pending: ", s.Status.Proposals, "broadcasts")
		if s.Status.Name != name {
			fmt.Println(red.Render("   Warning:"), "replica reports name", s.Status.Name)
		}
	}
}

func fetchStatus(ctx context.Context, client *http.Client, replica bankconf.Replica, timeout time.Duration) (*api.StatusResponse, error) {
	if timeout <= 0 {
		timeout = bank.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := get(ctx, client, replica.Endpoint, api.PathStatus, headers.ContentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status api.StatusResponse
	if err := json.NewDecoder(mem.LimitReader(resp.Body, 1*mem.MiB)).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// get sends a GET request for the path to the replica at
// addr. It returns an error if the replica does not reply
// with 200 OK.
func get(ctx context.Context, client *http.Client, addr bank.Addr, path, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr.URL(path).String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headers.Accept, accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, api.ReadError(resp)
	}
	return resp, nil
}

func formatUpTime(d time.Duration) string {
	switch {
	case d > 24*time.Hour:
		return fmt.Sprintf("%.f days %.f hours", math.Floor(d.Hours()/24), math.Mod(d.Hours(), 24))
	case d > time.Hour:
		return fmt.Sprintf("%.f hours", d.Hours())
	case d > time.Minute:
		return fmt.Sprintf("%.f minutes", d.Minutes())
	default:
		return fmt.Sprintf("%.f seconds", d.Seconds())
	}
}
