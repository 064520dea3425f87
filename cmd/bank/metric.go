// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	tui "github.com/charmbracelet/lipgloss"
	"github.com/minio/bank"
	"github.com/minio/bank/bankconf"
	"github.com/minio/bank/internal/api"
	"github.com/minio/bank/internal/cli"
	"github.com/minio/bank/internal/headers"
	"github.com/minio/bank/internal/xterm"
	"github.com/prometheus/common/expfmt"
	flag "github.com/spf13/pflag"
)

const metricCmdUsage = `Usage:
    bank metric [options]

Prints request and broadcast metrics of all replicas.

` + replicaOptions

// replicaMetrics is a subset of the metrics exposed by a replica.
type replicaMetrics struct {
	Name          string  `json:"name"`
	RequestOK     float64 `json:"request_success"`
	RequestErr    float64 `json:"request_error"`
	RequestFail   float64 `json:"request_failure"`
	Deliveries    float64 `json:"deliveries"`
	Conflicts     float64 `json:"conflicts"`
	InvalidVotes  float64 `json:"invalid_votes"`
	UpTimeSeconds float64 `json:"uptime"`
	Error         string  `json:"error,omitempty"`
}

func metricCmd(args []string) {
	cmd := flag.NewFlagSet(args[0], flag.ContinueOnError)
	cmd.Usage = func() { fmt.Fprint(os.Stderr, metricCmdUsage) }

	var (
		configFlag string
		jsonFlag   bool
	)
	cmd.StringVar(&configFlag, "config", "", "Path to the client configuration file")
	cmd.BoolVar(&jsonFlag, "json", false, "Print output in JSON format")
	cli.Parse(cmd, args[1:])
	cli.Assert(cmd.NArg() == 0, "too many arguments. See 'bank metric --help'")

	file := readClientFile(configFlag)
	client := newHTTPClient(file)

	ctx, cancel := signalContext()
	defer cancel()

	metrics := make([]replicaMetrics, 0, len(file.Replicas))
	for _, replica := range file.Replicas {
		m, err := fetchMetrics(ctx, client, replica, file.Timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				os.Exit(1)
			}
			m = &replicaMetrics{Name: replica.Name, Error: err.Error()}
		}
		metrics = append(metrics, *m)
	}

	if jsonFlag {
		json.NewEncoder(os.Stdout).Encode(metrics)
		return
	}

	table := xterm.NewTable("Replica", "Success", "Error", "Failure", "Delivered", "Conflicts", "Invalid")
	for _, column := range table.Columns()[1:] {
		column.Alignment = xterm.AlignRight
	}
	format := func(f float64) xterm.Cell { return xterm.NewCell(strconv.FormatFloat(f, 'f', 0, 64)) }
	for _, m := range metrics {
		if m.Error != "" {
			table.AddRow(xterm.NewCell(m.Name), xterm.Cell{Text: "offline", Style: tui.NewStyle().Foreground(tui.ANSIColor(1))})
			continue
		}
		table.AddRow(
			xterm.NewCell(m.Name),
			format(m.RequestOK),
			format(m.RequestErr),
			format(m.RequestFail),
			format(m.Deliveries),
			format(m.Conflicts),
			format(m.InvalidVotes),
		)
	}
	fmt.Println(table.Format(cli.Width()))
}

func fetchMetrics(ctx context.Context, client *http.Client, replica bankconf.Replica, timeout time.Duration) (*replicaMetrics, error) {
	if timeout <= 0 {
		timeout = bank.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := get(ctx, client, replica.Endpoint, api.PathMetrics, headers.ContentTypeText)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, err
	}
	value := func(name string) float64 {
		family, ok := families[name]
		if !ok || len(family.GetMetric()) == 0 {
			return 0
		}
		m := family.GetMetric()[0]
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	return &replicaMetrics{
		Name:          replica.Name,
		RequestOK:     value("bank_http_request_success"),
		RequestErr:    value("bank_http_request_error"),
		RequestFail:   value("bank_http_request_failure"),
		Deliveries:    value("bank_broadcast_deliveries"),
		Conflicts:     value("bank_broadcast_conflicts"),
		InvalidVotes:  value("bank_broadcast_invalid_votes"),
		UpTimeSeconds: value("bank_system_up_time"),
	}, nil
}
