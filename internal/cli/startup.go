// Copyright 2023 - MinIO, Inc. All rights reserved.
// Use of this source code is governed by the AGPLv3
// license that can be found in the LICENSE file.

package cli

import (
	"fmt"
	"runtime"
	"strconv"

	tui "github.com/charmbracelet/lipgloss"
	"github.com/minio/bank"
	"github.com/minio/bank/internal/sys"
)

// PrintStartupMessage prints the version, the replicas
// and the identity of the replica configured by conf.
func PrintStartupMessage(conf *bank.Config) {
	var faint, item tui.Style
	if IsTerminal() {
		faint = faint.Faint(true)
		item = item.Foreground(tui.Color("#2e42d1")).Bold(true)
	}

	buffer := new(Buffer)
	buffer.Stylef(item, "%-12s", "Copyright").Sprintf("%-22s", "MinIO, Inc.").Styleln(faint, "https://min.io")
	buffer.Stylef(item, "%-12s", "License").Sprintf("%-22s", "GNU AGPLv3").Styleln(faint, "https://www.gnu.org/licenses/agpl-3.0.html")
	buffer.Stylef(item, "%-12s", "Version").Sprintf("%-22s", sys.BinaryInfo().Version).Stylef(faint, "%s/%s\n", runtime.GOOS, runtime.GOARCH)
	buffer.Sprintln()

	buffer.Stylef(item, "%-12s", "Replicas").Styleln(faint, "f="+strconv.Itoa(conf.Byzantine)+"  quorum="+strconv.Itoa(2*conf.Byzantine+1))
	for i, node := range conf.Replicas {
		buffer.Sprintf("%-12s%-6s %-12s %s", " ", "["+strconv.Itoa(i)+"]", node.Name, node.Addr.URL())
		if node.Name == conf.Name {
			buffer.Stylef(item, "  ●")
		}
		buffer.Sprintln()
	}
	buffer.Sprintln()

	buffer.Field(item, "Public Key", bank.EncodePublicKey(conf.Key.Public()))
	buffer.Field(item, "Identity", conf.Key.Identity())
	buffer.Sprintln()

	buffer.Stylef(item, "%-12s", "CLI Access").Sprintf("$ export %s=<client config file>", EnvConfig).Sprintln()
	buffer.Sprintf("%-12s$ bank --help", " ")

	fmt.Println(buffer.String())
}
