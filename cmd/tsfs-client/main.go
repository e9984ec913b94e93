// Copyright (C) 2025 tsfs-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// tsfs-client is the interactive TSFS shell: it never persists a session
// key or a decrypted private key to disk, so every run starts at the
// login prompt and ends whatever state it built in memory when the
// process exits (spec.md §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tsfs-client",
	Short: "TSFS interactive client",
	Long: `tsfs-client is an interactive shell for the TSFS encrypted file store:
register or log in against a server, then browse, upload, download, share
and unshare files using commands similar to an FTP client. Run with no
subcommand to start the shell.`,
	RunE: runShell,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to client config.yaml (default $HOME/.tsfs/config.yaml)")
}
