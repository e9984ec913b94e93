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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tsfs-server",
	Short: "TSFS server - multi-user encrypted file storage over an OPAQUE-authenticated API",
	Long: `tsfs-server runs the TSFS HTTP API: OPAQUE-based registration and login,
session issuance, and the file/folder/share operations that walk the
server-held (but server-blind) keyring access graph.

Run "tsfs-server setup" once per deployment to mint the OPAQUE server
setup, then "tsfs-server serve" to run the API.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Commands register themselves in their own files:
	// - serve.go: serveCmd
	// - setup.go: setupCmd
}
