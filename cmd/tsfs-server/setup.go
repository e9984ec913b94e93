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

	"github.com/spf13/cobra"

	"github.com/tsfs-project/tsfs/internal/opaqueauth"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate a fresh OPAQUE server setup",
	Long: `Generate a fresh, random OPAQUE server setup: a server AKE keypair plus an
OPRF seed. Print it base64-encoded, ready to be stored as OPAQUE_SERVER_SETUP.

Losing this value invalidates every existing user. Run it exactly once per
deployment, before the first "serve".`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	setup, err := opaqueauth.GenerateServerSetup()
	if err != nil {
		return fmt.Errorf("generate server setup: %w", err)
	}
	fmt.Println(opaqueauth.EncodeServerSetup(setup))
	return nil
}
