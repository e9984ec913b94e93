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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsfs-project/tsfs/pkg/clientconfig"
)

// command is one shell verb. args excludes the verb itself.
type command struct {
	usage       string
	description string
	needsLogin  bool
	run         func(ctx context.Context, s *state, args []string) error
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"register":     {"register <username>", "create a new account", false, cmdRegister},
		"login":        {"login <username>", "authenticate and fetch your keyring", false, cmdLogin},
		"logout":       {"logout", "discard the session and the in-memory private key", false, cmdLogout},
		"whoami":       {"whoami", "show the current user and working folder", true, cmdWhoami},
		"passwd":       {"passwd", "change your password", true, cmdPasswd},
		"sessions":     {"sessions", "list your active sessions", true, cmdSessions},
		"revoke-all":   {"revoke-all", "revoke every session but this one", true, cmdRevokeAll},
		"ping":         {"ping", "show the server's activity summary", true, cmdPing},
		"ls":           {"ls", "list the current folder", true, cmdLs},
		"cd":           {"cd <name|..|/>", "change folder", true, cmdCd},
		"pwd":          {"pwd", "print the current folder path", true, cmdPwd},
		"mkdir":        {"mkdir <name>", "create a folder here", true, cmdMkdir},
		"upload":       {"upload <local-path> [name]", "encrypt and upload a local file", true, cmdUpload},
		"download":     {"download <name> [local-path]", "download and decrypt a file", true, cmdDownload},
		"rm":           {"rm <name>", "delete a file or folder", true, cmdRm},
		"share":        {"share <name> <username>", "grant another user access to a file", true, cmdShare},
		"unshare":      {"unshare <name>", "rekey a file, revoking every other current holder", true, cmdUnshare},
		"set-endpoint": {"set-endpoint <host> <port>", "change and persist the server endpoint", false, cmdSetEndpoint},
		"help":         {"help", "list available commands", false, nil},
		"exit":         {"exit", "leave the shell", false, nil},
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = clientconfig.DefaultPath()
	}
	cfg, err := clientconfig.Load(path)
	if err != nil {
		return fmt.Errorf("load client config: %w", err)
	}

	s := newState(cfg)
	ctx := cmd.Context()

	fmt.Printf("tsfs-client connected to %s (config: %s)\n", cfg.BaseURL(), path)
	fmt.Println(`type "help" for a list of commands`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt(s))
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		verb, rest := fields[0], fields[1:]

		if verb == "exit" || verb == "quit" {
			return nil
		}
		if verb == "help" {
			printHelp()
			continue
		}

		c, ok := commands[verb]
		if !ok {
			fmt.Printf("unknown command %q (try \"help\")\n", verb)
			continue
		}
		if c.needsLogin && !s.loggedIn() {
			fmt.Println("not logged in; run \"login <username>\" first")
			continue
		}
		if err := c.run(ctx, s, rest); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func prompt(s *state) string {
	if !s.loggedIn() {
		return "tsfs> "
	}
	return fmt.Sprintf("tsfs:%s:%s> ", s.username, s.path())
}

func printHelp() {
	for _, verb := range []string{
		"register", "login", "logout", "whoami", "passwd",
		"ls", "cd", "pwd", "mkdir", "upload", "download", "rm", "share", "unshare",
		"sessions", "revoke-all", "ping", "set-endpoint", "help", "exit",
	} {
		c := commands[verb]
		if c == nil {
			continue
		}
		fmt.Printf("  %-32s %s\n", c.usage, c.description)
	}
}
