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
	"context"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/term"

	"github.com/tsfs-project/tsfs/internal/cryptox"
	"github.com/tsfs-project/tsfs/internal/opaqueauth"
	"github.com/tsfs-project/tsfs/internal/tsfsclient"
	"github.com/tsfs-project/tsfs/pkg/clientconfig"
)

// readPassword prompts label and reads a password from the terminal
// without echoing it, falling back to a plain scan if stdin isn't a
// terminal (e.g. piped input in tests or scripts).
func readPassword(label string) ([]byte, error) {
	fmt.Print(label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Println()
		return pw, err
	}
	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// cmdRegister runs the full OPAQUE registration round trip (spec.md §4.B,
// §6), then generates the account's RSA keypair and seals the private
// half under the export key before handing it to the server.
func cmdRegister(ctx context.Context, s *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: register <username>")
	}
	username := args[0]

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	client := opaqueauth.NewClientDriver()
	req, err := client.RegistrationStart(password)
	if err != nil {
		return fmt.Errorf("registration start: %w", err)
	}

	startResp, err := s.client.RegisterStart(ctx, username, req.Serialize())
	if err != nil {
		return err
	}
	resp, err := opaqueauth.Configuration().DeserializeRegistrationResponse(startResp.Response)
	if err != nil {
		return fmt.Errorf("decode registration response: %w", err)
	}

	upload, exportKey, err := client.RegistrationFinish(password, username, resp)
	if err != nil {
		return fmt.Errorf("registration finish: %w", err)
	}

	priv, err := cryptox.GenerateUserKeyPair()
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	pubDER, err := cryptox.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}
	sealedPriv, err := cryptox.Seal(exportKey[:cryptox.KeySize], cryptox.MarshalPrivateKey(priv))
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}

	if err := s.client.RegisterFinish(ctx, username, upload.Serialize(), pubDER, sealedPriv); err != nil {
		return err
	}

	fmt.Printf("registered %s; run \"login %s\" to continue\n", username, username)
	return nil
}

// cmdLogin runs the OPAQUE AKE, then unseals the returned private key and
// decrypts the returned keyring tree, leaving the shell positioned at the
// root folder.
func cmdLogin(ctx context.Context, s *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: login <username>")
	}
	username := args[0]

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	client := opaqueauth.NewClientDriver()
	ke1, err := client.LoginStart(password)
	if err != nil {
		return fmt.Errorf("login start: %w", err)
	}

	startResp, err := s.client.LoginStart(ctx, username, ke1.Serialize())
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	ke2, err := opaqueauth.Configuration().DeserializeKE2(startResp.KE2)
	if err != nil {
		return fmt.Errorf("decode ke2: %w", err)
	}

	ke3, _, exportKey, err := client.LoginFinish(password, username, ke2)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	finishResp, err := s.client.LoginFinish(ctx, username, ke3.Serialize())
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	privDER, err := cryptox.Open(exportKey[:cryptox.KeySize], finishResp.EncryptedPrivateKey)
	if err != nil {
		return fmt.Errorf("unseal private key: %w", err)
	}
	priv, err := cryptox.ParsePrivateKey(privDER)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	pub, err := cryptox.ParsePublicKey(finishResp.PublicKey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	if err := s.adoptLogin(ctx, username, finishResp.Token, priv, pub, finishResp.Tree); err != nil {
		return err
	}

	fmt.Printf("logged in as %s\n", username)
	return nil
}

func cmdLogout(ctx context.Context, s *state, args []string) error {
	if s.loggedIn() {
		if err := s.client.Revoke(ctx); err != nil {
			fmt.Printf("warning: revoke failed: %v\n", err)
		}
	}
	s.clear()
	fmt.Println("logged out")
	return nil
}

func cmdWhoami(ctx context.Context, s *state, args []string) error {
	sess, err := s.client.GetSession(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("user:    %s\ncwd:     %s\nsession: %s (expires %s)\n", s.username, s.path(), sess.TokenShort, sess.ExpiresAt)
	return nil
}

// cmdPasswd changes the account password in place: the RSA keypair (and
// therefore every existing access grant) is unaffected, only the OPAQUE
// envelope and the private-key wrapping change.
func cmdPasswd(ctx context.Context, s *state, args []string) error {
	newPassword, err := readPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm new password: ")
	if err != nil {
		return err
	}
	if string(newPassword) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	client := opaqueauth.NewClientDriver()
	req, err := client.RegistrationStart(newPassword)
	if err != nil {
		return err
	}

	startResp, err := s.client.ChangePasswordStart(ctx, req.Serialize())
	if err != nil {
		return err
	}
	resp, err := opaqueauth.Configuration().DeserializeRegistrationResponse(startResp.Response)
	if err != nil {
		return fmt.Errorf("decode registration response: %w", err)
	}

	upload, exportKey, err := client.RegistrationFinish(newPassword, s.username, resp)
	if err != nil {
		return err
	}

	sealedPriv, err := cryptox.Seal(exportKey[:cryptox.KeySize], cryptox.MarshalPrivateKey(s.priv))
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}

	if err := s.client.ChangePasswordFinish(ctx, upload.Serialize(), sealedPriv); err != nil {
		return err
	}
	fmt.Println("password changed")
	return nil
}

func cmdSessions(ctx context.Context, s *state, args []string) error {
	resp, err := s.client.ListSessions(ctx)
	if err != nil {
		return err
	}
	for _, sess := range resp.Sessions {
		fmt.Printf("  %s  expires %s\n", sess.TokenShort, msToRFC3339(sess.ExpirationMS))
	}
	return nil
}

func cmdRevokeAll(ctx context.Context, s *state, args []string) error {
	resp, err := s.client.RevokeAll(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("revoked %d other session(s)\n", resp.Revoked)
	return nil
}

// cmdPing reports the server's in-process activity rollup: the counters
// metrics.Collector keeps apart from the Prometheus vectors, fetched from
// GET /debug/summary and printed as a single human-readable summary.
func cmdPing(ctx context.Context, s *state, args []string) error {
	sum, err := s.client.DebugSummary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("uptime: %s\n", sum.Uptime)
	fmt.Printf("auth:   %d attempts, %.1f%% success\n", sum.AuthAttempts, sum.AuthSuccessRate())
	fmt.Printf("files:  %d uploads, %d downloads, %d deletes\n", sum.FileUploads, sum.FileDownloads, sum.FileDeletes)
	fmt.Printf("shares: %d share, %d unshare, %d authz denials\n", sum.ShareOperations, sum.UnshareOperations, sum.AuthzDenials)
	return nil
}

func cmdSetEndpoint(ctx context.Context, s *state, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set-endpoint <host> <port>")
	}
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[1], err)
	}

	s.cfg.EndpointURL = args[0]
	s.cfg.EndpointPort = port

	path := configPath
	if path == "" {
		path = clientconfig.DefaultPath()
	}
	if err := clientconfig.Save(path, s.cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	s.client = tsfsclient.New(s.cfg.BaseURL(), s.cfg.AcceptInvalidCert)
	fmt.Printf("endpoint set to %s (saved to %s)\n", s.cfg.BaseURL(), path)
	return nil
}
