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
	"path/filepath"
	"time"

	"github.com/tsfs-project/tsfs/internal/clientcrypto"
	"github.com/tsfs-project/tsfs/internal/cryptox"
	"github.com/tsfs-project/tsfs/internal/tsfsclient"
)

func msToRFC3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func cmdLs(ctx context.Context, s *state, args []string) error {
	cur := s.cwd().tree
	if len(cur.Edges) == 0 {
		fmt.Println("(empty)")
		return nil
	}
	for _, e := range cur.Edges {
		kind := "file"
		if e.IsFolder {
			kind = "folder"
		}
		fmt.Printf("  %-8s %s\n", kind, e.TargetName)
	}
	return nil
}

func cmdPwd(ctx context.Context, s *state, args []string) error {
	fmt.Println(s.path())
	return nil
}

func cmdCd(ctx context.Context, s *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cd <name|..|/>")
	}
	switch target := args[0]; target {
	case "/":
		s.stack = s.stack[:1]
	case "..":
		if len(s.stack) > 1 {
			s.stack = s.stack[:len(s.stack)-1]
		}
	default:
		return s.descend(target)
	}
	return nil
}

func cmdMkdir(ctx context.Context, s *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: mkdir <name>")
	}
	name := args[0]

	payload, err := clientcrypto.PrepareFolder(name, s.parentKey(), s.pub)
	if err != nil {
		return fmt.Errorf("prepare folder: %w", err)
	}
	if _, err := s.client.CreateFolder(ctx, s.cwd().tree.ID, payload.EncryptedName, payload.WrappedKey); err != nil {
		return err
	}
	if err := s.refreshTree(ctx); err != nil {
		return err
	}
	fmt.Printf("created folder %q\n", name)
	return nil
}

func cmdUpload(ctx context.Context, s *state, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: upload <local-path> [name]")
	}
	localPath := args[0]
	name := filepath.Base(localPath)
	if len(args) == 2 {
		name = args[1]
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}

	var (
		resp *tsfsclient.UploadResponse
		errU error
	)
	if existing, ok := s.cwd().tree.GetByName(name); ok && !existing.IsFolder {
		encryptedName, ciphertext, err := clientcrypto.PrepareOverwrite(existing.Key, name, data)
		if err != nil {
			return fmt.Errorf("prepare overwrite: %w", err)
		}
		resp, errU = s.client.Upload(ctx, s.cwd().tree.ID, encryptedName, ciphertext, nil, existing.TargetID)
	} else {
		payload, ciphertext, err := clientcrypto.PrepareUpload(name, data, s.parentKey(), s.pub)
		if err != nil {
			return fmt.Errorf("prepare upload: %w", err)
		}
		resp, errU = s.client.Upload(ctx, s.cwd().tree.ID, payload.EncryptedName, ciphertext, payload.WrappedKey, "")
	}
	if errU != nil {
		return errU
	}
	if err := s.refreshTree(ctx); err != nil {
		return err
	}

	status := "uploaded"
	if !resp.Created {
		status = "replaced"
	}
	fmt.Printf("%s %q (%d bytes)\n", status, name, len(data))
	return nil
}

func cmdDownload(ctx context.Context, s *state, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: download <name> [local-path]")
	}
	name := args[0]

	edge, ok := s.cwd().tree.GetByName(name)
	if !ok {
		return fmt.Errorf("%q: no such file", name)
	}
	if edge.IsFolder {
		return fmt.Errorf("%q is a folder; cd into it instead", name)
	}

	resp, err := s.client.Download(ctx, edge.TargetID)
	if err != nil {
		return err
	}
	plaintext, err := clientcrypto.DecryptDownload(edge.Key, resp.CiphertextData)
	if err != nil {
		return fmt.Errorf("decrypt download: %w", err)
	}

	localPath := filepath.Join(s.cfg.LocalDownloadFolder, name)
	if len(args) == 2 {
		localPath = args[1]
	}
	if err := os.WriteFile(localPath, plaintext, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}

	fmt.Printf("downloaded %q to %s (%d bytes)\n", name, localPath, len(plaintext))
	return nil
}

func cmdRm(ctx context.Context, s *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: rm <name>")
	}
	name := args[0]

	edge, ok := s.cwd().tree.GetByName(name)
	if !ok {
		return fmt.Errorf("%q: no such file or folder", name)
	}
	if err := s.client.Delete(ctx, edge.TargetID); err != nil {
		return err
	}
	if err := s.refreshTree(ctx); err != nil {
		return err
	}
	fmt.Printf("removed %q\n", name)
	return nil
}

// cmdShare wraps the file's existing symmetric key for the target user's
// public key and grants it a root-keyring edge on the server (spec.md §4.F).
func cmdShare(ctx context.Context, s *state, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: share <name> <username>")
	}
	name, target := args[0], args[1]

	edge, ok := s.cwd().tree.GetByName(name)
	if !ok {
		return fmt.Errorf("%q: no such file", name)
	}
	if edge.IsFolder {
		return fmt.Errorf("sharing a folder is not supported; share its files individually")
	}

	pubResp, err := s.client.PubKey(ctx, target)
	if err != nil {
		return fmt.Errorf("fetch %s's public key: %w", target, err)
	}
	targetPub, err := cryptox.ParsePublicKey(pubResp.PublicKey)
	if err != nil {
		return err
	}

	wrapped, err := clientcrypto.PrepareShare(edge.Key, targetPub)
	if err != nil {
		return fmt.Errorf("wrap share key: %w", err)
	}

	if err := s.client.Share(ctx, edge.TargetID, target, wrapped); err != nil {
		return err
	}
	fmt.Printf("shared %q with %s\n", name, target)
	return nil
}

// cmdUnshare rekeys a file: a new symmetric key replaces the old one, the
// content and name are re-encrypted under it, and every previous share
// (which still only holds the old key) loses access (spec.md §4.F).
func cmdUnshare(ctx context.Context, s *state, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: unshare <name>")
	}
	name := args[0]

	edge, ok := s.cwd().tree.GetByName(name)
	if !ok {
		return fmt.Errorf("%q: no such file", name)
	}
	if edge.IsFolder {
		return fmt.Errorf("unsharing a folder is not supported")
	}

	resp, err := s.client.Download(ctx, edge.TargetID)
	if err != nil {
		return fmt.Errorf("fetch current content: %w", err)
	}
	plaintext, err := clientcrypto.DecryptDownload(edge.Key, resp.CiphertextData)
	if err != nil {
		return fmt.Errorf("decrypt current content: %w", err)
	}

	payload, ciphertext, err := clientcrypto.PrepareUnshare(name, plaintext, s.parentKey(), s.pub)
	if err != nil {
		return fmt.Errorf("prepare rekey: %w", err)
	}

	if err := s.client.Unshare(ctx, edge.TargetID, s.cwd().tree.ID, payload.WrappedKey, payload.EncryptedName, ciphertext); err != nil {
		return err
	}
	if err := s.refreshTree(ctx); err != nil {
		return err
	}
	fmt.Printf("unshared %q; previous holders no longer have access\n", name)
	return nil
}
