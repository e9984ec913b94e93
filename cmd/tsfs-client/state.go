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
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/tsfs-project/tsfs/internal/keyring"
	"github.com/tsfs-project/tsfs/internal/tsfsclient"
	"github.com/tsfs-project/tsfs/pkg/clientconfig"
)

// cwdFrame is one level of the directory stack: the folder's plaintext
// subtree, its own symmetric key (nil only at the root), and its name as
// it appeared in its parent (empty at the root).
type cwdFrame struct {
	name string
	key  []byte
	tree *keyring.PlaintextTree
}

// state is the shell's entire session: everything here lives only in this
// process's memory and is discarded on exit, per spec.md §4.A's
// zero-knowledge contract.
type state struct {
	cfg    *clientconfig.Config
	client *tsfsclient.Client

	username string
	priv     *rsa.PrivateKey
	pub      *rsa.PublicKey

	root  *keyring.PlaintextTree
	stack []cwdFrame // stack[0] is always the root frame
}

func newState(cfg *clientconfig.Config) *state {
	return &state{
		cfg:    cfg,
		client: tsfsclient.New(cfg.BaseURL(), cfg.AcceptInvalidCert),
	}
}

func (s *state) loggedIn() bool {
	return s.priv != nil
}

// cwd returns the frame the shell is currently positioned at.
func (s *state) cwd() cwdFrame {
	return s.stack[len(s.stack)-1]
}

// parentKey is nil at the root (files there are wrapped to the user's
// public key instead of a folder key) and the current folder's symmetric
// key everywhere else.
func (s *state) parentKey() []byte {
	if len(s.stack) == 1 {
		return nil
	}
	return s.cwd().key
}

// path renders the current working directory the way a shell prompt does.
func (s *state) path() string {
	names := make([]string, 0, len(s.stack))
	for _, f := range s.stack[1:] {
		names = append(names, f.name)
	}
	return "/" + strings.Join(names, "/")
}

// setTree installs a freshly fetched+decrypted root tree and re-walks the
// current path by name, since every mutating file/folder call invalidates
// IDs and keys the shell was holding onto.
func (s *state) setTree(root *keyring.PlaintextTree) error {
	names := make([]string, 0, len(s.stack))
	for _, f := range s.stack[1:] {
		names = append(names, f.name)
	}

	s.root = root
	s.stack = []cwdFrame{{tree: root}}
	for _, name := range names {
		if err := s.descend(name); err != nil {
			return fmt.Errorf("refresh cwd: lost folder %q after a tree change: %w", name, err)
		}
	}
	return nil
}

func (s *state) descend(name string) error {
	cur := s.cwd()
	edge, ok := cur.tree.GetByName(name)
	if !ok {
		return fmt.Errorf("%q: no such file or folder", name)
	}
	if !edge.IsFolder {
		return fmt.Errorf("%q: not a folder", name)
	}
	s.stack = append(s.stack, cwdFrame{name: name, key: edge.Key, tree: edge.Subtree})
	return nil
}

// refreshTree re-fetches the keyring from the server and decrypts it with
// the already-recovered private key, used after any mutation so the shell
// reflects server state rather than guessing at it locally.
func (s *state) refreshTree(ctx context.Context) error {
	wire, err := s.client.GetKeyring(ctx)
	if err != nil {
		return fmt.Errorf("fetch keyring: %w", err)
	}
	plain, err := keyring.Decrypt(wire, s.priv)
	if err != nil {
		return fmt.Errorf("decrypt keyring: %w", err)
	}
	return s.setTree(plain)
}

// adoptLogin installs the credentials and tree a successful login
// produced.
func (s *state) adoptLogin(ctx context.Context, username string, token string, priv *rsa.PrivateKey, pub *rsa.PublicKey, wireTree *keyring.Tree) error {
	s.client.SetToken(token)
	s.username = username
	s.priv = priv
	s.pub = pub

	plain, err := keyring.Decrypt(wireTree, priv)
	if err != nil {
		return fmt.Errorf("decrypt keyring: %w", err)
	}
	return s.setTree(plain)
}

func (s *state) clear() {
	s.client.SetToken("")
	s.username = ""
	s.priv = nil
	s.pub = nil
	s.root = nil
	s.stack = nil
}
