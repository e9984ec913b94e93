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

// Package keyring implements the wire and plaintext forms of the keyring
// tree (spec.md §4.D): the recursive ciphertext structure the server sends
// in response to GET /keyring, and the client-side pipeline that walks it
// down to a plaintext, searchable tree given the user's private key.
package keyring

import (
	"crypto/rsa"
	"fmt"

	"github.com/tsfs-project/tsfs/internal/cryptox"
)

// Tree is the wire form sent by the server: KeyringTree = { id, edges }.
type Tree struct {
	ID    string `json:"id"`
	Edges []Edge `json:"edges"`
}

// Edge is one wire edge: a wrapped symmetric key plus the ciphertext target
// it unlocks. Subtree is non-nil iff Target is a folder.
type Edge struct {
	WrappedKey []byte `json:"wrapped_key"`
	Target     Target `json:"target"`
}

// Target is the ciphertext file/folder an Edge points at.
type Target struct {
	ID            string `json:"id"`
	EncryptedName string `json:"encrypted_name"`
	Subtree       *Tree  `json:"subtree,omitempty"`
}

// PlaintextTree is the client-side decrypted form of a Tree: every edge's
// symmetric key and target name are plaintext, and folders recurse.
type PlaintextTree struct {
	ID    string
	Edges []PlaintextEdge
}

// PlaintextEdge pairs a decrypted symmetric key with its decrypted target.
type PlaintextEdge struct {
	Key          []byte
	TargetID     string
	TargetName   string
	IsFolder     bool
	Subtree      *PlaintextTree
}

// Decrypt walks a ciphertext root Tree into a PlaintextTree using the
// pipeline in spec.md §4.D: root-level edges are unwrapped with the user's
// RSA private key, every edge below depth 0 is unwrapped with its parent
// folder's already-recovered AEAD key.
func Decrypt(root *Tree, priv *rsa.PrivateKey) (*PlaintextTree, error) {
	out := &PlaintextTree{ID: root.ID}
	for _, e := range root.Edges {
		key, err := cryptox.UnwrapWithPrivateKey(priv, e.WrappedKey)
		if err != nil {
			return nil, fmt.Errorf("keyring: unwrap root edge %s: %w", e.Target.ID, err)
		}
		pe, err := decryptEdge(e, key)
		if err != nil {
			return nil, err
		}
		out.Edges = append(out.Edges, pe)
	}
	return out, nil
}

// decryptSubtree walks a non-root Tree whose edges are wrapped under the
// parent folder's symmetric key.
func decryptSubtree(t *Tree, parentKey []byte) (*PlaintextTree, error) {
	out := &PlaintextTree{ID: t.ID}
	for _, e := range t.Edges {
		key, err := cryptox.Open(parentKey, e.WrappedKey)
		if err != nil {
			return nil, fmt.Errorf("keyring: unwrap edge %s: %w", e.Target.ID, err)
		}
		pe, err := decryptEdge(e, key)
		if err != nil {
			return nil, err
		}
		out.Edges = append(out.Edges, pe)
	}
	return out, nil
}

func decryptEdge(e Edge, key []byte) (PlaintextEdge, error) {
	nameBytes, err := cryptox.DecodeEnvelope(e.Target.EncryptedName)
	if err != nil {
		return PlaintextEdge{}, fmt.Errorf("keyring: decode name envelope: %w", err)
	}
	name, err := cryptox.Open(key, nameBytes)
	if err != nil {
		return PlaintextEdge{}, fmt.Errorf("keyring: decrypt name %s: %w", e.Target.ID, err)
	}

	pe := PlaintextEdge{
		Key:        key,
		TargetID:   e.Target.ID,
		TargetName: string(name),
		IsFolder:   e.Target.Subtree != nil,
	}
	if e.Target.Subtree != nil {
		sub, err := decryptSubtree(e.Target.Subtree, key)
		if err != nil {
			return PlaintextEdge{}, err
		}
		pe.Subtree = sub
	}
	return pe, nil
}

// GetByID performs a depth-first search of t for an edge whose target has
// the given id (spec.md §4.D "get_by_id").
func (t *PlaintextTree) GetByID(id string) (*PlaintextEdge, bool) {
	for i := range t.Edges {
		e := &t.Edges[i]
		if e.TargetID == id {
			return e, true
		}
		if e.Subtree != nil {
			if found, ok := e.Subtree.GetByID(id); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// GetByName looks up an edge by name at exactly this level, with no path
// parsing (spec.md §4.D "get_by_name").
func (t *PlaintextTree) GetByName(name string) (*PlaintextEdge, bool) {
	for i := range t.Edges {
		if t.Edges[i].TargetName == name {
			return &t.Edges[i], true
		}
	}
	return nil, false
}
