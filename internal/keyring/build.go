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

package keyring

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tsfs-project/tsfs/pkg/store"
)

// Build assembles the full ciphertext Tree rooted at keyringID, recursing
// into folder subtrees. The server never decrypts anything along the way
// (spec.md I4); it only reshapes rows into the wire structure.
func Build(ctx context.Context, db store.Store, keyringID string) (*Tree, error) {
	edges, err := db.ListEdges(ctx, keyringID)
	if err != nil {
		return nil, fmt.Errorf("keyring: list edges of %s: %w", keyringID, err)
	}

	t := &Tree{ID: keyringID}
	for _, k := range edges {
		f, err := db.GetFile(ctx, k.Target)
		if err != nil {
			if store.IsNotFound(err) {
				// A dangling edge (target deleted without its edge being
				// cleaned up) is a data-integrity bug elsewhere, not
				// something GetTree should fail the whole request over.
				continue
			}
			return nil, fmt.Errorf("keyring: get file %s: %w", k.Target, err)
		}

		target := Target{
			ID:            f.ID,
			EncryptedName: base64.StdEncoding.EncodeToString(f.EncryptedName),
		}
		if f.IsFolder() {
			sub, err := Build(ctx, db, *f.FolderKeyringID)
			if err != nil {
				return nil, err
			}
			target.Subtree = sub
		}

		t.Edges = append(t.Edges, Edge{WrappedKey: k.WrappedKey, Target: target})
	}
	return t, nil
}
