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

// Package authz implements has_access (spec.md §4.E), the sole server-side
// authorization check: a depth-first walk of the caller's keyring graph
// bounded by a depth limit and a visited-set so a malformed or maliciously
// constructed database cannot induce an infinite traversal.
package authz

import (
	"context"
	"fmt"

	"github.com/tsfs-project/tsfs/pkg/store"
)

// MaxDepth bounds the traversal (spec.md §4.E "suggested 64").
const MaxDepth = 64

// HasAccess reports whether fileID is reachable from rootKeyringID by
// following edges through folder keyrings. Callers MUST always pass the
// caller's own session user's root keyring — HasAccess grants exactly the
// view of whatever keyring it is given (spec.md §4.E "Isolation").
func HasAccess(ctx context.Context, db store.Store, rootKeyringID, fileID string) (bool, error) {
	visited := make(map[string]bool)
	return hasAccess(ctx, db, rootKeyringID, fileID, visited, 0)
}

func hasAccess(ctx context.Context, db store.Store, keyringID, fileID string, visited map[string]bool, depth int) (bool, error) {
	if depth >= MaxDepth {
		return false, nil
	}
	if visited[keyringID] {
		return false, nil
	}
	visited[keyringID] = true

	edges, err := db.ListEdges(ctx, keyringID)
	if err != nil {
		return false, fmt.Errorf("authz: list edges of %s: %w", keyringID, err)
	}

	for _, e := range edges {
		if e.Target == fileID {
			return true, nil
		}

		f, err := db.GetFile(ctx, e.Target)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return false, fmt.Errorf("authz: get file %s: %w", e.Target, err)
		}
		if !f.IsFolder() {
			continue
		}

		ok, err := hasAccess(ctx, db, *f.FolderKeyringID, fileID, visited, depth+1)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
