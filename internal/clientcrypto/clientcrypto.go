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

// Package clientcrypto is the client-side half of spec.md §4.D: given the
// plaintext keyring tree internal/keyring.Decrypt produces, it prepares the
// ciphertext material an upload, folder-create, share or unshare request
// needs, and unwraps the material those endpoints return.
package clientcrypto

import (
	"crypto/rsa"
	"fmt"

	"github.com/tsfs-project/tsfs/internal/cryptox"
	"github.com/tsfs-project/tsfs/internal/keyring"
)

// NewFilePayload is everything the server needs to place a new file or
// folder under some parent: its own fresh symmetric key, plus that key
// wrapped for whichever keyring owns the parent.
type NewFilePayload struct {
	SymmetricKey  []byte
	EncryptedName []byte
	WrappedKey    []byte
}

// PrepareUpload encrypts name and plaintext under a freshly generated
// symmetric key, then wraps that key for insertion into parentKey's
// keyring. Pass parentKey as nil to target the user's root (wrapped with
// the account's RSA public key instead).
func PrepareUpload(name string, plaintext []byte, parentKey []byte, pub *rsa.PublicKey) (*NewFilePayload, []byte, error) {
	key, err := cryptox.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("clientcrypto: generate key: %w", err)
	}

	encryptedName, err := cryptox.Seal(key, []byte(name))
	if err != nil {
		return nil, nil, fmt.Errorf("clientcrypto: seal name: %w", err)
	}

	ciphertext, err := cryptox.Seal(key, plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("clientcrypto: seal content: %w", err)
	}

	wrapped, err := wrapKey(key, parentKey, pub)
	if err != nil {
		return nil, nil, err
	}

	return &NewFilePayload{SymmetricKey: key, EncryptedName: encryptedName, WrappedKey: wrapped}, ciphertext, nil
}

// PrepareFolder encrypts a folder name under a fresh symmetric key and
// wraps that key the same way PrepareUpload does; the caller separately
// uses the fresh key as the new folder's own wrapping key for anything
// placed inside it later.
func PrepareFolder(name string, parentKey []byte, pub *rsa.PublicKey) (*NewFilePayload, error) {
	key, err := cryptox.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("clientcrypto: generate key: %w", err)
	}
	encryptedName, err := cryptox.Seal(key, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("clientcrypto: seal name: %w", err)
	}
	wrapped, err := wrapKey(key, parentKey, pub)
	if err != nil {
		return nil, err
	}
	return &NewFilePayload{SymmetricKey: key, EncryptedName: encryptedName, WrappedKey: wrapped}, nil
}

func wrapKey(key, parentKey []byte, pub *rsa.PublicKey) ([]byte, error) {
	if parentKey != nil {
		wrapped, err := cryptox.Seal(parentKey, key)
		if err != nil {
			return nil, fmt.Errorf("clientcrypto: seal key under parent: %w", err)
		}
		return wrapped, nil
	}
	wrapped, err := cryptox.WrapToPublicKey(pub, key)
	if err != nil {
		return nil, fmt.Errorf("clientcrypto: wrap key to pubkey: %w", err)
	}
	return wrapped, nil
}

// PrepareOverwrite re-seals name and plaintext under a file's EXISTING
// symmetric key rather than generating a fresh one. Overwriting a file in
// place (fileops.UploadInput.OverwriteFileID) leaves that file's edge and
// wrapped key untouched, so resealing under a new key would make the
// ciphertext undecryptable by anyone still holding only the old wrapped key.
func PrepareOverwrite(key []byte, name string, plaintext []byte) (encryptedName, ciphertext []byte, err error) {
	encryptedName, err = cryptox.Seal(key, []byte(name))
	if err != nil {
		return nil, nil, fmt.Errorf("clientcrypto: seal name: %w", err)
	}
	ciphertext, err = cryptox.Seal(key, plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("clientcrypto: seal content: %w", err)
	}
	return encryptedName, ciphertext, nil
}

// PrepareShare re-wraps an already-known symmetric key for insertion into
// another user's root keyring (spec.md §4.F "Share").
func PrepareShare(fileKey []byte, targetPub *rsa.PublicKey) ([]byte, error) {
	wrapped, err := cryptox.WrapToPublicKey(targetPub, fileKey)
	if err != nil {
		return nil, fmt.Errorf("clientcrypto: wrap share key: %w", err)
	}
	return wrapped, nil
}

// PrepareUnshare generates a fresh symmetric key for the file being
// unshared, re-encrypts its name and content under it, and wraps the new
// key for the caller's chosen parent, implementing the rekey half of
// spec.md §4.F "Unshare".
func PrepareUnshare(name string, plaintext []byte, parentKey []byte, pub *rsa.PublicKey) (*NewFilePayload, []byte, error) {
	return PrepareUpload(name, plaintext, parentKey, pub)
}

// DecryptDownload opens ciphertext downloaded from the server using the
// already-recovered symmetric key for that file (found via
// PlaintextTree.GetByID or GetByName).
func DecryptDownload(key, ciphertext []byte) ([]byte, error) {
	plaintext, err := cryptox.Open(key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("clientcrypto: decrypt download: %w", err)
	}
	return plaintext, nil
}

// ResolvePath walks a plaintext tree one path component at a time (the
// client's folder-stack navigation, spec.md §4.D "no path parse" on the
// server — path resolution is a client-only convenience).
func ResolvePath(root *keyring.PlaintextTree, components []string) (*keyring.PlaintextEdge, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("clientcrypto: empty path")
	}

	current := root
	var edge *keyring.PlaintextEdge
	for i, name := range components {
		found, ok := current.GetByName(name)
		if !ok {
			return nil, fmt.Errorf("clientcrypto: %q not found", name)
		}
		edge = found
		if i < len(components)-1 {
			if !found.IsFolder || found.Subtree == nil {
				return nil, fmt.Errorf("clientcrypto: %q is not a folder", name)
			}
			current = found.Subtree
		}
	}
	return edge, nil
}
