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

// Package cryptox implements the cryptographic primitives shared by the
// server and the client: AEAD sealing of names/content/keys, RSA-OAEP
// wrapping of symmetric keys, and the base64 envelope used to carry
// ciphertext over JSON.
package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required length, in bytes, of every AEAD key used in the
// system: root-keyring symmetric keys, folder-keyring symmetric keys, and
// file content keys are all exactly this long.
const KeySize = chacha20poly1305.KeySize // 32

// NonceSize is the length of the random nonce prepended to every ciphertext.
const NonceSize = chacha20poly1305.NonceSize // 12

// ErrKeyMismatch is returned when an AEAD open fails: either the key is
// wrong (wrong password, stale share) or the ciphertext was corrupted.
// Per spec.md §7 the server and client never distinguish the two causes.
var ErrKeyMismatch = errors.New("cryptox: key mismatch or corrupt ciphertext")

// GenerateKey returns a fresh, uniformly random 32-byte AEAD key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("cryptox: generate key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key with ChaCha20-Poly1305 and a freshly
// generated random nonce, returning nonce‖ciphertext‖tag. A fresh nonce is
// drawn for every call; reusing a (key, nonce) pair is a confidentiality
// break and must never happen (see spec.md §4.A).
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptox: key must be %d bytes, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: new aead: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// Open splits the leading nonce off sealed and attempts to decrypt the
// remainder under key. Any failure, whether from a malformed envelope or a
// failed tag check, is reported uniformly as ErrKeyMismatch.
func Open(key, sealed []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptox: key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(sealed) < NonceSize {
		return nil, ErrKeyMismatch
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: new aead: %w", err)
	}

	nonce, ciphertext := sealed[:NonceSize], sealed[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrKeyMismatch
	}
	return plaintext, nil
}
