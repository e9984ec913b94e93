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

// Package opaqueauth drives the augmented OPAQUE PAKE (github.com/bytemare/opaque)
// through the three two-round flows spec.md §4.B requires: registration,
// login, and authenticated password change. It never exposes a password or
// an export key outside of this package and the immediate caller.
package opaqueauth

import (
	"crypto"

	"github.com/bytemare/ksf"
	"github.com/bytemare/opaque"
)

// ServerIdentity is the fixed server identity string bound into every OPAQUE
// transcript. Changing it invalidates every existing registration
// (spec.md §4.B).
const ServerIdentity = "TSFSServer"

// TokenLifetimeSeconds is how long an issued session is valid for, per spec.md §4.B.
// Defined here because it is part of the OPAQUE-adjacent contract (the
// server persists a Session with this expiration immediately after
// LoginFinish succeeds).
const TokenLifetimeSeconds = 3600

// Configuration returns the OPAQUE ciphersuite used by TSFS: Ristretto255 for
// both the OPRF and the AKE group, Triple-DH key exchange (the only exchange
// bytemare/opaque wires to the Ristretto255 AKE group), and Argon2id as the
// key-stretching function, matching spec.md §4.B exactly.
func Configuration() *opaque.Configuration {
	return &opaque.Configuration{
		OPRF:    opaque.RistrettoSha512,
		KDF:     crypto.SHA512,
		MAC:     crypto.SHA512,
		Hash:    crypto.SHA512,
		KSF:     ksf.Argon2id,
		AKE:     opaque.RistrettoSha512,
		Context: []byte(ServerIdentity),
	}
}
