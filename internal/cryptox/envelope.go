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

package cryptox

import "encoding/base64"

// EncodeEnvelope base64-standard-encodes (with padding) AEAD ciphertext so
// it can occupy a JSON string field. Used for encrypted_name on the wire
// (spec.md §4.A, §6).
func EncodeEnvelope(sealed []byte) string {
	return base64.StdEncoding.EncodeToString(sealed)
}

// DecodeEnvelope reverses EncodeEnvelope.
func DecodeEnvelope(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
