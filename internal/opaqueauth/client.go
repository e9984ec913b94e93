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

package opaqueauth

import (
	"fmt"

	"github.com/bytemare/opaque"
)

// ExportKeySize is the length of the export key OPAQUE derives as a side
// effect of registration and login. Only its first 32 bytes are used as an
// AEAD key (spec.md §4.A contract).
const ExportKeySize = 64

// ClientDriver runs the client half of the three OPAQUE flows. It is used
// both by the interactive CLI client and by server-side integration tests
// that need to act as a client.
type ClientDriver struct {
	conf *opaque.Configuration
}

// NewClientDriver returns a ClientDriver using the fixed TSFS ciphersuite.
func NewClientDriver() *ClientDriver {
	return &ClientDriver{conf: Configuration()}
}

// RegistrationStart blinds password for round 1 of registration.
func (c *ClientDriver) RegistrationStart(password []byte) (*opaque.RegistrationRequest, error) {
	client, err := c.conf.Client()
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: new client: %w", err)
	}
	return client.RegistrationInit(password), nil
}

// RegistrationFinish finalizes registration against the server's response,
// deriving the 64-byte export key bound to username and ServerIdentity.
func (c *ClientDriver) RegistrationFinish(password []byte, username string, resp *opaque.RegistrationResponse) (*opaque.RegistrationUpload, []byte, error) {
	client, err := c.conf.Client()
	if err != nil {
		return nil, nil, fmt.Errorf("opaqueauth: new client: %w", err)
	}

	upload, exportKey, err := client.RegistrationFinalize(resp, opaque.ClientRegistrationFinalizeOptions{
		ClientIdentity: []byte(username),
		ServerIdentity: []byte(ServerIdentity),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opaqueauth: registration finalize: %w", err)
	}
	return upload, exportKey, nil
}

// LoginStart blinds password for round 1 of login.
func (c *ClientDriver) LoginStart(password []byte) (*opaque.KE1, error) {
	client, err := c.conf.Client()
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: new client: %w", err)
	}
	ke1, err := client.GenerateKE1(password)
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: generate ke1: %w", err)
	}
	return ke1, nil
}

// LoginFinish completes the AKE, yielding the 32-byte session key (the
// future bearer token material) and the 64-byte export key used to unseal
// the private key the server returns alongside it. ProtocolAbort (spec.md
// §7) surfaces here as a non-nil error; the caller MUST NOT proceed to
// /auth/login/finish in that case.
func (c *ClientDriver) LoginFinish(password []byte, username string, ke2 *opaque.KE2) (*opaque.KE3, []byte, []byte, error) {
	client, err := c.conf.Client()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opaqueauth: new client: %w", err)
	}

	ke3, exportKey, err := client.GenerateKE3(ke2, opaque.ClientLoginFinishOptions{
		ClientIdentity: []byte(username),
		ServerIdentity: []byte(ServerIdentity),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opaqueauth: generate ke3: %w", err)
	}

	return ke3, client.SessionKey(), exportKey, nil
}
