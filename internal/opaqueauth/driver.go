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
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytemare/opaque"

	"github.com/tsfs-project/tsfs/internal/metrics"
)

// ErrConflict is returned by RegistrationStart when the username already
// exists; the register/finish handler reports the same error when its own
// re-check finds the name taken (spec.md §4.B, §7).
var ErrConflict = errors.New("opaqueauth: username already registered")

// ErrUnknownLogin is returned by LoginFinish when there is no matching
// in-flight login state for the username (client retried after a timeout,
// or finished twice).
var ErrUnknownLogin = errors.New("opaqueauth: no in-flight login for user")

// RegistrationRecord is the server-stored password envelope produced by
// registration and consumed by every subsequent login (spec.md's
// "password_envelope").
type RegistrationRecord = opaque.RegistrationRecord

// Driver runs the three OPAQUE flows against a persistent ServerSetup. It
// holds exactly the in-memory state spec.md §4.B and §5 require: nothing
// else survives a process restart except the ServerSetup itself, which the
// caller is responsible for persisting (env var OPAQUE_SERVER_SETUP).
type Driver struct {
	setup *opaque.ServerSetup
	conf  *opaque.Configuration

	mu     sync.Mutex
	logins map[string]*loginState // keyed by username

	dummyRecord *RegistrationRecord
}

type loginState struct {
	state   *opaque.ServerLoginState
	started time.Time
}

// NewDriver builds a Driver around an existing, previously persisted
// ServerSetup.
func NewDriver(setup *opaque.ServerSetup) *Driver {
	conf := Configuration()
	return &Driver{
		setup:       setup,
		conf:        conf,
		logins:      make(map[string]*loginState),
		dummyRecord: buildDummyRecord(conf, setup),
	}
}

// GenerateServerSetup creates a fresh, random ServerSetup: a server AKE
// keypair plus an OPRF seed. Losing this value invalidates every existing
// user (spec.md §4.B) — it is the one piece of server state that the
// tsfs-server setup subcommand exists to produce.
func GenerateServerSetup() (*opaque.ServerSetup, error) {
	conf := Configuration()
	setup, err := conf.NewServerSetup(rand.Reader, []byte(ServerIdentity))
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: generate server setup: %w", err)
	}
	return setup, nil
}

// EncodeServerSetup base64-encodes a ServerSetup for storage in the
// OPAQUE_SERVER_SETUP environment variable.
func EncodeServerSetup(setup *opaque.ServerSetup) string {
	return base64.StdEncoding.EncodeToString(setup.Serialize())
}

// DecodeServerSetup reverses EncodeServerSetup.
func DecodeServerSetup(encoded string) (*opaque.ServerSetup, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: decode server setup: %w", err)
	}
	conf := Configuration()
	setup, err := conf.DeserializeServerSetup(raw)
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: deserialize server setup: %w", err)
	}
	return setup, nil
}

// buildDummyRecord produces a fixed, process-wide placeholder
// RegistrationRecord. LoginStart passes it to server.LoginInit for any username
// that has no real record, so a login attempt against a nonexistent user
// runs the identical code path as one against a real user and observably
// fails the same way (spec.md §4.B, §7, §9 "Login against a nonexistent
// user").
func buildDummyRecord(conf *opaque.Configuration, setup *opaque.ServerSetup) *RegistrationRecord {
	server, err := conf.Server()
	if err != nil {
		panic(fmt.Sprintf("opaqueauth: build dummy record: %v", err))
	}
	return server.FakeRecord(setup)
}

// RegistrationStart is round 1 of registration: blind the client's OPRF
// input. Returns Conflict if the username is already registered (the
// caller checks again before persisting the record — spec.md §4.B).
func (d *Driver) RegistrationStart(exists bool, req *opaque.RegistrationRequest, username string) (*opaque.RegistrationResponse, error) {
	if exists {
		return nil, ErrConflict
	}

	server, err := d.conf.Server()
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: new server: %w", err)
	}

	resp, err := server.RegistrationResponse(req, d.setup, []byte(username), nil)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("registration_response", "opaque").Inc()
		return nil, fmt.Errorf("opaqueauth: registration response: %w", err)
	}
	metrics.CryptoOperations.WithLabelValues("registration_response", "opaque").Inc()
	return resp, nil
}

// RegistrationFinish is round 2: turn the client's upload into a
// RegistrationRecord the server stores as the user's password_envelope.
// Callers MUST re-check username uniqueness inside the same transaction
// that persists the returned record (spec.md §4.B "If uniqueness fails
// between the two rounds").
func (d *Driver) RegistrationFinish(upload *opaque.RegistrationUpload) (*RegistrationRecord, error) {
	server, err := d.conf.Server()
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: new server: %w", err)
	}
	record := server.RegistrationFinalize(upload)
	metrics.CryptoOperations.WithLabelValues("registration_finalize", "opaque").Inc()
	return record, nil
}

// ChangePasswordStart is round 1 of an authenticated password change: the
// same OPRF blinding RegistrationStart performs, but for a username already
// known to exist (the caller authenticated as that user to reach this
// point, so the conflict check RegistrationStart applies for fresh
// registrations does not apply here).
func (d *Driver) ChangePasswordStart(req *opaque.RegistrationRequest, username string) (*opaque.RegistrationResponse, error) {
	return d.RegistrationStart(false, req, username)
}

// LoginStart is round 1 of login. When record is nil (unknown username) the
// dummy record is used unconditionally, never short-circuited, so the
// server does the same Argon2id+OPRF work and returns a structurally
// identical CredentialResponse either way (spec.md §4.B, §7).
func (d *Driver) LoginStart(username string, record *RegistrationRecord, req *opaque.KE1) (*opaque.KE2, error) {
	server, err := d.conf.Server()
	if err != nil {
		return nil, fmt.Errorf("opaqueauth: new server: %w", err)
	}

	effective := record
	if effective == nil {
		effective = d.dummyRecord
	}

	ke2, state, err := server.LoginInit(d.setup, effective, req, []byte(username), []byte(ServerIdentity))
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("login_init", "opaque").Inc()
		return nil, fmt.Errorf("opaqueauth: login init: %w", err)
	}
	metrics.CryptoOperations.WithLabelValues("login_init", "opaque").Inc()

	d.mu.Lock()
	d.logins[username] = &loginState{state: state, started: time.Now()}
	d.mu.Unlock()

	return ke2, nil
}

// LoginFinish is round 2: pop the in-flight state for username (regardless
// of outcome, per spec.md §4.B's state machine) and finalize. A successful
// finalize yields the 32-byte session key the caller persists as a Session.
func (d *Driver) LoginFinish(username string, ke3 *opaque.KE3) ([]byte, error) {
	d.mu.Lock()
	st, ok := d.logins[username]
	delete(d.logins, username)
	d.mu.Unlock()

	if !ok {
		return nil, ErrUnknownLogin
	}

	sessionKey, err := st.state.Finish(ke3)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("login_finish", "opaque").Inc()
		return nil, fmt.Errorf("opaqueauth: login finish: %w", err)
	}
	metrics.CryptoOperations.WithLabelValues("login_finish", "opaque").Inc()
	return sessionKey, nil
}

// SweepExpiredLogins removes in-flight login halves older than
// TokenLifetimeSeconds, per spec.md §5 "Cancellation": a client disconnect
// during login start must not grow server_login_states without bound.
func (d *Driver) SweepExpiredLogins() int {
	cutoff := time.Now().Add(-TokenLifetimeSeconds * time.Second)

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for username, st := range d.logins {
		if st.started.Before(cutoff) {
			delete(d.logins, username)
			removed++
		}
	}
	return removed
}
