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

package httpapi

import (
	"net/http"
	"time"

	"github.com/tsfs-project/tsfs/internal/keyring"
	"github.com/tsfs-project/tsfs/internal/logger"
	"github.com/tsfs-project/tsfs/internal/metrics"
	"github.com/tsfs-project/tsfs/internal/opaqueauth"
	"github.com/tsfs-project/tsfs/internal/sessionstore"
	"github.com/tsfs-project/tsfs/pkg/store"

	"github.com/google/uuid"
)

type registerStartRequest struct {
	Username string `json:"username"`
	Request  []byte `json:"request"`
}

type registerStartResponse struct {
	Response []byte `json:"response"`
}

// handleRegisterStart implements POST /auth/register/start: OPAQUE
// registration round 1 (spec.md §6).
func (s *Server) handleRegisterStart(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in registerStartRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	metrics.AuthHandshakesInitiated.WithLabelValues("register").Inc()

	req, err := opaqueauth.Configuration().DeserializeRegistrationRequest(in.Request)
	if err != nil {
		metrics.AuthHandshakesAborted.WithLabelValues("invalid_envelope").Inc()
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed registration request")
		return
	}

	exists, err := s.db.UserExists(r.Context(), in.Username)
	if err != nil {
		s.log.Error("register start: user exists", logger.Error(err))
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	resp, err := s.driver.RegistrationStart(exists, req, in.Username)
	if err != nil {
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	observeAuthStage("register", "start", start)
	writeJSON(w, http.StatusOK, registerStartResponse{Response: resp.Serialize()})
}

type registerFinishRequest struct {
	Username            string `json:"username"`
	Upload              []byte `json:"upload"`
	PublicKey           []byte `json:"public_key"`
	EncryptedPrivateKey []byte `json:"encrypted_private_key"`
}

// handleRegisterFinish implements POST /auth/register/finish: finalize the
// OPAQUE record and atomically create the user plus their root keyring
// (spec.md §6, §4.B "If uniqueness fails between the two rounds").
func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in registerFinishRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	upload, err := opaqueauth.Configuration().DeserializeRegistrationUpload(in.Upload)
	if err != nil {
		metrics.AuthHandshakesAborted.WithLabelValues("invalid_envelope").Inc()
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed registration upload")
		return
	}

	record, err := s.driver.RegistrationFinish(upload)
	if err != nil {
		metrics.AuthHandshakesCompleted.WithLabelValues("register", "failure").Inc()
		metrics.GlobalCollector().RecordAuth(false, time.Since(start))
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	tx, err := s.db.Begin(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	exists, err := tx.UserExists(r.Context(), in.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	if exists {
		metrics.AuthHandshakesCompleted.WithLabelValues("register", "failure").Inc()
		metrics.GlobalCollector().RecordAuth(false, time.Since(start))
		writeError(w, http.StatusConflict, logger.ErrCodeConflict, opaqueauth.ErrConflict.Error())
		return
	}

	rootKeyringID := uuid.New().String()
	if err := tx.CreateKeyring(r.Context(), rootKeyringID); err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	u := &store.User{
		Username:            in.Username,
		PasswordEnvelope:    record.Serialize(),
		PublicKey:           in.PublicKey,
		EncryptedPrivateKey: in.EncryptedPrivateKey,
		RootKeyringID:       rootKeyringID,
	}
	if err := tx.CreateUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	metrics.AuthHandshakesCompleted.WithLabelValues("register", "success").Inc()
	metrics.GlobalCollector().RecordAuth(true, time.Since(start))
	observeAuthStage("register", "finish", start)
	w.WriteHeader(http.StatusCreated)
}

type loginStartRequest struct {
	Username string `json:"username"`
	KE1      []byte `json:"ke1"`
}

type loginStartResponse struct {
	KE2 []byte `json:"ke2"`
}

// handleLoginStart implements POST /auth/login/start (spec.md §6, §4.B
// "never short-circuited" dummy-record branch).
func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in loginStartRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	metrics.AuthHandshakesInitiated.WithLabelValues("login").Inc()

	ke1, err := opaqueauth.Configuration().DeserializeKE1(in.KE1)
	if err != nil {
		metrics.AuthHandshakesAborted.WithLabelValues("invalid_envelope").Inc()
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed ke1")
		return
	}

	var record *opaqueauth.RegistrationRecord
	u, err := s.db.GetUser(r.Context(), in.Username)
	switch {
	case err == nil:
		record, err = opaqueauth.Configuration().DeserializeRegistrationRecord(u.PasswordEnvelope)
		if err != nil {
			writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
			return
		}
	case store.IsNotFound(err):
		metrics.AuthHandshakesAborted.WithLabelValues("unknown_user").Inc()
		record = nil
	default:
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	ke2, err := s.driver.LoginStart(in.Username, record, ke1)
	if err != nil {
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	observeAuthStage("login", "start", start)
	writeJSON(w, http.StatusOK, loginStartResponse{KE2: ke2.Serialize()})
}

type loginFinishRequest struct {
	Username string `json:"username"`
	KE3      []byte `json:"ke3"`
}

type loginFinishResponse struct {
	Token               string        `json:"token"`
	PublicKey           []byte        `json:"public_key"`
	EncryptedPrivateKey []byte        `json:"encrypted_private_key"`
	Tree                *keyring.Tree `json:"tree"`
}

// handleLoginFinish implements POST /auth/login/finish: finalize the AKE,
// mint a session, and return everything the client needs to resume working
// (spec.md §6).
func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in loginFinishRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	ke3, err := opaqueauth.Configuration().DeserializeKE3(in.KE3)
	if err != nil {
		metrics.AuthHandshakesAborted.WithLabelValues("invalid_envelope").Inc()
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed ke3")
		return
	}

	sessionKey, err := s.driver.LoginFinish(in.Username, ke3)
	if err != nil {
		metrics.AuthHandshakesCompleted.WithLabelValues("login", "failure").Inc()
		metrics.AuthHandshakesAborted.WithLabelValues("mismatch").Inc()
		metrics.GlobalCollector().RecordAuth(false, time.Since(start))
		status, code := errStatus(err)
		writeError(w, status, code, "authentication failed")
		return
	}

	u, err := s.db.GetUser(r.Context(), in.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	token, err := s.sessions.Issue(r.Context(), in.Username, sessionKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	metrics.SessionsIssued.WithLabelValues("success").Inc()
	metrics.GlobalCollector().RecordSessionIssued()

	tree, err := s.files.GetTree(r.Context(), u.RootKeyringID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	metrics.AuthHandshakesCompleted.WithLabelValues("login", "success").Inc()
	metrics.GlobalCollector().RecordAuth(true, time.Since(start))
	observeAuthStage("login", "finish", start)
	writeJSON(w, http.StatusOK, loginFinishResponse{
		Token:               token,
		PublicKey:           u.PublicKey,
		EncryptedPrivateKey: u.EncryptedPrivateKey,
		Tree:                tree,
	})
}

// handleChangePasswordStart implements POST /auth/change_password/start:
// OPAQUE registration round 1 against the already-authenticated caller
// (spec.md §6).
func (s *Server) handleChangePasswordStart(w http.ResponseWriter, r *http.Request) {
	username, _ := authInfo(r)
	var in registerStartRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	metrics.AuthHandshakesInitiated.WithLabelValues("change_password").Inc()

	req, err := opaqueauth.Configuration().DeserializeRegistrationRequest(in.Request)
	if err != nil {
		metrics.AuthHandshakesAborted.WithLabelValues("invalid_envelope").Inc()
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed registration request")
		return
	}

	resp, err := s.driver.ChangePasswordStart(req, username)
	if err != nil {
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, registerStartResponse{Response: resp.Serialize()})
}

type changePasswordFinishRequest struct {
	Upload              []byte `json:"upload"`
	EncryptedPrivateKey []byte `json:"encrypted_private_key"`
}

// handleChangePasswordFinish implements POST /auth/change_password/finish:
// replace the password envelope and the private-key wrapping, leaving the
// RSA key pair (and therefore every access grant, per P7) unchanged.
func (s *Server) handleChangePasswordFinish(w http.ResponseWriter, r *http.Request) {
	username, _ := authInfo(r)
	var in changePasswordFinishRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	upload, err := opaqueauth.Configuration().DeserializeRegistrationUpload(in.Upload)
	if err != nil {
		metrics.AuthHandshakesAborted.WithLabelValues("invalid_envelope").Inc()
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed registration upload")
		return
	}

	record, err := s.driver.RegistrationFinish(upload)
	if err != nil {
		metrics.AuthHandshakesCompleted.WithLabelValues("change_password", "failure").Inc()
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	if err := s.db.UpdatePassword(r.Context(), username, record.Serialize(), in.EncryptedPrivateKey); err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	metrics.AuthHandshakesCompleted.WithLabelValues("change_password", "success").Inc()
	w.WriteHeader(http.StatusOK)
}

type sessionResponse struct {
	Username   string `json:"username"`
	TokenShort string `json:"token_short"`
	ExpiresAt  string `json:"expires_at"`
}

// handleGetSession implements GET /auth/session: echo the caller's own
// session (spec.md §6).
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	username, token := authInfo(r)
	summary, err := s.sessions.Describe(r.Context(), token)
	if err != nil {
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Username:   username,
		TokenShort: summary.TokenShort,
		ExpiresAt:  time.UnixMilli(summary.ExpirationMS).UTC().Format(time.RFC3339),
	})
}

type sessionsResponse struct {
	Sessions []sessionstore.Summary `json:"sessions"`
}

// handleListSessions implements GET /auth/sessions (spec.md §6).
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	username, _ := authInfo(r)
	sessions, err := s.sessions.ListFor(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// handleRevoke implements POST /auth/revoke: end the caller's current
// session (spec.md §6).
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	_, token := authInfo(r)
	if err := s.sessions.Revoke(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	metrics.SessionsRevoked.WithLabelValues("single").Inc()
	metrics.GlobalCollector().RecordSessionRevoked()
	w.WriteHeader(http.StatusOK)
}

type revokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// handleRevokeAll implements POST /auth/revoke_all: "log out everywhere
// else" (spec.md §6).
func (s *Server) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	username, token := authInfo(r)
	n, err := s.sessions.RevokeAllExcept(r.Context(), username, token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	if n > 0 {
		metrics.SessionsRevoked.WithLabelValues("revoke_all").Add(float64(n))
		for i := int64(0); i < n; i++ {
			metrics.GlobalCollector().RecordSessionRevoked()
		}
	}
	writeJSON(w, http.StatusOK, revokeAllResponse{Revoked: n})
}
