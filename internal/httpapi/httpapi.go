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

// Package httpapi wires the endpoints of spec.md §6 onto internal/fileops,
// internal/opaqueauth and internal/sessionstore. It owns wire encoding,
// bearer-auth middleware and status-code mapping; every cryptographic and
// authorization decision is delegated to those packages.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tsfs-project/tsfs/health"
	"github.com/tsfs-project/tsfs/internal/fileops"
	"github.com/tsfs-project/tsfs/internal/logger"
	"github.com/tsfs-project/tsfs/internal/metrics"
	"github.com/tsfs-project/tsfs/internal/opaqueauth"
	"github.com/tsfs-project/tsfs/internal/sessionstore"
	"github.com/tsfs-project/tsfs/pkg/store"
)

// Server holds everything an HTTP handler needs: the store, the OPAQUE
// driver, the session store and the fileops service built on top of it.
type Server struct {
	db       store.Store
	driver   *opaqueauth.Driver
	sessions *sessionstore.Store
	files    *fileops.Service
	log      logger.Logger
	health   *health.HealthChecker
}

// NewServer wires a Server from its three stateful collaborators.
func NewServer(db store.Store, driver *opaqueauth.Driver, sessions *sessionstore.Store) *Server {
	return &Server{
		db:       db,
		driver:   driver,
		sessions: sessions,
		files:    fileops.New(db),
		log:      logger.GetDefaultLogger(),
	}
}

// SetHealthChecker attaches the readiness checker GET /health reports.
// Without one, /health always reports healthy with no checks listed, which
// keeps httpapi usable standalone in tests.
func (s *Server) SetHealthChecker(h *health.HealthChecker) {
	s.health = h
}

// Routes builds the full endpoint table of spec.md §6.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register/start", s.handleRegisterStart)
	mux.HandleFunc("POST /auth/register/finish", s.handleRegisterFinish)
	mux.HandleFunc("POST /auth/login/start", s.handleLoginStart)
	mux.HandleFunc("POST /auth/login/finish", s.handleLoginFinish)
	mux.HandleFunc("POST /auth/change_password/start", s.requireAuth(s.handleChangePasswordStart))
	mux.HandleFunc("POST /auth/change_password/finish", s.requireAuth(s.handleChangePasswordFinish))
	mux.HandleFunc("GET /auth/session", s.requireAuth(s.handleGetSession))
	mux.HandleFunc("GET /auth/sessions", s.requireAuth(s.handleListSessions))
	mux.HandleFunc("POST /auth/revoke", s.requireAuth(s.handleRevoke))
	mux.HandleFunc("POST /auth/revoke_all", s.requireAuth(s.handleRevokeAll))

	mux.HandleFunc("GET /pubkey/{user}", s.requireAuth(s.handlePubKey))
	mux.HandleFunc("GET /keyring", s.requireAuth(s.handleGetKeyring))

	mux.HandleFunc("POST /file/upload", s.requireAuth(s.handleUpload))
	mux.HandleFunc("GET /file/download", s.requireAuth(s.handleDownload))
	mux.HandleFunc("DELETE /file/delete", s.requireAuth(s.handleDelete))
	mux.HandleFunc("POST /file/share", s.requireAuth(s.handleShare))
	mux.HandleFunc("POST /file/unshare", s.requireAuth(s.handleUnshare))
	mux.HandleFunc("POST /folder/create", s.requireAuth(s.handleCreateFolder))

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", s.handleHealthz)
	mux.HandleFunc("GET /debug/summary", s.requireAuth(s.handleDebugSummary))

	return mux
}

// handleDebugSummary implements GET /debug/summary: the in-process rollup
// metrics.Collector keeps, for operators who want a single JSON document
// rather than scraping /metrics.
func (s *Server) handleDebugSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.GlobalCollector().Snapshot())
}

// handleHealthz implements GET /health: the aggregate readiness of the
// checks SetHealthChecker registered.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, health.SystemHealth{Status: health.StatusHealthy})
		return
	}

	sys := s.health.GetSystemHealth(r.Context())
	status := http.StatusOK
	if sys.Status != health.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sys)
}

type ctxKey int

const usernameKey ctxKey = iota

// requireAuth validates the bearer token and stashes the authenticated
// username in the request context for the wrapped handler.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, logger.ErrCodeUnauthorized, "missing bearer token")
			return
		}

		username, err := s.sessions.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, sessionstore.ErrExpired):
				metrics.SessionsExpired.Inc()
				writeError(w, http.StatusUnauthorized, logger.ErrCodeExpired, "session expired")
			case errors.Is(err, sessionstore.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, logger.ErrCodeUnauthorized, "invalid session")
			default:
				s.log.Error("authenticate", logger.Error(err))
				writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, struct {
			username, token string
		}{username, token})
		next(w, r.WithContext(ctx))
	}
}

// authInfo pulls the username and raw bearer token requireAuth stashed in
// the request context.
func authInfo(r *http.Request) (username, token string) {
	v, _ := r.Context().Value(usernameKey).(struct{ username, token string })
	return v.username, v.token
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, logger.NewAPIError(code, message, nil))
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// errStatus maps a fileops/sessionstore/opaqueauth sentinel error onto the
// status codes spec.md §6 names. Unrecognized errors default to 500.
func errStatus(err error) (int, string) {
	switch {
	case errors.Is(err, fileops.ErrForbidden):
		return http.StatusForbidden, logger.ErrCodeForbidden
	case errors.Is(err, fileops.ErrNotFound), store.IsNotFound(err):
		return http.StatusNotFound, logger.ErrCodeNotFound
	case errors.Is(err, fileops.ErrFolderNotEmpty):
		return http.StatusConflict, logger.ErrCodeConflict
	case errors.Is(err, fileops.ErrUnshareFolder):
		return http.StatusBadRequest, logger.ErrCodeInvalidInput
	case errors.Is(err, opaqueauth.ErrConflict):
		return http.StatusConflict, logger.ErrCodeConflict
	case errors.Is(err, opaqueauth.ErrUnknownLogin):
		return http.StatusUnauthorized, logger.ErrCodeProtocolAbort
	case errors.Is(err, sessionstore.ErrUnauthorized), errors.Is(err, sessionstore.ErrExpired):
		return http.StatusUnauthorized, logger.ErrCodeUnauthorized
	default:
		return http.StatusInternalServerError, logger.ErrCodeInternal
	}
}

func observeAuthStage(flow, stage string, start time.Time) {
	metrics.AuthHandshakeDuration.WithLabelValues(flow, stage).Observe(time.Since(start).Seconds())
}
