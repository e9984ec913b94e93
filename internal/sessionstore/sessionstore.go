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

// Package sessionstore issues and validates the bearer tokens TSFS hands
// back from /auth/login/finish, per spec.md §4.C "Session store". It owns
// token generation and the session lifecycle (issue, authenticate, revoke,
// revoke_all_except, list, expire) on top of a pkg/store.Store; it holds no
// state of its own beyond a background expiration sweeper, mirroring the
// map+ticker lifecycle shape of a long-lived in-process manager while
// delegating all durable state to the store.
package sessionstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tsfs-project/tsfs/internal/opaqueauth"
	"github.com/tsfs-project/tsfs/pkg/store"
)

// TokenLifetime is how long a freshly issued session remains valid.
const TokenLifetime = opaqueauth.TokenLifetimeSeconds * time.Second

// TokenShortLen is the prefix length used to identify a session in listings
// without exposing the full bearer token (spec.md §4.C, §6 GET /sessions).
const TokenShortLen = 16

// ErrUnauthorized is returned by Authenticate for a token that does not
// exist at all.
var ErrUnauthorized = errors.New("sessionstore: unauthorized")

// ErrExpired is returned by Authenticate for a token that existed but has
// passed its expiration. The session row is deleted as a side effect
// (spec.md §4.C "lazily, on first touch after expiry").
var ErrExpired = errors.New("sessionstore: session expired")

// Store issues and validates sessions against a pkg/store.Store.
type Store struct {
	db store.Store

	sweepInterval time.Duration
	stop          chan struct{}
	lastSwept     atomic.Int64 // unix nanoseconds, written by Run
}

// New wraps db. Call Run in a goroutine to start the background expired-
// session sweep; Store is safe to use before Run is started.
func New(db store.Store) *Store {
	s := &Store{db: db, sweepInterval: time.Minute, stop: make(chan struct{})}
	s.lastSwept.Store(time.Now().UnixNano())
	return s
}

// LastSweptAt reports when Run last completed an expired-session sweep, for
// health.SessionStoreHealthCheck. Before Run's first tick this is the time
// New was called, so a server that has not yet completed a sweep interval
// does not immediately report unhealthy.
func (s *Store) LastSweptAt() time.Time {
	return time.Unix(0, s.lastSwept.Load())
}

// Issue persists a new session for username and returns the bearer token:
// the base64-standard encoding of sessionKey, the 32-byte OPAQUE session
// key LoginFinish produced (spec.md §3 "Session", §4.B). The token's
// uniqueness therefore rests on the AKE transcript, not on a separately
// generated random value.
func (s *Store) Issue(ctx context.Context, username string, sessionKey []byte) (string, error) {
	token := base64.StdEncoding.EncodeToString(sessionKey)

	sess := &store.Session{
		Token:        token,
		Username:     username,
		ExpirationMS: time.Now().Add(TokenLifetime).UnixMilli(),
	}
	if err := s.db.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("sessionstore: create session: %w", err)
	}
	return token, nil
}

// Authenticate validates a bearer token, returning the session's username.
// An expired session is deleted before returning ErrExpired, implementing
// the lazy-deletion requirement in spec.md §4.C.
func (s *Store) Authenticate(ctx context.Context, token string) (string, error) {
	sess, err := s.db.GetSession(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("sessionstore: get session: %w", err)
	}

	if time.Now().After(sess.ExpiresAt()) {
		_ = s.db.DeleteSession(ctx, token)
		return "", ErrExpired
	}
	return sess.Username, nil
}

// Describe returns the Summary for a single live token, for GET
// /auth/session's "echo current session" (spec.md §6). Unlike Authenticate,
// it does not delete an expired row; middleware has already authenticated
// the request by the time a handler calls this.
func (s *Store) Describe(ctx context.Context, token string) (*Summary, error) {
	sess, err := s.db.GetSession(ctx, token)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("sessionstore: get session: %w", err)
	}
	return &Summary{TokenShort: shorten(sess.Token), ExpirationMS: sess.ExpirationMS}, nil
}

// Revoke deletes a single session (spec.md §6 POST /auth/revoke, and
// logout). Revoking a token that is already gone is not an error: the end
// state the caller wants is already true.
func (s *Store) Revoke(ctx context.Context, token string) error {
	err := s.db.DeleteSession(ctx, token)
	if err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("sessionstore: revoke: %w", err)
	}
	return nil
}

// RevokeAllExcept deletes every other session belonging to username,
// keeping keepToken alive (spec.md §6 POST /auth/revoke_all, "log out
// everywhere else"). Returns the number of sessions revoked.
func (s *Store) RevokeAllExcept(ctx context.Context, username, keepToken string) (int64, error) {
	n, err := s.db.DeleteSessionsExcept(ctx, username, keepToken)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: revoke all except: %w", err)
	}
	return n, nil
}

// Summary is the listing shape for GET /sessions: the full token is never
// returned once a session exists, only its short prefix.
type Summary struct {
	TokenShort   string
	ExpirationMS int64
}

// ListFor returns every live session belonging to username. Expired rows
// still present in the store (not yet swept) are filtered out rather than
// deleted here, keeping ListFor a read-only operation.
func (s *Store) ListFor(ctx context.Context, username string) ([]Summary, error) {
	sessions, err := s.db.ListSessions(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list sessions: %w", err)
	}

	now := time.Now()
	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		if now.After(sess.ExpiresAt()) {
			continue
		}
		out = append(out, Summary{TokenShort: shorten(sess.Token), ExpirationMS: sess.ExpirationMS})
	}
	return out, nil
}

func shorten(token string) string {
	if len(token) <= TokenShortLen {
		return token
	}
	return token[:TokenShortLen]
}

// Run sweeps expired sessions on a fixed interval until ctx is canceled or
// Stop is called. The cleanup-loop shape is the same lifecycle pattern a
// long-lived in-process manager uses for background maintenance; here the
// state being swept lives in the store rather than in memory.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			_, _ = s.db.DeleteExpiredSessions(ctx, time.Now())
			s.lastSwept.Store(time.Now().UnixNano())
		}
	}
}

// Stop signals Run to exit. Safe to call at most once.
func (s *Store) Stop() {
	close(s.stop)
}
