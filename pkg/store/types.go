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

// Package store defines the relational persistence contract for TSFS
// (spec.md §6 "Persistence layout"): users, keyrings, files, keys (edges)
// and sessions, plus the transactional boundary the access-graph mutations
// in internal/fileops run inside.
package store

import (
	"context"
	"time"
)

// User mirrors the users table (spec.md §3 "User").
type User struct {
	Username            string
	PasswordEnvelope    []byte
	PublicKey           []byte
	EncryptedPrivateKey []byte
	RootKeyringID       string
}

// Keyring mirrors the keyrings table. It has no columns of its own; its
// identity is its set of Keys (edges).
type Keyring struct {
	ID string
}

// File mirrors the files table. Exactly one of (CiphertextData,
// FolderKeyringID) is set, per spec.md I3/§3 invariant.
type File struct {
	ID              string
	EncryptedName   []byte
	Mtime           time.Time
	Size            *int64
	CiphertextData  []byte
	FolderKeyringID *string
}

// IsFolder reports whether this File is a folder node.
func (f *File) IsFolder() bool {
	return f.FolderKeyringID != nil
}

// Key is an edge: "the symmetric key for Target is available here,
// wrapped under this keyring's wrapping key" (spec.md §3 "Edge (Key)").
type Key struct {
	KeyringID  string
	Target     string
	WrappedKey []byte
}

// Session mirrors the sessions table (spec.md §3 "Session").
type Session struct {
	Token          string
	Username       string
	ExpirationMS   int64
}

// ExpiresAt returns the session's expiration as a time.Time.
func (s *Session) ExpiresAt() time.Time {
	return time.UnixMilli(s.ExpirationMS)
}

// Tx is an open transaction. Every access-graph mutation in spec.md §4.F
// runs entirely inside one Tx so no partial state is ever observable.
type Tx interface {
	Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the full persistence surface. Implementations: pkg/store/postgres
// (production, pgx-backed) and pkg/store/memory (tests).
type Store interface {
	// Begin opens a transaction at (at least) repeatable-read isolation,
	// per spec.md §5's cross-user visibility requirement.
	Begin(ctx context.Context) (Tx, error)

	GetUser(ctx context.Context, username string) (*User, error)
	UserExists(ctx context.Context, username string) (bool, error)
	CreateUser(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, username string, passwordEnvelope, encryptedPrivateKey []byte) error

	CreateKeyring(ctx context.Context, id string) error
	ListEdges(ctx context.Context, keyringID string) ([]Key, error)
	InsertEdge(ctx context.Context, k Key) error
	DeleteEdgesTo(ctx context.Context, fileID string) (int64, error)

	GetFile(ctx context.Context, id string) (*File, error)
	LockFile(ctx context.Context, id string) (*File, error)
	CreateFile(ctx context.Context, f *File) error
	UpdateFileContent(ctx context.Context, id string, data []byte, size int64, mtime time.Time) error
	UpdateFileRekey(ctx context.Context, id string, name, data []byte, size int64, mtime time.Time) error
	DeleteFile(ctx context.Context, id string) error

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsExcept(ctx context.Context, username, keepToken string) (int64, error)
	ListSessions(ctx context.Context, username string) ([]Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies the backend is reachable, used by the health checker.
	Ping(ctx context.Context) error

	Close()
}

// notFoundError is returned by lookups that find nothing.
type notFoundError string

func (e notFoundError) Error() string { return string(e) }

// NotFound constructs a not-found sentinel for a named entity, e.g.
// store.NotFound("user").
func NotFound(what string) error { return notFoundError(what + " not found") }

// IsNotFound reports whether err was produced by NotFound.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
