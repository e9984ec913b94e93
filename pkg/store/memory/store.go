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

// Package memory is an in-process implementation of pkg/store.Store, used
// by tests. It is not durable across restarts.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tsfs-project/tsfs/pkg/store"
)

// Store implements store.Store over plain maps guarded by a single mutex.
// Transactions are emulated by operating directly on the shared maps under
// that mutex's lock for the lifetime of the Tx, so Commit and Rollback are
// both effectively no-ops; callers still get the same API shape as the
// postgres backend.
type Store struct {
	mu sync.Mutex

	users    map[string]*store.User
	keyrings map[string]bool
	edges    map[string]map[string]store.Key // keyringID -> target -> edge
	files    map[string]*store.File
	sessions map[string]*store.Session
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*store.User),
		keyrings: make(map[string]bool),
		edges:    make(map[string]map[string]store.Key),
		files:    make(map[string]*store.File),
		sessions: make(map[string]*store.Session),
	}
}

func (s *Store) Close() {}

// Ping always succeeds; the in-memory backend has no connection to lose.
func (s *Store) Ping(ctx context.Context) error { return nil }

// tx implements store.Tx by holding s.mu for its entire lifetime, giving it
// the same serializability guarantee a postgres REPEATABLE READ transaction
// provides for TSFS's access-graph mutations.
type tx struct {
	s      *Store
	done   bool
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &tx{s: s}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("memory: transaction already closed")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Begin(ctx context.Context) (store.Tx, error) {
	return nil, fmt.Errorf("memory: nested transactions unsupported")
}

func (t *tx) Close() {}

// Ping always succeeds, as on Store.
func (t *tx) Ping(ctx context.Context) error { return nil }

func (t *tx) GetUser(ctx context.Context, username string) (*store.User, error) {
	return t.s.getUser(username)
}
func (t *tx) UserExists(ctx context.Context, username string) (bool, error) {
	return t.s.userExists(username)
}
func (t *tx) CreateUser(ctx context.Context, u *store.User) error { return t.s.createUser(u) }
func (t *tx) UpdatePassword(ctx context.Context, username string, pw, priv []byte) error {
	return t.s.updatePassword(username, pw, priv)
}
func (t *tx) CreateKeyring(ctx context.Context, id string) error { return t.s.createKeyring(id) }
func (t *tx) ListEdges(ctx context.Context, keyringID string) ([]store.Key, error) {
	return t.s.listEdges(keyringID)
}
func (t *tx) InsertEdge(ctx context.Context, k store.Key) error { return t.s.insertEdge(k) }
func (t *tx) DeleteEdgesTo(ctx context.Context, fileID string) (int64, error) {
	return t.s.deleteEdgesTo(fileID)
}
func (t *tx) GetFile(ctx context.Context, id string) (*store.File, error)  { return t.s.getFile(id) }
func (t *tx) LockFile(ctx context.Context, id string) (*store.File, error) { return t.s.getFile(id) }
func (t *tx) CreateFile(ctx context.Context, f *store.File) error          { return t.s.createFile(f) }
func (t *tx) UpdateFileContent(ctx context.Context, id string, data []byte, size int64, mtime time.Time) error {
	return t.s.updateFileContent(id, data, size, mtime)
}
func (t *tx) UpdateFileRekey(ctx context.Context, id string, name, data []byte, size int64, mtime time.Time) error {
	return t.s.updateFileRekey(id, name, data, size, mtime)
}
func (t *tx) DeleteFile(ctx context.Context, id string) error { return t.s.deleteFile(id) }

func (t *tx) CreateSession(ctx context.Context, sess *store.Session) error {
	return t.s.createSession(sess)
}
func (t *tx) GetSession(ctx context.Context, token string) (*store.Session, error) {
	return t.s.getSession(token)
}
func (t *tx) DeleteSession(ctx context.Context, token string) error { return t.s.deleteSession(token) }
func (t *tx) DeleteSessionsExcept(ctx context.Context, username, keepToken string) (int64, error) {
	return t.s.deleteSessionsExcept(username, keepToken)
}
func (t *tx) ListSessions(ctx context.Context, username string) ([]store.Session, error) {
	return t.s.listSessions(username)
}
func (t *tx) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return t.s.deleteExpiredSessions(now)
}

// Store method set locks for the duration of a single operation; callers
// that need several operations to be atomic must use Begin instead.

func (s *Store) GetUser(ctx context.Context, username string) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUser(username)
}
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userExists(username)
}
func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUser(u)
}
func (s *Store) UpdatePassword(ctx context.Context, username string, pw, priv []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePassword(username, pw, priv)
}
func (s *Store) CreateKeyring(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createKeyring(id)
}
func (s *Store) ListEdges(ctx context.Context, keyringID string) ([]store.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listEdges(keyringID)
}
func (s *Store) InsertEdge(ctx context.Context, k store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertEdge(k)
}
func (s *Store) DeleteEdgesTo(ctx context.Context, fileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteEdgesTo(fileID)
}
func (s *Store) GetFile(ctx context.Context, id string) (*store.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFile(id)
}
func (s *Store) LockFile(ctx context.Context, id string) (*store.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFile(id)
}
func (s *Store) CreateFile(ctx context.Context, f *store.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFile(f)
}
func (s *Store) UpdateFileContent(ctx context.Context, id string, data []byte, size int64, mtime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateFileContent(id, data, size, mtime)
}
func (s *Store) UpdateFileRekey(ctx context.Context, id string, name, data []byte, size int64, mtime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateFileRekey(id, name, data, size, mtime)
}
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteFile(id)
}
func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSession(sess)
}
func (s *Store) GetSession(ctx context.Context, token string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSession(token)
}
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSession(token)
}
func (s *Store) DeleteSessionsExcept(ctx context.Context, username, keepToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSessionsExcept(username, keepToken)
}
func (s *Store) ListSessions(ctx context.Context, username string) ([]store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSessions(username)
}
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteExpiredSessions(now)
}

// Unlocked helpers, called with s.mu already held by either the Store or a
// tx wrapper above.

func (s *Store) getUser(username string) (*store.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, store.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) userExists(username string) (bool, error) {
	_, ok := s.users[username]
	return ok, nil
}

func (s *Store) createUser(u *store.User) error {
	if _, ok := s.users[u.Username]; ok {
		return fmt.Errorf("memory: user %q already exists", u.Username)
	}
	cp := *u
	s.users[u.Username] = &cp
	return nil
}

func (s *Store) updatePassword(username string, pw, priv []byte) error {
	u, ok := s.users[username]
	if !ok {
		return store.NotFound("user")
	}
	u.PasswordEnvelope = pw
	u.EncryptedPrivateKey = priv
	return nil
}

func (s *Store) createKeyring(id string) error {
	s.keyrings[id] = true
	s.edges[id] = make(map[string]store.Key)
	return nil
}

func (s *Store) listEdges(keyringID string) ([]store.Key, error) {
	edges := s.edges[keyringID]
	out := make([]store.Key, 0, len(edges))
	for _, e := range edges {
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) insertEdge(k store.Key) error {
	if _, ok := s.edges[k.KeyringID]; !ok {
		s.edges[k.KeyringID] = make(map[string]store.Key)
	}
	s.edges[k.KeyringID][k.Target] = k
	return nil
}

func (s *Store) deleteEdgesTo(fileID string) (int64, error) {
	var n int64
	for _, byTarget := range s.edges {
		if _, ok := byTarget[fileID]; ok {
			delete(byTarget, fileID)
			n++
		}
	}
	return n, nil
}

func (s *Store) getFile(id string) (*store.File, error) {
	f, ok := s.files[id]
	if !ok {
		return nil, store.NotFound("file")
	}
	cp := *f
	return &cp, nil
}

func (s *Store) createFile(f *store.File) error {
	cp := *f
	s.files[f.ID] = &cp
	return nil
}

func (s *Store) updateFileContent(id string, data []byte, size int64, mtime time.Time) error {
	f, ok := s.files[id]
	if !ok {
		return store.NotFound("file")
	}
	f.CiphertextData = data
	f.Size = &size
	f.Mtime = mtime
	return nil
}

func (s *Store) updateFileRekey(id string, name, data []byte, size int64, mtime time.Time) error {
	f, ok := s.files[id]
	if !ok {
		return store.NotFound("file")
	}
	f.EncryptedName = name
	f.CiphertextData = data
	f.Size = &size
	f.Mtime = mtime
	return nil
}

func (s *Store) deleteFile(id string) error {
	if _, ok := s.files[id]; !ok {
		return store.NotFound("file")
	}
	delete(s.files, id)
	return nil
}

func (s *Store) createSession(sess *store.Session) error {
	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

func (s *Store) getSession(token string) (*store.Session, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return nil, store.NotFound("session")
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) deleteSession(token string) error {
	if _, ok := s.sessions[token]; !ok {
		return store.NotFound("session")
	}
	delete(s.sessions, token)
	return nil
}

func (s *Store) deleteSessionsExcept(username, keepToken string) (int64, error) {
	var n int64
	for token, sess := range s.sessions {
		if sess.Username == username && token != keepToken {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

func (s *Store) listSessions(username string) ([]store.Session, error) {
	var out []store.Session
	for _, sess := range s.sessions {
		if sess.Username == username {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *Store) deleteExpiredSessions(now time.Time) (int64, error) {
	cutoff := now.UnixMilli()
	var n int64
	for token, sess := range s.sessions {
		if sess.ExpirationMS <= cutoff {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}

var _ store.Store = (*Store)(nil)
