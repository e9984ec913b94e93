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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tsfs-project/tsfs/pkg/store"
)

// Every store.Store method on *Store and *Tx delegates to one of these
// free functions so the query text is written exactly once.

func getUser(ctx context.Context, db dbtx, username string) (*store.User, error) {
	const q = `
		SELECT username, password_envelope, public_key, encrypted_private_key, root_keyring_id
		FROM users WHERE username = $1
	`
	var u store.User
	err := db.QueryRow(ctx, q, username).Scan(
		&u.Username, &u.PasswordEnvelope, &u.PublicKey, &u.EncryptedPrivateKey, &u.RootKeyringID,
	)
	if err == pgx.ErrNoRows {
		return nil, store.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return &u, nil
}

func userExists(ctx context.Context, db dbtx, username string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := db.QueryRow(ctx, q, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: user exists: %w", err)
	}
	return exists, nil
}

func createUser(ctx context.Context, db dbtx, u *store.User) error {
	const q = `
		INSERT INTO users (username, password_envelope, public_key, encrypted_private_key, root_keyring_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.Exec(ctx, q, u.Username, u.PasswordEnvelope, u.PublicKey, u.EncryptedPrivateKey, u.RootKeyringID)
	if err != nil {
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func updatePassword(ctx context.Context, db dbtx, username string, passwordEnvelope, encryptedPrivateKey []byte) error {
	const q = `
		UPDATE users SET password_envelope = $1, encrypted_private_key = $2 WHERE username = $3
	`
	tag, err := db.Exec(ctx, q, passwordEnvelope, encryptedPrivateKey, username)
	if err != nil {
		return fmt.Errorf("postgres: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("user")
	}
	return nil
}

func createKeyring(ctx context.Context, db dbtx, id string) error {
	const q = `INSERT INTO keyrings (id) VALUES ($1)`
	if _, err := db.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("postgres: create keyring: %w", err)
	}
	return nil
}

func listEdges(ctx context.Context, db dbtx, keyringID string) ([]store.Key, error) {
	const q = `SELECT keyring_id, target, wrapped_key FROM keys WHERE keyring_id = $1`
	rows, err := db.Query(ctx, q, keyringID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list edges: %w", err)
	}
	defer rows.Close()

	var edges []store.Key
	for rows.Next() {
		var k store.Key
		if err := rows.Scan(&k.KeyringID, &k.Target, &k.WrappedKey); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		edges = append(edges, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate edges: %w", err)
	}
	return edges, nil
}

func insertEdge(ctx context.Context, db dbtx, k store.Key) error {
	const q = `
		INSERT INTO keys (keyring_id, target, wrapped_key) VALUES ($1, $2, $3)
		ON CONFLICT (keyring_id, target) DO UPDATE SET wrapped_key = EXCLUDED.wrapped_key
	`
	_, err := db.Exec(ctx, q, k.KeyringID, k.Target, k.WrappedKey)
	if err != nil {
		return fmt.Errorf("postgres: insert edge: %w", err)
	}
	return nil
}

func deleteEdgesTo(ctx context.Context, db dbtx, fileID string) (int64, error) {
	const q = `DELETE FROM keys WHERE target = $1`
	tag, err := db.Exec(ctx, q, fileID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete edges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanFile(row pgx.Row) (*store.File, error) {
	var f store.File
	err := row.Scan(&f.ID, &f.EncryptedName, &f.Mtime, &f.Size, &f.CiphertextData, &f.FolderKeyringID)
	if err == pgx.ErrNoRows {
		return nil, store.NotFound("file")
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan file: %w", err)
	}
	return &f, nil
}

func getFile(ctx context.Context, db dbtx, id string) (*store.File, error) {
	const q = `
		SELECT id, encrypted_name, mtime, size, ciphertext_data, folder_keyring_id
		FROM files WHERE id = $1
	`
	return scanFile(db.QueryRow(ctx, q, id))
}

// lockFile takes a row-level lock used to serialize concurrent share/unshare
// and upload-overwrite mutations on the same file (spec.md §4.F race note).
func lockFile(ctx context.Context, db dbtx, id string) (*store.File, error) {
	const q = `
		SELECT id, encrypted_name, mtime, size, ciphertext_data, folder_keyring_id
		FROM files WHERE id = $1 FOR UPDATE
	`
	return scanFile(db.QueryRow(ctx, q, id))
}

func createFile(ctx context.Context, db dbtx, f *store.File) error {
	const q = `
		INSERT INTO files (id, encrypted_name, mtime, size, ciphertext_data, folder_keyring_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.Exec(ctx, q, f.ID, f.EncryptedName, f.Mtime, f.Size, f.CiphertextData, f.FolderKeyringID)
	if err != nil {
		return fmt.Errorf("postgres: create file: %w", err)
	}
	return nil
}

func updateFileContent(ctx context.Context, db dbtx, id string, data []byte, size int64, mtime time.Time) error {
	const q = `UPDATE files SET ciphertext_data = $1, size = $2, mtime = $3 WHERE id = $4`
	tag, err := db.Exec(ctx, q, data, size, mtime, id)
	if err != nil {
		return fmt.Errorf("postgres: update file content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("file")
	}
	return nil
}

func updateFileRekey(ctx context.Context, db dbtx, id string, name, data []byte, size int64, mtime time.Time) error {
	const q = `UPDATE files SET encrypted_name = $1, ciphertext_data = $2, size = $3, mtime = $4 WHERE id = $5`
	tag, err := db.Exec(ctx, q, name, data, size, mtime, id)
	if err != nil {
		return fmt.Errorf("postgres: update file rekey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("file")
	}
	return nil
}

func deleteFile(ctx context.Context, db dbtx, id string) error {
	const q = `DELETE FROM files WHERE id = $1`
	tag, err := db.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("postgres: delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("file")
	}
	return nil
}

func createSession(ctx context.Context, db dbtx, s *store.Session) error {
	const q = `INSERT INTO sessions (token, username, expiration_ms) VALUES ($1, $2, $3)`
	_, err := db.Exec(ctx, q, s.Token, s.Username, s.ExpirationMS)
	if err != nil {
		return fmt.Errorf("postgres: create session: %w", err)
	}
	return nil
}

func getSession(ctx context.Context, db dbtx, token string) (*store.Session, error) {
	const q = `SELECT token, username, expiration_ms FROM sessions WHERE token = $1`
	var s store.Session
	err := db.QueryRow(ctx, q, token).Scan(&s.Token, &s.Username, &s.ExpirationMS)
	if err == pgx.ErrNoRows {
		return nil, store.NotFound("session")
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	return &s, nil
}

func deleteSession(ctx context.Context, db dbtx, token string) error {
	const q = `DELETE FROM sessions WHERE token = $1`
	tag, err := db.Exec(ctx, q, token)
	if err != nil {
		return fmt.Errorf("postgres: delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound("session")
	}
	return nil
}

func deleteSessionsExcept(ctx context.Context, db dbtx, username, keepToken string) (int64, error) {
	const q = `DELETE FROM sessions WHERE username = $1 AND token != $2`
	tag, err := db.Exec(ctx, q, username, keepToken)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete sessions except: %w", err)
	}
	return tag.RowsAffected(), nil
}

func listSessions(ctx context.Context, db dbtx, username string) ([]store.Session, error) {
	const q = `SELECT token, username, expiration_ms FROM sessions WHERE username = $1 ORDER BY expiration_ms DESC`
	rows, err := db.Query(ctx, q, username)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []store.Session
	for rows.Next() {
		var s store.Session
		if err := rows.Scan(&s.Token, &s.Username, &s.ExpirationMS); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate sessions: %w", err)
	}
	return sessions, nil
}

func deleteExpiredSessions(ctx context.Context, db dbtx, now time.Time) (int64, error) {
	const q = `DELETE FROM sessions WHERE expiration_ms <= $1`
	tag, err := db.Exec(ctx, q, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Store method set.

func (s *Store) GetUser(ctx context.Context, username string) (*store.User, error) { return getUser(ctx, s.db, username) }
func (s *Store) UserExists(ctx context.Context, username string) (bool, error)      { return userExists(ctx, s.db, username) }
func (s *Store) CreateUser(ctx context.Context, u *store.User) error                { return createUser(ctx, s.db, u) }
func (s *Store) UpdatePassword(ctx context.Context, username string, pw, priv []byte) error {
	return updatePassword(ctx, s.db, username, pw, priv)
}
func (s *Store) CreateKeyring(ctx context.Context, id string) error { return createKeyring(ctx, s.db, id) }
func (s *Store) ListEdges(ctx context.Context, keyringID string) ([]store.Key, error) {
	return listEdges(ctx, s.db, keyringID)
}
func (s *Store) InsertEdge(ctx context.Context, k store.Key) error { return insertEdge(ctx, s.db, k) }
func (s *Store) DeleteEdgesTo(ctx context.Context, fileID string) (int64, error) {
	return deleteEdgesTo(ctx, s.db, fileID)
}
func (s *Store) GetFile(ctx context.Context, id string) (*store.File, error)  { return getFile(ctx, s.db, id) }
func (s *Store) LockFile(ctx context.Context, id string) (*store.File, error) { return lockFile(ctx, s.db, id) }
func (s *Store) CreateFile(ctx context.Context, f *store.File) error          { return createFile(ctx, s.db, f) }
func (s *Store) UpdateFileContent(ctx context.Context, id string, data []byte, size int64, mtime time.Time) error {
	return updateFileContent(ctx, s.db, id, data, size, mtime)
}
func (s *Store) UpdateFileRekey(ctx context.Context, id string, name, data []byte, size int64, mtime time.Time) error {
	return updateFileRekey(ctx, s.db, id, name, data, size, mtime)
}
func (s *Store) DeleteFile(ctx context.Context, id string) error { return deleteFile(ctx, s.db, id) }

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error { return createSession(ctx, s.db, sess) }
func (s *Store) GetSession(ctx context.Context, token string) (*store.Session, error) {
	return getSession(ctx, s.db, token)
}
func (s *Store) DeleteSession(ctx context.Context, token string) error { return deleteSession(ctx, s.db, token) }
func (s *Store) DeleteSessionsExcept(ctx context.Context, username, keepToken string) (int64, error) {
	return deleteSessionsExcept(ctx, s.db, username, keepToken)
}
func (s *Store) ListSessions(ctx context.Context, username string) ([]store.Session, error) {
	return listSessions(ctx, s.db, username)
}
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpiredSessions(ctx, s.db, now)
}

// Tx method set — identical bodies, different receiver, per the dbtx
// abstraction declared in store.go.

func (t *Tx) GetUser(ctx context.Context, username string) (*store.User, error) { return getUser(ctx, t.tx, username) }
func (t *Tx) UserExists(ctx context.Context, username string) (bool, error)      { return userExists(ctx, t.tx, username) }
func (t *Tx) CreateUser(ctx context.Context, u *store.User) error                { return createUser(ctx, t.tx, u) }
func (t *Tx) UpdatePassword(ctx context.Context, username string, pw, priv []byte) error {
	return updatePassword(ctx, t.tx, username, pw, priv)
}
func (t *Tx) CreateKeyring(ctx context.Context, id string) error { return createKeyring(ctx, t.tx, id) }
func (t *Tx) ListEdges(ctx context.Context, keyringID string) ([]store.Key, error) {
	return listEdges(ctx, t.tx, keyringID)
}
func (t *Tx) InsertEdge(ctx context.Context, k store.Key) error { return insertEdge(ctx, t.tx, k) }
func (t *Tx) DeleteEdgesTo(ctx context.Context, fileID string) (int64, error) {
	return deleteEdgesTo(ctx, t.tx, fileID)
}
func (t *Tx) GetFile(ctx context.Context, id string) (*store.File, error)  { return getFile(ctx, t.tx, id) }
func (t *Tx) LockFile(ctx context.Context, id string) (*store.File, error) { return lockFile(ctx, t.tx, id) }
func (t *Tx) CreateFile(ctx context.Context, f *store.File) error          { return createFile(ctx, t.tx, f) }
func (t *Tx) UpdateFileContent(ctx context.Context, id string, data []byte, size int64, mtime time.Time) error {
	return updateFileContent(ctx, t.tx, id, data, size, mtime)
}
func (t *Tx) UpdateFileRekey(ctx context.Context, id string, name, data []byte, size int64, mtime time.Time) error {
	return updateFileRekey(ctx, t.tx, id, name, data, size, mtime)
}
func (t *Tx) DeleteFile(ctx context.Context, id string) error { return deleteFile(ctx, t.tx, id) }

func (t *Tx) CreateSession(ctx context.Context, sess *store.Session) error { return createSession(ctx, t.tx, sess) }
func (t *Tx) GetSession(ctx context.Context, token string) (*store.Session, error) {
	return getSession(ctx, t.tx, token)
}
func (t *Tx) DeleteSession(ctx context.Context, token string) error { return deleteSession(ctx, t.tx, token) }
func (t *Tx) DeleteSessionsExcept(ctx context.Context, username, keepToken string) (int64, error) {
	return deleteSessionsExcept(ctx, t.tx, username, keepToken)
}
func (t *Tx) ListSessions(ctx context.Context, username string) ([]store.Session, error) {
	return listSessions(ctx, t.tx, username)
}
func (t *Tx) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpiredSessions(ctx, t.tx, now)
}
