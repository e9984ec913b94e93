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

// Package fileops implements the access-graph mutations of spec.md §4.F:
// upload, create-folder, delete, share, unshare, get-tree and get-pubkey.
// Every mutation runs inside a single store.Tx so no partial state is ever
// observable, per spec.md §4.F's "common shape".
package fileops

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tsfs-project/tsfs/internal/authz"
	"github.com/tsfs-project/tsfs/internal/keyring"
	"github.com/tsfs-project/tsfs/pkg/store"
)

// ErrForbidden is returned when the caller's keyring graph does not reach
// the file or folder an operation targets.
var ErrForbidden = errors.New("fileops: forbidden")

// ErrNotFound is returned for a reference to an id that does not exist.
var ErrNotFound = errors.New("fileops: not found")

// ErrFolderNotEmpty is returned by Delete on a folder that still has edges
// pointing into its keyring (spec.md §6 Open Question: deletion of a
// nonempty folder is refused rather than silently orphaning its contents).
var ErrFolderNotEmpty = errors.New("fileops: folder is not empty")

// ErrUnshareFolder is returned by Unshare when file_uid names a folder.
// Folder unshare is explicitly unsupported (spec.md §4.F).
var ErrUnshareFolder = errors.New("fileops: folder unshare not supported")

// Service bundles a store with the operations that mutate its access
// graph. It holds no state of its own.
type Service struct {
	db store.Store
}

// New returns a Service backed by db.
func New(db store.Store) *Service {
	return &Service{db: db}
}

func newFileID() string {
	return uuid.New().String()
}

// resolveParentKeyring returns the keyring a mutation should attach to:
// the user's own root if parentUID is empty, else the folder parentUID's
// keyring after verifying has_access.
func resolveParentKeyring(ctx context.Context, db store.Store, rootKeyringID, parentUID string) (string, error) {
	if parentUID == "" {
		return rootKeyringID, nil
	}

	ok, err := authz.HasAccess(ctx, db, rootKeyringID, parentUID)
	if err != nil {
		return "", fmt.Errorf("fileops: check parent access: %w", err)
	}
	if !ok {
		return "", ErrForbidden
	}

	parent, err := db.GetFile(ctx, parentUID)
	if err != nil {
		if store.IsNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("fileops: get parent: %w", err)
	}
	if !parent.IsFolder() {
		return "", fmt.Errorf("fileops: parent %s is not a folder", parentUID)
	}
	return *parent.FolderKeyringID, nil
}

// UploadInput carries the caller-supplied fields for Upload.
type UploadInput struct {
	RootKeyringID  string
	ParentUID      string // empty = root
	EncryptedName  []byte
	CiphertextData []byte
	WrappedKey     []byte
	// OverwriteFileID, when non-empty, names an existing file the caller
	// wants replaced in place instead of inserting a new one (spec.md §9
	// "Upload same-name collision"). The caller must already hold an edge
	// to this id inside the resolved parent keyring; no edge is touched,
	// only the file's name/content/size/mtime.
	OverwriteFileID string
}

// Upload implements spec.md §4.F "Upload (file)": insert a fresh File and
// Edge, or, when OverwriteFileID is set, replace an existing file's
// name/content in place without touching any edge.
func (s *Service) Upload(ctx context.Context, in UploadInput) (fileID string, created bool, err error) {
	parentKeyring, err := resolveParentKeyring(ctx, s.db, in.RootKeyringID, in.ParentUID)
	if err != nil {
		return "", false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("fileops: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	size := int64(len(in.CiphertextData))

	if in.OverwriteFileID != "" {
		existing, err := edgeTargetInKeyring(ctx, tx, parentKeyring, in.OverwriteFileID)
		if err != nil {
			return "", false, err
		}
		if err := tx.UpdateFileRekey(ctx, existing.ID, in.EncryptedName, in.CiphertextData, size, now); err != nil {
			return "", false, fmt.Errorf("fileops: update file content: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", false, fmt.Errorf("fileops: commit: %w", err)
		}
		return existing.ID, false, nil
	}

	id := newFileID()
	f := &store.File{
		ID:             id,
		EncryptedName:  in.EncryptedName,
		Mtime:          now,
		Size:           &size,
		CiphertextData: in.CiphertextData,
	}
	if err := tx.CreateFile(ctx, f); err != nil {
		return "", false, fmt.Errorf("fileops: create file: %w", err)
	}
	if err := tx.InsertEdge(ctx, store.Key{KeyringID: parentKeyring, Target: id, WrappedKey: in.WrappedKey}); err != nil {
		return "", false, fmt.Errorf("fileops: insert edge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("fileops: commit: %w", err)
	}
	return id, true, nil
}

// edgeTargetInKeyring verifies that parentKeyring holds an edge to fileID
// and returns its File, so an overwrite can only ever target a file the
// caller already reaches from the parent it is uploading into.
func edgeTargetInKeyring(ctx context.Context, db store.Store, parentKeyring, fileID string) (*store.File, error) {
	edges, err := db.ListEdges(ctx, parentKeyring)
	if err != nil {
		return nil, fmt.Errorf("fileops: list edges: %w", err)
	}
	found := false
	for _, e := range edges {
		if e.Target == fileID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}

	f, err := db.GetFile(ctx, fileID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fileops: get file %s: %w", fileID, err)
	}
	if f.IsFolder() {
		return nil, fmt.Errorf("fileops: %s is a folder, not a file", fileID)
	}
	return f, nil
}

// CreateFolderInput carries the caller-supplied fields for CreateFolder.
type CreateFolderInput struct {
	RootKeyringID string
	ParentUID     string
	EncryptedName []byte
	WrappedKey    []byte
}

// CreateFolder implements spec.md §4.F "Create folder": a fresh Keyring, a
// File pointing at it, and an edge in the parent, in one transaction.
func (s *Service) CreateFolder(ctx context.Context, in CreateFolderInput) (folderID string, err error) {
	parentKeyring, err := resolveParentKeyring(ctx, s.db, in.RootKeyringID, in.ParentUID)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("fileops: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	newKeyring := uuid.New().String()
	if err := tx.CreateKeyring(ctx, newKeyring); err != nil {
		return "", fmt.Errorf("fileops: create keyring: %w", err)
	}

	id := newFileID()
	f := &store.File{
		ID:              id,
		EncryptedName:   in.EncryptedName,
		Mtime:           time.Now(),
		FolderKeyringID: &newKeyring,
	}
	if err := tx.CreateFile(ctx, f); err != nil {
		return "", fmt.Errorf("fileops: create folder file: %w", err)
	}
	if err := tx.InsertEdge(ctx, store.Key{KeyringID: parentKeyring, Target: id, WrappedKey: in.WrappedKey}); err != nil {
		return "", fmt.Errorf("fileops: insert edge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("fileops: commit: %w", err)
	}
	return id, nil
}

// Delete implements spec.md §4.F "Delete". It refuses to delete a folder
// that still has edges in its own keyring (an explicit Open Question
// decision: no cascade, and no silent orphaning either — see DESIGN.md).
func (s *Service) Delete(ctx context.Context, rootKeyringID, fileUID string) error {
	ok, err := authz.HasAccess(ctx, s.db, rootKeyringID, fileUID)
	if err != nil {
		return fmt.Errorf("fileops: check access: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("fileops: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	f, err := tx.GetFile(ctx, fileUID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("fileops: get file: %w", err)
	}

	if f.IsFolder() {
		edges, err := tx.ListEdges(ctx, *f.FolderKeyringID)
		if err != nil {
			return fmt.Errorf("fileops: list folder edges: %w", err)
		}
		if len(edges) > 0 {
			return ErrFolderNotEmpty
		}
	}

	if _, err := tx.DeleteEdgesTo(ctx, fileUID); err != nil {
		return fmt.Errorf("fileops: delete edges: %w", err)
	}
	if err := tx.DeleteFile(ctx, fileUID); err != nil {
		return fmt.Errorf("fileops: delete file: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("fileops: commit: %w", err)
	}
	return nil
}

// Share implements spec.md §4.F "Share": insert one edge into the target
// user's root keyring.
func (s *Service) Share(ctx context.Context, callerRootKeyringID, fileUID, targetRootKeyringID string, wrappedKey []byte) error {
	ok, err := authz.HasAccess(ctx, s.db, callerRootKeyringID, fileUID)
	if err != nil {
		return fmt.Errorf("fileops: check access: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("fileops: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.InsertEdge(ctx, store.Key{KeyringID: targetRootKeyringID, Target: fileUID, WrappedKey: wrappedKey}); err != nil {
		return fmt.Errorf("fileops: insert edge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("fileops: commit: %w", err)
	}
	return nil
}

// UnshareInput carries the caller-supplied fields for Unshare.
type UnshareInput struct {
	RootKeyringID  string
	FileUID        string
	ParentUID      string // empty = root
	WrappedKey     []byte
	EncryptedName  []byte
	CiphertextData []byte
}

// Unshare implements spec.md §4.F "Unshare": delete every edge pointing at
// the file, insert one new edge into the caller's chosen parent, and
// rekey the file's name/content. It uses LockFile (SELECT ... FOR UPDATE
// on postgres) to serialize against a concurrent Share or another Unshare
// racing on the same file (spec.md §5 concurrency note).
func (s *Service) Unshare(ctx context.Context, in UnshareInput) error {
	ok, err := authz.HasAccess(ctx, s.db, in.RootKeyringID, in.FileUID)
	if err != nil {
		return fmt.Errorf("fileops: check file access: %w", err)
	}
	if !ok {
		return ErrForbidden
	}

	parentKeyring, err := resolveParentKeyring(ctx, s.db, in.RootKeyringID, in.ParentUID)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("fileops: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	f, err := tx.LockFile(ctx, in.FileUID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("fileops: lock file: %w", err)
	}
	if f.IsFolder() {
		return ErrUnshareFolder
	}

	if _, err := tx.DeleteEdgesTo(ctx, in.FileUID); err != nil {
		return fmt.Errorf("fileops: delete edges: %w", err)
	}
	if err := tx.InsertEdge(ctx, store.Key{KeyringID: parentKeyring, Target: in.FileUID, WrappedKey: in.WrappedKey}); err != nil {
		return fmt.Errorf("fileops: insert edge: %w", err)
	}
	if err := tx.UpdateFileRekey(ctx, in.FileUID, in.EncryptedName, in.CiphertextData, int64(len(in.CiphertextData)), time.Now()); err != nil {
		return fmt.Errorf("fileops: rekey file: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("fileops: commit: %w", err)
	}
	return nil
}

// GetTree returns the full ciphertext KeyringTree rooted at rootKeyringID
// (spec.md §4.F "Get tree").
func (s *Service) GetTree(ctx context.Context, rootKeyringID string) (*keyring.Tree, error) {
	return keyring.Build(ctx, s.db, rootKeyringID)
}

// Download returns a file's ciphertext after checking access.
func (s *Service) Download(ctx context.Context, rootKeyringID, fileUID string) (*store.File, error) {
	ok, err := authz.HasAccess(ctx, s.db, rootKeyringID, fileUID)
	if err != nil {
		return nil, fmt.Errorf("fileops: check access: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}

	f, err := s.db.GetFile(ctx, fileUID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fileops: get file: %w", err)
	}
	if f.IsFolder() {
		return nil, fmt.Errorf("fileops: %s is a folder", fileUID)
	}
	return f, nil
}

// GetPublicKey returns a user's public key. Missing users get a
// deterministic dummy key derived from the username rather than a sharp
// NotFound, mitigating the enumeration oracle spec.md §4.F and §9 call out
// as a known leak when a real NotFound is returned.
func GetPublicKey(ctx context.Context, db store.Store, username string) ([]byte, error) {
	u, err := db.GetUser(ctx, username)
	if err == nil {
		return u.PublicKey, nil
	}
	if !store.IsNotFound(err) {
		return nil, fmt.Errorf("fileops: get user: %w", err)
	}
	return dummyPublicKey(username), nil
}

// dummyPublicKey derives a fixed-size but useless "public key" from
// username so that repeated lookups of the same nonexistent username
// return the same bytes, sized like a real key, without needing an RSA
// keygen per lookup. The bytes are not valid DER.
func dummyPublicKey(username string) []byte {
	h := sha256.New()
	h.Write([]byte("tsfs-dummy-pubkey:"))
	h.Write([]byte(username))
	seed := h.Sum(nil)

	// Expand the 32-byte seed into something sized like a real marshaled
	// RSA-2048 SubjectPublicKeyInfo (roughly 294 bytes DER) via a simple
	// counter-mode stretch; this is never used for cryptography, only to
	// keep response sizes and shapes uniform.
	out := make([]byte, 294)
	for i := 0; i < len(out); i += len(seed) {
		h := sha256.New()
		h.Write(seed)
		h.Write([]byte{byte(i)})
		copy(out[i:], h.Sum(nil))
	}
	return out
}

