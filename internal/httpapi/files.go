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

	"github.com/tsfs-project/tsfs/internal/authz"
	"github.com/tsfs-project/tsfs/internal/fileops"
	"github.com/tsfs-project/tsfs/internal/logger"
	"github.com/tsfs-project/tsfs/internal/metrics"
)

// rootKeyringFor resolves the caller's root keyring id, the anchor every
// fileops call traverses has_access from (spec.md §4.F).
func (s *Server) rootKeyringFor(r *http.Request) (string, error) {
	username, _ := authInfo(r)
	u, err := s.db.GetUser(r.Context(), username)
	if err != nil {
		return "", err
	}
	return u.RootKeyringID, nil
}

type pubKeyResponse struct {
	PublicKey []byte `json:"public_key"`
}

// handlePubKey implements GET /pubkey/{user}: any authenticated caller may
// fetch any username's public key, with a dummy response for unknown users
// to resist enumeration (spec.md §4.F, §9).
func (s *Server) handlePubKey(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("user")
	pub, err := fileops.GetPublicKey(r.Context(), s.db, target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, pubKeyResponse{PublicKey: pub})
}

// handleGetKeyring implements GET /keyring: the caller's full ciphertext
// keyring tree (spec.md §4.F "Get tree").
func (s *Server) handleGetKeyring(w http.ResponseWriter, r *http.Request) {
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	tree, err := s.files.GetTree(r.Context(), rootKeyringID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type uploadRequest struct {
	ParentUID       string `json:"parent_uid"`
	EncryptedName   []byte `json:"encrypted_name"`
	CiphertextData  []byte `json:"ciphertext_data"`
	WrappedKey      []byte `json:"wrapped_key"`
	OverwriteFileID string `json:"overwrite_file_id,omitempty"`
}

type uploadResponse struct {
	FileID  string `json:"file_id"`
	Created bool   `json:"created"`
}

// handleUpload implements POST /file/upload (spec.md §4.F "Upload").
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	var in uploadRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	id, created, err := s.files.Upload(r.Context(), fileops.UploadInput{
		RootKeyringID:   rootKeyringID,
		ParentUID:       in.ParentUID,
		EncryptedName:   in.EncryptedName,
		CiphertextData:  in.CiphertextData,
		WrappedKey:      in.WrappedKey,
		OverwriteFileID: in.OverwriteFileID,
	})
	if err != nil {
		metrics.FileOperations.WithLabelValues("upload", "failure").Inc()
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	metrics.FileOperations.WithLabelValues("upload", "success").Inc()
	metrics.FileOperationDuration.Observe(time.Since(start).Seconds())
	metrics.FilePayloadSize.Observe(float64(len(in.CiphertextData)))
	metrics.GlobalCollector().RecordUpload(time.Since(start))
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, uploadResponse{FileID: id, Created: created})
}

type downloadResponse struct {
	EncryptedName  []byte `json:"encrypted_name"`
	CiphertextData []byte `json:"ciphertext_data"`
	Mtime          string `json:"mtime"`
}

// handleDownload implements GET /file/download (spec.md §4.F "Download").
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	fileUID := r.URL.Query().Get("file_uid")
	if fileUID == "" {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "file_uid is required")
		return
	}

	f, err := s.files.Download(r.Context(), rootKeyringID, fileUID)
	if err != nil {
		metrics.FileOperations.WithLabelValues("download", "failure").Inc()
		if errStatusIsDenial(err) {
			metrics.AuthzDenials.Inc()
			metrics.GlobalCollector().RecordAuthzCheck(false, time.Since(start))
		}
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	metrics.FileOperations.WithLabelValues("download", "success").Inc()
	metrics.FileOperationDuration.Observe(time.Since(start).Seconds())
	metrics.FilePayloadSize.Observe(float64(len(f.CiphertextData)))
	metrics.GlobalCollector().RecordDownload()
	writeJSON(w, http.StatusOK, downloadResponse{
		EncryptedName:  f.EncryptedName,
		CiphertextData: f.CiphertextData,
		Mtime:          f.Mtime.UTC().Format(time.RFC3339Nano),
	})
}

// handleDelete implements DELETE /file/delete (spec.md §4.F "Delete").
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	fileUID := r.URL.Query().Get("file_uid")
	if fileUID == "" {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "file_uid is required")
		return
	}

	if err := s.files.Delete(r.Context(), rootKeyringID, fileUID); err != nil {
		metrics.FileOperations.WithLabelValues("delete", "failure").Inc()
		if errStatusIsDenial(err) {
			metrics.AuthzDenials.Inc()
		}
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	metrics.FileOperations.WithLabelValues("delete", "success").Inc()
	metrics.GlobalCollector().RecordDelete()
	w.WriteHeader(http.StatusOK)
}

type shareRequest struct {
	FileUID    string `json:"file_uid"`
	TargetUser string `json:"target_user"`
	WrappedKey []byte `json:"wrapped_key"`
}

// handleShare implements POST /file/share (spec.md §4.F "Share"). The
// target's root keyring is resolved server-side from TargetUser; the
// client only ever supplies a wrapped key it produced using that user's
// public key from GET /pubkey. Unlike GET /pubkey, an unknown TargetUser
// here is reported as a plain 404: the caller already proved they hold
// access to FileUID, so there is no enumeration oracle to protect against
// by the time share is reachable, and GetPublicKey's dummy-key mitigation
// does not apply.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	var in shareRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	ok, err := authz.HasAccess(r.Context(), s.db, rootKeyringID, in.FileUID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}
	if !ok {
		metrics.FileOperations.WithLabelValues("share", "failure").Inc()
		metrics.AuthzDenials.Inc()
		status, code := errStatus(fileops.ErrForbidden)
		writeError(w, status, code, fileops.ErrForbidden.Error())
		return
	}

	target, err := s.db.GetUser(r.Context(), in.TargetUser)
	if err != nil {
		metrics.FileOperations.WithLabelValues("share", "failure").Inc()
		status, code := errStatus(err)
		writeError(w, status, code, "unknown target user")
		return
	}

	if err := s.files.Share(r.Context(), rootKeyringID, in.FileUID, target.RootKeyringID, in.WrappedKey); err != nil {
		metrics.FileOperations.WithLabelValues("share", "failure").Inc()
		if errStatusIsDenial(err) {
			metrics.AuthzDenials.Inc()
		}
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	metrics.FileOperations.WithLabelValues("share", "success").Inc()
	metrics.GlobalCollector().RecordShare()
	w.WriteHeader(http.StatusOK)
}

type unshareRequest struct {
	FileUID        string `json:"file_uid"`
	ParentUID      string `json:"parent_uid"`
	WrappedKey     []byte `json:"wrapped_key"`
	EncryptedName  []byte `json:"encrypted_name"`
	CiphertextData []byte `json:"ciphertext_data"`
}

// handleUnshare implements POST /file/unshare (spec.md §4.F "Unshare").
func (s *Server) handleUnshare(w http.ResponseWriter, r *http.Request) {
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	var in unshareRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	err = s.files.Unshare(r.Context(), fileops.UnshareInput{
		RootKeyringID:  rootKeyringID,
		FileUID:        in.FileUID,
		ParentUID:      in.ParentUID,
		WrappedKey:     in.WrappedKey,
		EncryptedName:  in.EncryptedName,
		CiphertextData: in.CiphertextData,
	})
	if err != nil {
		metrics.FileOperations.WithLabelValues("unshare", "failure").Inc()
		if errStatusIsDenial(err) {
			metrics.AuthzDenials.Inc()
		}
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	metrics.FileOperations.WithLabelValues("unshare", "success").Inc()
	metrics.GlobalCollector().RecordUnshare()
	w.WriteHeader(http.StatusOK)
}

type createFolderRequest struct {
	ParentUID     string `json:"parent_uid"`
	EncryptedName []byte `json:"encrypted_name"`
	WrappedKey    []byte `json:"wrapped_key"`
}

type createFolderResponse struct {
	FolderID string `json:"folder_id"`
}

// handleCreateFolder implements POST /folder/create (spec.md §4.F "Create
// folder").
func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	rootKeyringID, err := s.rootKeyringFor(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, logger.ErrCodeInternal, "internal error")
		return
	}

	var in createFolderRequest
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, logger.ErrCodeInvalidInput, "malformed request body")
		return
	}

	id, err := s.files.CreateFolder(r.Context(), fileops.CreateFolderInput{
		RootKeyringID: rootKeyringID,
		ParentUID:     in.ParentUID,
		EncryptedName: in.EncryptedName,
		WrappedKey:    in.WrappedKey,
	})
	if err != nil {
		metrics.FileOperations.WithLabelValues("mkdir", "failure").Inc()
		if errStatusIsDenial(err) {
			metrics.AuthzDenials.Inc()
		}
		status, code := errStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	metrics.FileOperations.WithLabelValues("mkdir", "success").Inc()
	writeJSON(w, http.StatusCreated, createFolderResponse{FolderID: id})
}

func errStatusIsDenial(err error) bool {
	status, _ := errStatus(err)
	return status == http.StatusForbidden
}
