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

// Package tsfsclient is the HTTP half of the interactive client: it knows
// the wire shape of every endpoint in spec.md §6 and nothing about OPAQUE or
// the keyring tree's cryptography, which stay in internal/opaqueauth,
// internal/clientcrypto and internal/keyring. cmd/tsfs-client composes the
// two.
package tsfsclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tsfs-project/tsfs/internal/keyring"
)

// APIError mirrors internal/logger.APIError's wire shape, the body every
// non-2xx response carries.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client is a thin, stateless-except-for-the-token HTTP client for the TSFS
// API. It owns nothing cryptographic; every field it sends or receives is
// opaque ciphertext from its point of view.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New builds a Client against baseURL (e.g. "https://localhost:8443").
// insecureSkipVerify mirrors clientconfig.Config.AcceptInvalidCert.
func New(baseURL string, insecureSkipVerify bool) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureSkipVerify}, //nolint:gosec
			},
		},
	}
}

// SetToken sets the bearer token attached to every subsequent request.
func (c *Client) SetToken(token string) { c.token = token }

// Token returns the currently configured bearer token.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tsfsclient: encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("tsfsclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tsfsclient: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Code != "" {
			return &apiErr
		}
		return fmt.Errorf("tsfsclient: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tsfsclient: decode response: %w", err)
	}
	return nil
}

// --- auth ---

type RegisterStartResponse struct {
	Response []byte `json:"response"`
}

func (c *Client) RegisterStart(ctx context.Context, username string, request []byte) (*RegisterStartResponse, error) {
	out := &RegisterStartResponse{}
	err := c.do(ctx, http.MethodPost, "/auth/register/start", map[string]any{
		"username": username,
		"request":  request,
	}, out)
	return out, err
}

func (c *Client) RegisterFinish(ctx context.Context, username string, upload, publicKey, encryptedPrivateKey []byte) error {
	return c.do(ctx, http.MethodPost, "/auth/register/finish", map[string]any{
		"username":              username,
		"upload":                upload,
		"public_key":            publicKey,
		"encrypted_private_key": encryptedPrivateKey,
	}, nil)
}

type LoginStartResponse struct {
	KE2 []byte `json:"ke2"`
}

func (c *Client) LoginStart(ctx context.Context, username string, ke1 []byte) (*LoginStartResponse, error) {
	out := &LoginStartResponse{}
	err := c.do(ctx, http.MethodPost, "/auth/login/start", map[string]any{
		"username": username,
		"ke1":      ke1,
	}, out)
	return out, err
}

type LoginFinishResponse struct {
	Token               string        `json:"token"`
	PublicKey           []byte        `json:"public_key"`
	EncryptedPrivateKey []byte        `json:"encrypted_private_key"`
	Tree                *keyring.Tree `json:"tree"`
}

func (c *Client) LoginFinish(ctx context.Context, username string, ke3 []byte) (*LoginFinishResponse, error) {
	out := &LoginFinishResponse{}
	err := c.do(ctx, http.MethodPost, "/auth/login/finish", map[string]any{
		"username": username,
		"ke3":      ke3,
	}, out)
	if err == nil {
		c.token = out.Token
	}
	return out, err
}

func (c *Client) ChangePasswordStart(ctx context.Context, request []byte) (*RegisterStartResponse, error) {
	out := &RegisterStartResponse{}
	err := c.do(ctx, http.MethodPost, "/auth/change_password/start", map[string]any{
		"request": request,
	}, out)
	return out, err
}

func (c *Client) ChangePasswordFinish(ctx context.Context, upload, encryptedPrivateKey []byte) error {
	return c.do(ctx, http.MethodPost, "/auth/change_password/finish", map[string]any{
		"upload":                upload,
		"encrypted_private_key": encryptedPrivateKey,
	}, nil)
}

type SessionResponse struct {
	Username   string `json:"username"`
	TokenShort string `json:"token_short"`
	ExpiresAt  string `json:"expires_at"`
}

func (c *Client) GetSession(ctx context.Context) (*SessionResponse, error) {
	out := &SessionResponse{}
	err := c.do(ctx, http.MethodGet, "/auth/session", nil, out)
	return out, err
}

type SessionSummary struct {
	TokenShort   string `json:"TokenShort"`
	ExpirationMS int64  `json:"ExpirationMS"`
}

type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

func (c *Client) ListSessions(ctx context.Context) (*SessionsResponse, error) {
	out := &SessionsResponse{}
	err := c.do(ctx, http.MethodGet, "/auth/sessions", nil, out)
	return out, err
}

func (c *Client) Revoke(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/revoke", nil, nil)
	if err == nil {
		c.token = ""
	}
	return err
}

type RevokeAllResponse struct {
	Revoked int64 `json:"revoked"`
}

func (c *Client) RevokeAll(ctx context.Context) (*RevokeAllResponse, error) {
	out := &RevokeAllResponse{}
	err := c.do(ctx, http.MethodPost, "/auth/revoke_all", nil, out)
	return out, err
}

// --- files ---

type PubKeyResponse struct {
	PublicKey []byte `json:"public_key"`
}

func (c *Client) PubKey(ctx context.Context, username string) (*PubKeyResponse, error) {
	out := &PubKeyResponse{}
	err := c.do(ctx, http.MethodGet, "/pubkey/"+username, nil, out)
	return out, err
}

func (c *Client) GetKeyring(ctx context.Context) (*keyring.Tree, error) {
	out := &keyring.Tree{}
	err := c.do(ctx, http.MethodGet, "/keyring", nil, out)
	return out, err
}

type UploadResponse struct {
	FileID  string `json:"file_id"`
	Created bool   `json:"created"`
}

// Upload uploads a new file, or, when overwriteFileID is non-empty,
// replaces an existing file's content and name in place. wrappedKey is
// ignored by the server when overwriteFileID is set; pass nil.
func (c *Client) Upload(ctx context.Context, parentUID string, encryptedName, ciphertextData, wrappedKey []byte, overwriteFileID string) (*UploadResponse, error) {
	out := &UploadResponse{}
	err := c.do(ctx, http.MethodPost, "/file/upload", map[string]any{
		"parent_uid":        parentUID,
		"encrypted_name":    encryptedName,
		"ciphertext_data":   ciphertextData,
		"wrapped_key":       wrappedKey,
		"overwrite_file_id": overwriteFileID,
	}, out)
	return out, err
}

type DownloadResponse struct {
	EncryptedName  []byte `json:"encrypted_name"`
	CiphertextData []byte `json:"ciphertext_data"`
	Mtime          string `json:"mtime"`
}

func (c *Client) Download(ctx context.Context, fileUID string) (*DownloadResponse, error) {
	out := &DownloadResponse{}
	err := c.do(ctx, http.MethodGet, "/file/download?file_uid="+fileUID, nil, out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, fileUID string) error {
	return c.do(ctx, http.MethodDelete, "/file/delete?file_uid="+fileUID, nil, nil)
}

func (c *Client) Share(ctx context.Context, fileUID, targetUser string, wrappedKey []byte) error {
	return c.do(ctx, http.MethodPost, "/file/share", map[string]any{
		"file_uid":    fileUID,
		"target_user": targetUser,
		"wrapped_key": wrappedKey,
	}, nil)
}

func (c *Client) Unshare(ctx context.Context, fileUID, parentUID string, wrappedKey, encryptedName, ciphertextData []byte) error {
	return c.do(ctx, http.MethodPost, "/file/unshare", map[string]any{
		"file_uid":        fileUID,
		"parent_uid":      parentUID,
		"wrapped_key":     wrappedKey,
		"encrypted_name":  encryptedName,
		"ciphertext_data": ciphertextData,
	}, nil)
}

type CreateFolderResponse struct {
	FolderID string `json:"folder_id"`
}

func (c *Client) CreateFolder(ctx context.Context, parentUID string, encryptedName, wrappedKey []byte) (*CreateFolderResponse, error) {
	out := &CreateFolderResponse{}
	err := c.do(ctx, http.MethodPost, "/folder/create", map[string]any{
		"parent_uid":     parentUID,
		"encrypted_name": encryptedName,
		"wrapped_key":    wrappedKey,
	}, out)
	return out, err
}

// --- debug ---

// Summary mirrors internal/metrics.Snapshot's wire shape (it carries no json
// tags of its own, so its field names are the wire names verbatim).
type Summary struct {
	Timestamp time.Time     `json:"Timestamp"`
	Uptime    time.Duration `json:"Uptime"`

	AuthAttempts      int64 `json:"AuthAttempts"`
	AuthSuccesses     int64 `json:"AuthSuccesses"`
	AuthFailures      int64 `json:"AuthFailures"`
	SessionsIssued    int64 `json:"SessionsIssued"`
	SessionsRevoked   int64 `json:"SessionsRevoked"`
	FileUploads       int64 `json:"FileUploads"`
	FileDownloads     int64 `json:"FileDownloads"`
	FileDeletes       int64 `json:"FileDeletes"`
	ShareOperations   int64 `json:"ShareOperations"`
	UnshareOperations int64 `json:"UnshareOperations"`
	AuthzDenials      int64 `json:"AuthzDenials"`

	AvgAuthTime   float64 `json:"AvgAuthTime"`
	AvgAuthzTime  float64 `json:"AvgAuthzTime"`
	AvgUploadTime float64 `json:"AvgUploadTime"`

	P95AuthTime   int64 `json:"P95AuthTime"`
	P95AuthzTime  int64 `json:"P95AuthzTime"`
	P95UploadTime int64 `json:"P95UploadTime"`
}

// AuthSuccessRate mirrors metrics.Snapshot.AuthSuccessRate.
func (s *Summary) AuthSuccessRate() float64 {
	if s.AuthAttempts == 0 {
		return 0
	}
	return float64(s.AuthSuccesses) / float64(s.AuthAttempts) * 100
}

// DebugSummary fetches the server's in-process activity rollup (GET
// /debug/summary).
func (c *Client) DebugSummary(ctx context.Context) (*Summary, error) {
	out := &Summary{}
	err := c.do(ctx, http.MethodGet, "/debug/summary", nil, out)
	return out, err
}
