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

package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// RSAKeyBits is the modulus size used for every user's asymmetric keypair.
// The keypair wraps root-keyring edges (spec.md §4.A, §4.D).
const RSAKeyBits = 2048

// GenerateUserKeyPair creates a fresh RSA keypair for a new user. The
// private key is never transmitted; only its AEAD-sealed form
// (cryptox.Seal under export_key[:32]) and the DER-encoded public key leave
// the client.
func GenerateUserKeyPair() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: generate rsa key: %w", err)
	}
	return priv, nil
}

// MarshalPublicKey DER-encodes an RSA public key (PKIX), the form stored in
// users.pub_key and sent over the wire.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("cryptox: marshal public key: %w", err)
	}
	return der, nil
}

// ParsePublicKey decodes a PKIX DER-encoded RSA public key.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptox: not an rsa public key")
	}
	return rsaPub, nil
}

// MarshalPrivateKey PKCS#1-DER-encodes an RSA private key, the plaintext
// form that is immediately sealed with Seal and never persisted unsealed.
func MarshalPrivateKey(priv *rsa.PrivateKey) []byte {
	return x509.MarshalPKCS1PrivateKey(priv)
}

// ParsePrivateKey decodes a PKCS#1-DER-encoded RSA private key.
func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	priv, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse private key: %w", err)
	}
	return priv, nil
}

// WrapToPublicKey RSA-OAEP-SHA256 encrypts data (a symmetric edge key) under
// the recipient's public key. Used for root-keyring edges and for Share,
// which re-wraps a file's content key under the target user's public key.
func WrapToPublicKey(pub *rsa.PublicKey, data []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, data, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: wrap to public key: %w", err)
	}
	return ciphertext, nil
}

// UnwrapWithPrivateKey RSA-OAEP-SHA256 decrypts ciphertext with the user's
// private key. Any failure (wrong key, corrupt ciphertext) is reported as
// ErrKeyMismatch, matching the AEAD failure contract.
func UnwrapWithPrivateKey(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	data, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrKeyMismatch
	}
	return data, nil
}
