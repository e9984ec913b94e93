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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTENING_ADDRESS", "PORT", "DATABASE_URL", "OPAQUE_SERVER_SETUP",
		"CERT_FILE", "CERT_KEY_FILE", "TSFS_LOG_LEVEL", "TSFS_METRICS_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("OPAQUE_SERVER_SETUP", "deadbeef")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRequiresOpaqueServerSetup(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/tsfs")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPAQUE_SERVER_SETUP")
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/tsfs")
	t.Setenv("OPAQUE_SERVER_SETUP", "deadbeef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultListeningAddress, cfg.ListeningAddress)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, defaultCertFile, cfg.CertFile)
	assert.Equal(t, defaultCertKeyFile, cfg.CertKeyFile)
	assert.Equal(t, "0.0.0.0:8443", cfg.Addr())
	assert.Empty(t, cfg.MetricsAddress)
}

func TestLoadHonorsMetricsAddress(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/tsfs")
	t.Setenv("OPAQUE_SERVER_SETUP", "deadbeef")
	t.Setenv("TSFS_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddress)
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/tsfs")
	t.Setenv("OPAQUE_SERVER_SETUP", "deadbeef")
	t.Setenv("LISTENING_ADDRESS", "127.0.0.1")
	t.Setenv("PORT", "9443")
	t.Setenv("CERT_FILE", "/etc/tsfs/cert.pem")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.ListeningAddress)
	assert.Equal(t, 9443, cfg.Port)
	assert.Equal(t, "/etc/tsfs/cert.pem", cfg.CertFile)
	assert.Equal(t, "127.0.0.1:9443", cfg.Addr())
}

func TestLoadRejectsNonNumericPort(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/tsfs")
	t.Setenv("OPAQUE_SERVER_SETUP", "deadbeef")
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
