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

// Package config loads the TSFS server's runtime configuration from the
// environment, per spec.md §6's deployment contract: every setting the
// server needs is a single environment variable, with ${VAR:default}
// substitution supplying the defaults of LISTENING_ADDRESS, CERT_FILE,
// CERT_KEY_FILE and TSFS_LOG_LEVEL.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the server's complete runtime configuration.
type Config struct {
	// ListeningAddress is the interface the HTTPS listener binds to.
	ListeningAddress string
	// Port is the HTTPS listener port.
	Port int
	// DatabaseURL is the PostgreSQL connection string (pkg/store/postgres.Config.DSN).
	DatabaseURL string
	// OpaqueServerSetup is the base64-encoded opaque.ServerSetup, the one
	// piece of state that must survive a restart (spec.md §4.B).
	OpaqueServerSetup string
	// CertFile and CertKeyFile are PEM paths for the HTTPS listener.
	CertFile    string
	CertKeyFile string
	// LogLevel overrides the default structured-logger level.
	LogLevel string
	// MetricsAddress, when non-empty, is a host:port pair to serve a
	// second, plain-HTTP /metrics endpoint from, separate from the
	// authenticated HTTPS API — the usual pattern for keeping Prometheus
	// scraping off the public listener. Empty disables it; /metrics
	// remains reachable on the main HTTPS listener either way.
	MetricsAddress string
}

// Addr returns the host:port pair to pass to http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListeningAddress, c.Port)
}

const (
	defaultListeningAddress = "0.0.0.0"
	defaultPort             = 8443
	defaultCertFile         = "server.crt"
	defaultCertKeyFile      = "server.key"
	defaultLogLevel         = "INFO"
)

// Load reads the server configuration from the environment. DATABASE_URL
// and OPAQUE_SERVER_SETUP have no usable default and are returned as errors
// when missing; every other field falls back to a development-friendly
// default.
func Load() (*Config, error) {
	cfg := &Config{
		ListeningAddress:  SubstituteEnvVars("${LISTENING_ADDRESS:" + defaultListeningAddress + "}"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		OpaqueServerSetup: os.Getenv("OPAQUE_SERVER_SETUP"),
		CertFile:          SubstituteEnvVars("${CERT_FILE:" + defaultCertFile + "}"),
		CertKeyFile:       SubstituteEnvVars("${CERT_KEY_FILE:" + defaultCertKeyFile + "}"),
		LogLevel:          SubstituteEnvVars("${TSFS_LOG_LEVEL:" + defaultLogLevel + "}"),
		MetricsAddress:    os.Getenv("TSFS_METRICS_ADDR"),
		Port:              defaultPort,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.OpaqueServerSetup == "" {
		return nil, fmt.Errorf("config: OPAQUE_SERVER_SETUP is required (run the tsfs-server setup subcommand once)")
	}

	return cfg, nil
}
