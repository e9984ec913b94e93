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

// Package clientconfig loads and saves the TSFS client's on-disk YAML
// configuration (spec.md §6 "Client configuration"): where the server is,
// whether to trust its certificate, and where downloads land locally.
package clientconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full shape of a client's config.yaml.
type Config struct {
	EndpointURL         string `yaml:"endpoint_url"`
	EndpointPort        int    `yaml:"endpoint_port"`
	AcceptInvalidCert   bool   `yaml:"accept_invalid_cert"`
	LocalDownloadFolder string `yaml:"local_download_folder"`
}

const (
	defaultEndpointURL  = "localhost"
	defaultEndpointPort = 8443
)

// Default returns a Config with the development-friendly defaults spec.md
// §6 describes: a local server, a verified certificate, and downloads
// landing in the current directory.
func Default() *Config {
	return &Config{
		EndpointURL:         defaultEndpointURL,
		EndpointPort:        defaultEndpointPort,
		AcceptInvalidCert:   false,
		LocalDownloadFolder: ".",
	}
}

// BaseURL renders the https://host:port prefix every API request is built
// against.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("https://%s:%d", c.EndpointURL, c.EndpointPort)
}

// Load reads and parses a YAML config file at path. A missing file is not
// an error: Default is returned instead, letting a first run fall back to
// sane settings before the user has created one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("clientconfig: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("clientconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating its parent directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("clientconfig: create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clientconfig: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("clientconfig: write %s: %w", path, err)
	}
	return nil
}

// DefaultPath returns the conventional location of the client config file,
// $HOME/.tsfs/config.yaml, falling back to ./tsfs-config.yaml if the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tsfs-config.yaml"
	}
	return filepath.Join(home, ".tsfs", "config.yaml")
}
