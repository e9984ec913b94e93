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
)

func TestSubstituteEnvVarsUsesEnvironment(t *testing.T) {
	t.Setenv("TSFS_TEST_VAR", "from-env")
	assert.Equal(t, "from-env", SubstituteEnvVars("${TSFS_TEST_VAR:fallback}"))
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	t.Setenv("TSFS_TEST_VAR", "")
	assert.Equal(t, "fallback", SubstituteEnvVars("${TSFS_TEST_VAR:fallback}"))
}

func TestSubstituteEnvVarsNoDefaultYieldsEmpty(t *testing.T) {
	t.Setenv("TSFS_TEST_VAR", "")
	assert.Equal(t, "", SubstituteEnvVars("${TSFS_TEST_VAR}"))
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	t.Setenv("TSFS_ENV", "")
	assert.Equal(t, "development", GetEnvironment())
}

func TestIsProduction(t *testing.T) {
	t.Setenv("TSFS_ENV", "production")
	assert.True(t, IsProduction())

	t.Setenv("TSFS_ENV", "development")
	assert.False(t, IsProduction())
}
