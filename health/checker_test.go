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

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckReturnsHealthyOnSuccess(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.RegisterCheck("ok", func(ctx context.Context) error { return nil })

	result, err := h.Check(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestCheckReturnsUnhealthyOnError(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.RegisterCheck("broken", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	result, err := h.Check(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Message, "connection refused")
}

func TestCheckUnknownNameErrors(t *testing.T) {
	h := NewHealthChecker(time.Second)
	_, err := h.Check(context.Background(), "missing")
	assert.Error(t, err)
}

func TestCheckResultIsCached(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.SetCacheTTL(time.Minute)

	calls := 0
	h.RegisterCheck("counted", func(ctx context.Context) error {
		calls++
		return nil
	})

	_, err := h.Check(context.Background(), "counted")
	require.NoError(t, err)
	_, err = h.Check(context.Background(), "counted")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCheckAllAggregatesStatus(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.RegisterCheck("good", func(ctx context.Context) error { return nil })
	h.RegisterCheck("bad", func(ctx context.Context) error { return errors.New("down") })

	status := h.GetOverallStatus(context.Background())
	assert.Equal(t, StatusUnhealthy, status)
}

func TestGetOverallStatusHealthyWhenNoChecks(t *testing.T) {
	h := NewHealthChecker(time.Second)
	assert.Equal(t, StatusHealthy, h.GetOverallStatus(context.Background()))
}

func TestDatabaseHealthCheckRequiresPingFunc(t *testing.T) {
	check := DatabaseHealthCheck(nil)
	assert.Error(t, check(context.Background()))

	check = DatabaseHealthCheck(func(ctx context.Context) error { return nil })
	assert.NoError(t, check(context.Background()))
}

func TestSessionStoreHealthCheckDetectsStall(t *testing.T) {
	stale := SessionStoreHealthCheck(func() time.Time {
		return time.Now().Add(-time.Hour)
	}, time.Minute)
	assert.Error(t, stale(context.Background()))

	fresh := SessionStoreHealthCheck(time.Now, time.Minute)
	assert.NoError(t, fresh(context.Background()))
}

func TestOpaqueSetupHealthCheck(t *testing.T) {
	assert.Error(t, OpaqueSetupHealthCheck(func() bool { return false })(context.Background()))
	assert.NoError(t, OpaqueSetupHealthCheck(func() bool { return true })(context.Background()))
}

func TestGetSystemHealthReportsChecks(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.RegisterCheck("ok", func(ctx context.Context) error { return nil })

	sys := h.GetSystemHealth(context.Background())
	assert.Equal(t, StatusHealthy, sys.Status)
	assert.Contains(t, sys.Checks, "ok")
}
