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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthHandshakesInitiated tracks OPAQUE registration/login rounds
	// started.
	AuthHandshakesInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshakes_initiated_total",
			Help:      "Total number of OPAQUE handshakes initiated",
		},
		[]string{"flow"}, // register, login, change_password
	)

	// AuthHandshakesCompleted tracks OPAQUE handshakes that reached
	// finish.
	AuthHandshakesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshakes_completed_total",
			Help:      "Total number of OPAQUE handshakes completed",
		},
		[]string{"flow", "status"}, // success, failure
	)

	// AuthHandshakesAborted tracks handshakes that failed by error class.
	AuthHandshakesAborted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshakes_aborted_total",
			Help:      "Total number of aborted OPAQUE handshakes by reason",
		},
		[]string{"reason"}, // invalid_envelope, unknown_user, expired_state, mismatch
	)

	// AuthHandshakeDuration tracks per-stage OPAQUE handshake latency.
	AuthHandshakeDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "handshake_duration_seconds",
			Help:      "OPAQUE handshake stage duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 2s
		},
		[]string{"flow", "stage"}, // start, finish
	)
)
