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
	// FileOperations tracks file/folder mutations and reads.
	FileOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "operations_total",
			Help:      "Total number of file and folder operations processed",
		},
		[]string{"operation", "status"}, // upload/download/delete/share/unshare/mkdir, success/failure
	)

	// AuthzDenials tracks has_access traversals that denied a request.
	AuthzDenials = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "authz_denials_total",
			Help:      "Total number of access-graph traversals that denied a request",
		},
	)

	// AuthzTraversalDepth tracks how many keyring hops has_access walked
	// before resolving, bounded by the MaxDepth cycle guard.
	AuthzTraversalDepth = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "authz_traversal_depth",
			Help:      "Depth reached by an access-graph traversal",
			Buckets:   prometheus.LinearBuckets(0, 4, 16), // 0 to 60
		},
	)

	// FileOperationDuration tracks file-service operation duration.
	FileOperationDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "operation_duration_seconds",
			Help:      "File service operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to 205ms
		},
	)

	// FilePayloadSize tracks uploaded and downloaded ciphertext sizes.
	FilePayloadSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "payload_size_bytes",
			Help:      "Size of file ciphertext processed",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 12), // 64B to 256MB
		},
	)
)
