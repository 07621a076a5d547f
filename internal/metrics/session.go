// Copyright (C) 2025 ChainAuth
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
	// SessionsCreated tracks total session records created, by kind.
	SessionsCreated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of session records created",
		},
		[]string{"kind"}, // widget, authenticator
	)

	// SessionsActive tracks currently live session records.
	SessionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of currently active session records",
		},
	)

	// SessionsReaped tracks sessions removed by the authorization window timer.
	SessionsReaped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "reaped_total",
			Help:      "Total number of sessions removed after the authorization window elapsed",
		},
	)

	// SessionsClosed tracks sessions removed through normal termination.
	SessionsClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Total number of sessions removed through termination",
		},
		[]string{"reason"}, // success, declined, peer_failed, disconnect
	)

	// SessionPairDuration tracks the time from the authenticator session's
	// creation to a successful AUTH_RESULT.
	SessionPairDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "pair_duration_seconds",
			Help:      "Time from authenticator session creation to successful AUTH_RESULT",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to 82s
		},
	)
)
