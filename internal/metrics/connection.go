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
	// ConnectionsAccepted tracks accepted WebSocket connections.
	ConnectionsAccepted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Total number of WebSocket connections accepted",
		},
	)

	// ConnectionsActive tracks currently open connections.
	ConnectionsActive = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Number of currently open WebSocket connections",
		},
	)

	// PingTimeouts tracks connections reaped for missed liveness pongs.
	PingTimeouts = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "ping_timeouts_total",
			Help:      "Total number of connections closed after a missed pong",
		},
	)

	// MessageSize tracks inbound/outbound envelope sizes.
	MessageSize = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "message_size_bytes",
			Help:      "Size of protocol envelopes in bytes",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 8), // 32B to 512KB
		},
		[]string{"direction"}, // inbound, outbound
	)
)
