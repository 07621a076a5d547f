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
	// ChainCalls tracks blockchain registry lookups, by backend.
	ChainCalls = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "calls_total",
			Help:      "Total number of blockchain registry lookups",
		},
		[]string{"backend", "status"}, // ethereum/solana, ok/not_found/error
	)

	// ChainCallDuration tracks blockchain registry lookup latency.
	ChainCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "call_duration_seconds",
			Help:      "Blockchain registry lookup duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to 10s
		},
		[]string{"backend"},
	)

	// ChainCallsCoalesced tracks singleflight-deduplicated lookups.
	ChainCallsCoalesced = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "calls_coalesced_total",
			Help:      "Total number of registry lookups served from an in-flight call",
		},
	)
)
