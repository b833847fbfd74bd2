// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// clientRequests tracks requests sent by channel and message type
	clientRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernelkit_client_requests_total",
			Help: "Total requests sent to kernels by channel and message type",
		},
		[]string{"channel", "msg_type"},
	)

	// clientDropped tracks replies discarded before reaching a caller
	clientDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernelkit_client_dropped_replies_total",
			Help: "Total replies dropped by channel and reason",
		},
		[]string{"channel", "reason"},
	)

	// clientReplyWait tracks how long callers block for a reply
	clientReplyWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kernelkit_client_reply_wait_seconds",
			Help:    "Time spent waiting for a kernel reply",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"channel", "outcome"},
	)
)

// recordRequest increments the request counter
func recordRequest(channel, msgType string) {
	clientRequests.WithLabelValues(channel, msgType).Inc()
}

// recordDropped increments the dropped reply counter
func recordDropped(channel, reason string) {
	clientDropped.WithLabelValues(channel, reason).Inc()
}

// observeReplyWait records a reply wait duration in seconds
func observeReplyWait(channel, outcome string, seconds float64) {
	clientReplyWait.WithLabelValues(channel, outcome).Observe(seconds)
}
