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

package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// launchesTotal tracks launches by outcome
	launchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernelkit_launches_total",
			Help: "Total kernel launches by outcome",
		},
		[]string{"outcome"},
	)

	// startupDuration tracks time from spawn to a connected client
	startupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kernelkit_startup_duration_seconds",
			Help:    "Time from process spawn until the kernel is ready",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)

	// activeKernels tracks kernels launched and not yet closed
	activeKernels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kernelkit_active_kernels",
			Help: "Number of running kernels owned by this process",
		},
	)

	// terminations tracks how kernels were stopped
	terminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernelkit_terminations_total",
			Help: "Total kernel terminations by method",
		},
		[]string{"method"},
	)
)

// recordLaunch increments the launch counter for outcome
func recordLaunch(outcome string) {
	launchesTotal.WithLabelValues(outcome).Inc()
}

// recordTermination increments the termination counter for method
func recordTermination(method string) {
	terminations.WithLabelValues(method).Inc()
}
