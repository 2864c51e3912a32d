// Copyright 2025 go-highway Authors
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

// Package metrics exposes prometheus instrumentation for the bf16 matmul
// dispatcher. Collectors are registered with the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlanSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bf16gemm_plan_selections_total",
		Help: "Number of matmul calls dispatched per fusion plan",
	}, []string{"plan"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bf16gemm_validation_errors_total",
		Help: "Number of matmul calls rejected before reaching the backend",
	}, []string{"operation", "error_type"})

	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bf16gemm_kernel_duration_seconds",
		Help:    "Time spent in backend calls per fusion plan",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"plan"})
)

func RecordPlan(plan string) {
	PlanSelections.WithLabelValues(plan).Inc()
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}

func RecordKernelDuration(plan string, duration time.Duration) {
	KernelDuration.WithLabelValues(plan).Observe(duration.Seconds())
}
