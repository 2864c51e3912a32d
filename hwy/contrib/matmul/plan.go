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

package matmul

import "github.com/ajroetker/go-bf16gemm/hwy/contrib/matmul/gemm"

// Plan is the execution strategy chosen for one fused matmul call.
type Plan int

const (
	// PlanPlainMatMul computes Y = alpha*(X@W) with one ScaledMatMul call
	// and no accumulation term.
	PlanPlainMatMul Plan = iota
	// PlanFusedBias computes Y = X@W + bias with one BiasMatMul call. Only
	// legal for a single-row bias with unit coefficients.
	PlanFusedBias
	// PlanCopyThenScaled copies the bias into Y, then computes
	// Y = alpha*(X@W) + beta*Y with ScaledMatMul.
	PlanCopyThenScaled
)

func (p Plan) String() string {
	switch p {
	case PlanPlainMatMul:
		return "plain"
	case PlanFusedBias:
		return "fused_bias"
	case PlanCopyThenScaled:
		return "copy_then_scaled"
	default:
		return "unknown"
	}
}

// planFusion selects the plan for bias and opts. The checks run in a fixed
// order: bias presence first, then the fused-bias preconditions.
//
// The backend's bias kernel only takes a 1×N bias with unit coefficients.
// Every other combination materializes the bias in Y first and lets the
// scaled matmul accumulate onto it.
func planFusion(bias gemm.View, opts Options) Plan {
	if bias.IsEmpty() {
		return PlanPlainMatMul
	}
	if opts.Alpha == 1 && opts.Beta == 1 && bias.Rows == 1 {
		return PlanFusedBias
	}
	return PlanCopyThenScaled
}
