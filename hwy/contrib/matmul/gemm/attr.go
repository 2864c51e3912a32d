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

package gemm

import "math"

// ActivationType specifies which activation function to apply after matmul.
type ActivationType int

const (
	// ActNone applies no activation (identity).
	ActNone ActivationType = iota
	// ActSiLU applies SiLU/Swish: x * sigmoid(x). Used in LLaMA, Mistral.
	ActSiLU
	// ActGELU applies exact GELU: x * 0.5 * (1 + erf(x/sqrt(2))). Used in BERT, GPT.
	ActGELU
	// ActGELUApprox applies approximate GELU: x * sigmoid(1.702 * x).
	ActGELUApprox
	// ActReLU applies ReLU: max(0, x).
	ActReLU
)

func (a ActivationType) String() string {
	switch a {
	case ActNone:
		return "none"
	case ActSiLU:
		return "silu"
	case ActGELU:
		return "gelu"
	case ActGELUApprox:
		return "gelu_approx"
	case ActReLU:
		return "relu"
	default:
		return "unknown"
	}
}

// Attr is the post-op attribute set applied by ScaledMatMul after
// accumulation.
type Attr struct {
	Activation ActivationType
}

// DefaultAttr returns the empty attribute set: no post-ops.
func DefaultAttr() Attr {
	return Attr{Activation: ActNone}
}

func (a Attr) apply(row []float32) {
	switch a.Activation {
	case ActReLU:
		for i, v := range row {
			row[i] = max(v, 0)
		}
	case ActSiLU:
		for i, v := range row {
			row[i] = v * sigmoid(v)
		}
	case ActGELU:
		for i, v := range row {
			row[i] = v * 0.5 * (1 + float32(math.Erf(float64(v)*invSqrt2)))
		}
	case ActGELUApprox:
		for i, v := range row {
			row[i] = v * sigmoid(geluApproxCoeff*v)
		}
	}
}

const (
	invSqrt2        = 0.7071067811865476
	geluApproxCoeff = 1.702
)

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
