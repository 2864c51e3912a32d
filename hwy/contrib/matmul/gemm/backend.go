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

// Package gemm is the compute backend behind the bf16 matmul dispatcher.
//
// The dispatcher talks to a Backend through three primitives: a scaled
// multiply-accumulate, a multiply with a fused broadcast bias row, and a
// direct copy. Operands are Views, zero-copy row-major windows over bf16
// storage obtained from tensors with ViewOf.
package gemm

import (
	"github.com/pkg/errors"

	"github.com/ajroetker/go-bf16gemm/hwy"
	"github.com/ajroetker/go-bf16gemm/hwy/tensor"
)

// View is a 2-D row-major window over bf16 elements.
// Element (i, j) lives at Data[i*Stride+j].
type View struct {
	Rows, Cols int
	Stride     int
	Data       []hwy.BFloat16
}

// IsEmpty reports whether v is the absent operand (the zero View).
func (v View) IsEmpty() bool {
	return v.Data == nil && v.Rows == 0 && v.Cols == 0
}

// Row returns row i as a slice of length Cols.
func (v View) Row(i int) []hwy.BFloat16 {
	start := i * v.Stride
	return v.Data[start : start+v.Cols]
}

func (v View) sameShape(o View) bool {
	return v.Rows == o.Rows && v.Cols == o.Cols
}

// ViewOf wraps a rank-2 bf16 tensor without copying its storage.
func ViewOf(t *tensor.Tensor) (View, error) {
	if t == nil {
		return View{}, errors.New("gemm: nil tensor")
	}
	if t.Rank() != 2 {
		return View{}, errors.Errorf("gemm: view needs a rank-2 tensor, got rank %d", t.Rank())
	}
	if t.DType() != tensor.BFloat16 {
		return View{}, errors.Errorf("gemm: view needs bfloat16 elements, got %s", t.DType())
	}
	rows, cols := t.Dim(0), t.Dim(1)
	return View{Rows: rows, Cols: cols, Stride: cols, Data: t.BFloat16s()}, nil
}

// Scale is a table of quantization scales. An empty table is the identity.
type Scale []float32

// Backend executes the compute primitives the dispatcher plans.
// Implementations validate dimensions themselves; the dispatcher passes
// their errors through unchanged.
type Backend interface {
	// ScaledMatMul computes
	//
	//	y = act(dstScale * (alpha * srcScale * weightScale[j] * (x @ w) + beta * y))
	//
	// reading the previous contents of y only when beta != 0.
	ScaledMatMul(x, w, y View, alpha, beta float32, srcScale, weightScale, dstScale Scale, attr Attr) error

	// BiasMatMul computes y = x @ w + bias, where bias is a single 1×N row
	// added to every output row.
	BiasMatMul(x, w, bias, y View) error

	// DirectCopy copies the elements of src into dst verbatim.
	DirectCopy(src, dst View) error
}
