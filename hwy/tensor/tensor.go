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

// Package tensor provides the caller-facing dense tensor handle consumed by
// the bf16 matmul dispatcher.
package tensor

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/ajroetker/go-bf16gemm/hwy"
)

// DType is the element type of a Tensor.
type DType int

const (
	InvalidDType DType = iota
	BFloat16
	Float16
	Float32
	Float64
)

func (d DType) String() string {
	switch d {
	case BFloat16:
		return "bfloat16"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "invalid"
	}
}

// Element is the set of Go types a Tensor can store.
type Element interface {
	hwy.BFloat16 | hwy.Float16 | float32 | float64
}

// Tensor is a dense row-major buffer with a shape and element type.
// The data slice is shared, never copied, by Wrap and Data.
type Tensor struct {
	shape []int
	dtype DType
	data  any
}

func numElements(shape []int) int {
	return lo.Reduce(shape, func(acc, d int, _ int) int { return acc * d }, 1)
}

func checkShape(shape []int) {
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
	}
}

// New allocates a zero-filled tensor.
func New(dtype DType, shape ...int) *Tensor {
	checkShape(shape)
	n := numElements(shape)
	var data any
	switch dtype {
	case BFloat16:
		data = make([]hwy.BFloat16, n)
	case Float16:
		data = make([]hwy.Float16, n)
	case Float32:
		data = make([]float32, n)
	case Float64:
		data = make([]float64, n)
	default:
		panic(fmt.Sprintf("tensor: cannot allocate dtype %s", dtype))
	}
	return &Tensor{shape: append([]int(nil), shape...), dtype: dtype, data: data}
}

// Wrap returns a tensor backed by data without copying it, so callers can
// hand existing bf16 buffers to the dispatcher. Writes through either
// alias are visible to the other.
// PRECONDITION: len(data) == product(shape).
func Wrap[T Element](data []T, shape ...int) *Tensor {
	checkShape(shape)
	if n := numElements(shape); len(data) != n {
		panic(fmt.Sprintf("tensor: %d elements do not fit shape %v (%d)", len(data), shape, n))
	}
	return &Tensor{shape: append([]int(nil), shape...), dtype: dtypeOf[T](), data: data}
}

func dtypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case hwy.BFloat16:
		return BFloat16
	case hwy.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return InvalidDType
}

// FromFloat32s allocates a tensor of the given dtype and converts values
// into it.
// PRECONDITION: len(values) == product(shape).
func FromFloat32s(dtype DType, values []float32, shape ...int) *Tensor {
	t := New(dtype, shape...)
	if len(values) != t.NumElements() {
		panic(fmt.Sprintf("tensor: %d values do not fit shape %v", len(values), shape))
	}
	switch data := t.data.(type) {
	case []hwy.BFloat16:
		hwy.NarrowBFloat16(data, values)
	case []hwy.Float16:
		for i, v := range values {
			data[i] = hwy.Float32ToFloat16(v)
		}
	case []float32:
		copy(data, values)
	case []float64:
		for i, v := range values {
			data[i] = float64(v)
		}
	}
	return t
}

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Dim returns dimension i.
func (t *Tensor) Dim(i int) int { return t.shape[i] }

// NumElements returns the product of the dimensions.
func (t *Tensor) NumElements() int { return numElements(t.shape) }

// BFloat16s returns the backing bf16 slice.
// It panics if the tensor is not BFloat16.
func (t *Tensor) BFloat16s() []hwy.BFloat16 {
	data, ok := t.data.([]hwy.BFloat16)
	if !ok {
		panic(fmt.Sprintf("tensor: BFloat16s called on %s tensor", t.dtype))
	}
	return data
}

// Float32s returns a float32 copy of the elements in row-major order.
func (t *Tensor) Float32s() []float32 {
	out := make([]float32, t.NumElements())
	switch data := t.data.(type) {
	case []hwy.BFloat16:
		hwy.WidenBFloat16(out, data)
	case []hwy.Float16:
		for i, v := range data {
			out[i] = hwy.Float16ToFloat32(v)
		}
	case []float32:
		copy(out, data)
	case []float64:
		for i, v := range data {
			out[i] = float32(v)
		}
	}
	return out
}

func (t *Tensor) String() string {
	dims := lo.Map(t.shape, func(d int, _ int) string { return fmt.Sprint(d) })
	return fmt.Sprintf("%s[%s]", t.dtype, strings.Join(dims, "x"))
}
