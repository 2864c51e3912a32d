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

import (
	"fmt"

	"github.com/ajroetker/go-bf16gemm/hwy/tensor"
)

// ShapeError reports an operand with the wrong rank or leading dimension.
type ShapeError struct {
	Op      string
	Operand string
	Shape   []int
	Reason  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("matmul: %s: %s %v: %s", e.Op, e.Operand, e.Shape, e.Reason)
}

// DtypeError reports an operand whose element type is not bfloat16.
type DtypeError struct {
	Op      string
	Operand string
	DType   tensor.DType
}

func (e *DtypeError) Error() string {
	return fmt.Sprintf("matmul: %s: %s must be bfloat16, got %s", e.Op, e.Operand, e.DType)
}

// UnsupportedHardwareError is returned when the processor lacks the vector
// extensions the bf16 path needs. There is no slower fallback.
type UnsupportedHardwareError struct {
	Op string
}

func (e *UnsupportedHardwareError) Error() string {
	return fmt.Sprintf("matmul: %s: bf16 path needs AVX512BW, AVX512VL and AVX512DQ (or ARMv8.2 FP16 SIMD)", e.Op)
}

// errorKind is the metrics label for a validation error.
func errorKind(err error) string {
	switch err.(type) {
	case *ShapeError:
		return "shape"
	case *DtypeError:
		return "dtype"
	case *UnsupportedHardwareError:
		return "hardware"
	default:
		return "other"
	}
}
