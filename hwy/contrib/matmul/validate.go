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
	"github.com/ajroetker/go-bf16gemm/hwy/tensor"
	"github.com/ajroetker/go-bf16gemm/internal/metrics"
)

const (
	opMultiply      = "multiply"
	opMultiplyInto  = "multiply_into"
	opFusedMultiply = "fused_multiply"
)

// validate runs the precondition checks in order (ranks, element types,
// hardware) and returns the first failure. bias may be nil.
// Nothing is written to any operand.
func (d *Dispatcher) validate(op string, x, w, bias, y *tensor.Tensor) error {
	err := checkOperands(op, x, w, bias, y)
	if err == nil && !d.probe() {
		err = &UnsupportedHardwareError{Op: op}
	}
	if err != nil {
		metrics.RecordValidationError(op, errorKind(err))
		return err
	}
	return nil
}

func checkOperands(op string, x, w, bias, y *tensor.Tensor) error {
	if err := checkRanks(op, x, w); err != nil {
		return err
	}
	if err := checkMatrix(op, "y", y); err != nil {
		return err
	}
	if bias != nil {
		if err := checkMatrix(op, "bias", bias); err != nil {
			return err
		}
		if rows := bias.Dim(0); rows != 1 && rows != x.Dim(0) {
			return &ShapeError{Op: op, Operand: "bias", Shape: bias.Shape(),
				Reason: "first dimension must be 1 or match the rows of x"}
		}
	}

	for _, o := range []struct {
		name string
		t    *tensor.Tensor
	}{{"x", x}, {"w", w}, {"y", y}, {"bias", bias}} {
		if o.t == nil {
			continue
		}
		if o.t.DType() != tensor.BFloat16 {
			return &DtypeError{Op: op, Operand: o.name, DType: o.t.DType()}
		}
	}
	return nil
}

func checkRanks(op string, x, w *tensor.Tensor) error {
	if err := checkMatrix(op, "x", x); err != nil {
		return err
	}
	return checkMatrix(op, "w", w)
}

func checkMatrix(op, name string, t *tensor.Tensor) error {
	if t == nil {
		return &ShapeError{Op: op, Operand: name, Reason: "tensor is nil"}
	}
	if t.Rank() != 2 {
		return &ShapeError{Op: op, Operand: name, Shape: t.Shape(), Reason: "must be a matrix"}
	}
	return nil
}
