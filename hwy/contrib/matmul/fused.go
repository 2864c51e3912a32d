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

// Package matmul dispatches bf16 matrix multiplications of the form
//
//	Y = alpha * (X @ W) + beta * Bias
//
// to a gemm.Backend. Each call validates its operands, picks one of three
// fusion plans from the bias shape and the coefficients, and issues one or
// two backend calls. Validation failures are returned before the backend
// is reached, so Y is never partially written.
//
// Usage:
//
//	y, err := matmul.Multiply(x, w)
//
//	// Higher-level fused ops (linear, addmm) pass a bias and coefficients:
//	opts := matmul.DefaultOptions()
//	opts.Alpha = 0.5
//	_, err = matmul.FusedMultiply(x, w, bias, y, opts)
package matmul

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ajroetker/go-bf16gemm/hwy"
	"github.com/ajroetker/go-bf16gemm/hwy/contrib/matmul/gemm"
	"github.com/ajroetker/go-bf16gemm/hwy/tensor"
	"github.com/ajroetker/go-bf16gemm/internal/metrics"
)

// Dispatcher validates, plans and invokes bf16 matmuls against a backend.
// It holds no mutable state and is safe for concurrent use on disjoint
// tensors.
type Dispatcher struct {
	backend gemm.Backend
	probe   func() bool
	log     zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBackend sets the compute backend. Default: gemm.Native with
// gemm.DefaultConfig.
func WithBackend(b gemm.Backend) DispatcherOption {
	return func(d *Dispatcher) { d.backend = b }
}

// WithCapabilityProbe replaces the hardware check. Default: hwy.HasBF16MatMul.
func WithCapabilityProbe(probe func() bool) DispatcherOption {
	return func(d *Dispatcher) { d.probe = probe }
}

// WithLogger sets the logger used for per-call debug output. Default: no-op.
func WithLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// New returns a Dispatcher configured by opts.
func New(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		probe: hwy.HasBF16MatMul,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.backend == nil {
		d.backend = nativeBackend()
	}
	return d
}

func nativeBackend() gemm.Backend {
	b, err := gemm.NewNative(gemm.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return b
}

var defaultDispatcher = New()

// Multiply computes x @ w into a newly allocated tensor of shape
// (rows(x), cols(w)) and the element type of x.
func Multiply(x, w *tensor.Tensor) (*tensor.Tensor, error) {
	return defaultDispatcher.Multiply(x, w)
}

// MultiplyInto computes x @ w into y and returns y.
func MultiplyInto(x, w, y *tensor.Tensor) (*tensor.Tensor, error) {
	return defaultDispatcher.MultiplyInto(x, w, y)
}

// FusedMultiply computes y = opts.Alpha*(x @ w) + opts.Beta*bias and
// returns y. bias may be nil.
func FusedMultiply(x, w, bias, y *tensor.Tensor, opts Options) (*tensor.Tensor, error) {
	return defaultDispatcher.FusedMultiply(x, w, bias, y, opts)
}

// Multiply computes x @ w into a newly allocated tensor of shape
// (rows(x), cols(w)) and the element type of x. Ownership of the result
// passes to the caller.
func (d *Dispatcher) Multiply(x, w *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkRanks(opMultiply, x, w); err != nil {
		metrics.RecordValidationError(opMultiply, errorKind(err))
		return nil, err
	}
	y := tensor.New(x.DType(), x.Dim(0), w.Dim(1))
	return d.multiplyInto(opMultiply, x, w, y)
}

// MultiplyInto computes x @ w into y and returns y. y must already have
// shape (rows(x), cols(w)); its previous contents are overwritten.
func (d *Dispatcher) MultiplyInto(x, w, y *tensor.Tensor) (*tensor.Tensor, error) {
	return d.multiplyInto(opMultiplyInto, x, w, y)
}

func (d *Dispatcher) multiplyInto(op string, x, w, y *tensor.Tensor) (*tensor.Tensor, error) {
	if err := d.validate(op, x, w, nil, y); err != nil {
		return nil, err
	}
	xv, wv, bv, yv, err := viewsOf(x, w, nil, y)
	if err != nil {
		return nil, err
	}
	if err := d.matmulCommon(xv, wv, bv, yv, DefaultOptions()); err != nil {
		return nil, err
	}
	return y, nil
}

// FusedMultiply computes y = opts.Alpha*(x @ w) + opts.Beta*bias and
// returns y. It is the entry point for fused ops built on top of this
// package.
//
// bias may be nil, in which case y = opts.Alpha*(x @ w) and opts.Beta is
// ignored. A present bias has either one row, broadcast over every output
// row, or rows(x) rows.
func (d *Dispatcher) FusedMultiply(x, w, bias, y *tensor.Tensor, opts Options) (*tensor.Tensor, error) {
	if err := d.validate(opFusedMultiply, x, w, bias, y); err != nil {
		return nil, err
	}
	xv, wv, bv, yv, err := viewsOf(x, w, bias, y)
	if err != nil {
		return nil, err
	}
	if err := d.matmulCommon(xv, wv, bv, yv, opts); err != nil {
		return nil, err
	}
	return y, nil
}

// viewsOf wraps validated tensors as backend views. A nil bias becomes the
// empty View.
func viewsOf(x, w, bias, y *tensor.Tensor) (xv, wv, bv, yv gemm.View, err error) {
	if xv, err = gemm.ViewOf(x); err != nil {
		return
	}
	if wv, err = gemm.ViewOf(w); err != nil {
		return
	}
	if yv, err = gemm.ViewOf(y); err != nil {
		return
	}
	if bias != nil {
		bv, err = gemm.ViewOf(bias)
	}
	return
}

// matmulCommon plans and runs one fused matmul on backend views.
func (d *Dispatcher) matmulCommon(x, w, bias, y gemm.View, opts Options) error {
	plan := planFusion(bias, opts)
	d.log.Debug().
		Stringer("plan", plan).
		Int("m", x.Rows).
		Int("k", x.Cols).
		Int("n", w.Cols).
		Float32("alpha", opts.Alpha).
		Float32("beta", opts.Beta).
		Msg("bf16 matmul")
	metrics.RecordPlan(plan.String())

	start := time.Now()
	err := d.invoke(plan, x, w, bias, y, opts)
	metrics.RecordKernelDuration(plan.String(), time.Since(start))
	return err
}

// invoke issues the backend calls for plan. Backend errors are returned
// as is.
func (d *Dispatcher) invoke(plan Plan, x, w, bias, y gemm.View, opts Options) error {
	switch plan {
	case PlanFusedBias:
		return d.backend.BiasMatMul(x, w, bias, y)
	case PlanCopyThenScaled:
		if err := d.backend.DirectCopy(bias, y); err != nil {
			return err
		}
		return d.backend.ScaledMatMul(x, w, y, opts.Alpha, opts.Beta, nil, nil, nil, opts.Attr)
	default:
		// No bias: nothing to accumulate, so beta does not apply.
		return d.backend.ScaledMatMul(x, w, y, opts.Alpha, 0, nil, nil, nil, opts.Attr)
	}
}
