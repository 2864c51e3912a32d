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

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ajroetker/go-bf16gemm/hwy"
)

// RowsPerStrip is the number of rows each worker converts at a time when
// widening or narrowing in parallel.
const RowsPerStrip = 64

// Config tunes the native backend.
type Config struct {
	// ParallelThreshold is the element count at which bf16 <-> float32
	// conversion is split into row strips across workers. Zero keeps
	// conversion on the calling goroutine.
	ParallelThreshold int

	// Workers bounds the number of conversion goroutines.
	Workers int
}

// DefaultConfig returns the configuration used by the default dispatcher.
func DefaultConfig() Config {
	return Config{
		ParallelThreshold: 256 * 256,
		Workers:           runtime.GOMAXPROCS(0),
	}
}

// Validate checks that c is usable.
func (c Config) Validate() error {
	if c.ParallelThreshold < 0 {
		return errors.Errorf("gemm: invalid parallel threshold %d (must be non-negative)", c.ParallelThreshold)
	}
	if c.Workers < 1 {
		return errors.Errorf("gemm: invalid workers %d (must be positive)", c.Workers)
	}
	return nil
}

// Native is a Backend that widens bf16 operands to float32, multiplies with
// gonum's blas32 GEMM and rounds the result back to bf16. Accumulation is
// done entirely in float32.
type Native struct {
	cfg Config
}

var _ Backend = (*Native)(nil)

// NewNative returns a native backend configured by cfg.
func NewNative(cfg Config) (*Native, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Native{cfg: cfg}, nil
}

// ScaledMatMul implements Backend.
func (n *Native) ScaledMatMul(x, w, y View, alpha, beta float32, srcScale, weightScale, dstScale Scale, attr Attr) error {
	m, k, cols, err := checkMatMulDims(x, w, y)
	if err != nil {
		return err
	}
	if err := checkScales(srcScale, weightScale, dstScale, cols); err != nil {
		return err
	}
	if m == 0 || cols == 0 {
		return nil
	}

	a, err := n.widen(x)
	if err != nil {
		return err
	}
	b, err := n.widen(w)
	if err != nil {
		return err
	}
	c := make([]float32, m*cols)
	if beta != 0 {
		if err := n.widenInto(c, y); err != nil {
			return err
		}
	}

	alpha *= scalarOf(srcScale)
	switch len(weightScale) {
	case 0:
	case 1:
		alpha *= weightScale[0]
	default:
		// Per output column: fold into the widened copy of w.
		for p := range k {
			row := b[p*cols : (p+1)*cols]
			for j, s := range weightScale {
				row[j] *= s
			}
		}
	}

	sgemm(alpha, a, b, beta, c, m, cols, k)

	d := scalarOf(dstScale)
	for i := range m {
		row := c[i*cols : (i+1)*cols]
		if d != 1 {
			for j := range row {
				row[j] *= d
			}
		}
		attr.apply(row)
	}

	return n.narrowInto(y, c)
}

// BiasMatMul implements Backend.
func (n *Native) BiasMatMul(x, w, bias, y View) error {
	m, k, cols, err := checkMatMulDims(x, w, y)
	if err != nil {
		return err
	}
	if bias.Rows != 1 || bias.Cols != cols {
		return errors.Errorf("gemm: fused bias must be 1x%d, got %dx%d", cols, bias.Rows, bias.Cols)
	}
	if m == 0 || cols == 0 {
		return nil
	}

	a, err := n.widen(x)
	if err != nil {
		return err
	}
	b, err := n.widen(w)
	if err != nil {
		return err
	}
	c := make([]float32, m*cols)
	hwy.WidenBFloat16(c[:cols], bias.Row(0))
	for i := 1; i < m; i++ {
		copy(c[i*cols:(i+1)*cols], c[:cols])
	}

	sgemm(1, a, b, 1, c, m, cols, k)

	return n.narrowInto(y, c)
}

// DirectCopy implements Backend. A single-row src is replicated into every
// row of dst; otherwise src and dst must have the same shape.
func (n *Native) DirectCopy(src, dst View) error {
	switch {
	case src.sameShape(dst):
		for i := range dst.Rows {
			copy(dst.Row(i), src.Row(i))
		}
	case src.Rows == 1 && src.Cols == dst.Cols:
		row := src.Row(0)
		for i := range dst.Rows {
			copy(dst.Row(i), row)
		}
	default:
		return errors.Errorf("gemm: cannot copy %dx%d into %dx%d", src.Rows, src.Cols, dst.Rows, dst.Cols)
	}
	return nil
}

func checkMatMulDims(x, w, y View) (m, k, n int, err error) {
	if x.Cols != w.Rows {
		return 0, 0, 0, errors.Errorf("gemm: inner dimensions differ: x is %dx%d, w is %dx%d", x.Rows, x.Cols, w.Rows, w.Cols)
	}
	if y.Rows != x.Rows || y.Cols != w.Cols {
		return 0, 0, 0, errors.Errorf("gemm: output is %dx%d, want %dx%d", y.Rows, y.Cols, x.Rows, w.Cols)
	}
	return x.Rows, x.Cols, w.Cols, nil
}

func checkScales(src, weight, dst Scale, cols int) error {
	if len(src) > 1 {
		return errors.Errorf("gemm: source scale must have at most 1 entry, got %d", len(src))
	}
	if len(weight) > 1 && len(weight) != cols {
		return errors.Errorf("gemm: weight scale must have 0, 1 or %d entries, got %d", cols, len(weight))
	}
	if len(dst) > 1 {
		return errors.Errorf("gemm: destination scale must have at most 1 entry, got %d", len(dst))
	}
	return nil
}

func scalarOf(s Scale) float32 {
	if len(s) == 0 {
		return 1
	}
	return s[0]
}

// sgemm computes c = alpha*a*b + beta*c on dense row-major float32 buffers.
func sgemm(alpha float32, a, b []float32, beta float32, c []float32, m, n, k int) {
	if k == 0 {
		// gonum rejects a zero leading dimension; the product is empty.
		if beta != 1 {
			for i := range c {
				c[i] *= beta
			}
		}
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, alpha,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}

func (n *Native) widen(v View) ([]float32, error) {
	out := make([]float32, v.Rows*v.Cols)
	if err := n.widenInto(out, v); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Native) widenInto(dst []float32, v View) error {
	return n.forEachStrip(v.Rows, v.Cols, func(r0, r1 int) error {
		for i := r0; i < r1; i++ {
			hwy.WidenBFloat16(dst[i*v.Cols:(i+1)*v.Cols], v.Row(i))
		}
		return nil
	})
}

func (n *Native) narrowInto(v View, src []float32) error {
	return n.forEachStrip(v.Rows, v.Cols, func(r0, r1 int) error {
		for i := r0; i < r1; i++ {
			hwy.NarrowBFloat16(v.Row(i), src[i*v.Cols:(i+1)*v.Cols])
		}
		return nil
	})
}

// forEachStrip runs fn over [0, rows) in RowsPerStrip chunks, in parallel
// on at most cfg.Workers goroutines once rows*cols reaches the configured
// threshold. It returns the first error from fn.
func (n *Native) forEachStrip(rows, cols int, fn func(r0, r1 int) error) error {
	if n.cfg.ParallelThreshold == 0 || rows*cols < n.cfg.ParallelThreshold ||
		rows <= RowsPerStrip || n.cfg.Workers == 1 {
		return fn(0, rows)
	}

	var g errgroup.Group
	g.SetLimit(n.cfg.Workers)
	for r0 := 0; r0 < rows; r0 += RowsPerStrip {
		r1 := min(r0+RowsPerStrip, rows)
		g.Go(func() error {
			return fn(r0, r1)
		})
	}
	return g.Wait()
}
