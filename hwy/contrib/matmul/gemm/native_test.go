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
	"math"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-bf16gemm/hwy"
	"github.com/ajroetker/go-bf16gemm/hwy/tensor"
)

func makeView(rows, cols int, values ...float32) View {
	if len(values) != rows*cols {
		panic("makeView: wrong number of values")
	}
	data := make([]hwy.BFloat16, rows*cols)
	hwy.NarrowBFloat16(data, values)
	return View{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

func viewValues(v View) []float32 {
	out := make([]float32, 0, v.Rows*v.Cols)
	for i := range v.Rows {
		for _, e := range v.Row(i) {
			out = append(out, e.Float32())
		}
	}
	return out
}

func newTestNative(t *testing.T) *Native {
	t.Helper()
	n, err := NewNative(DefaultConfig())
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	return n
}

func TestScaledMatMul(t *testing.T) {
	n := newTestNative(t)
	x := makeView(2, 2, 1, 2, 3, 4)
	w := makeView(2, 2, 5, 6, 7, 8)

	tests := []struct {
		name        string
		alpha, beta float32
		prev        []float32
		want        []float32
	}{
		{"plain", 1, 0, []float32{9, 9, 9, 9}, []float32{19, 22, 43, 50}},
		{"alpha", 0.5, 0, []float32{9, 9, 9, 9}, []float32{9.5, 11, 21.5, 25}},
		{"accumulate", 1, 1, []float32{1, 1, 2, 2}, []float32{20, 23, 45, 52}},
		{"scaled", 0.5, 2, []float32{1, 1, 2, 2}, []float32{11.5, 13, 25.5, 29}},
		{"alpha zero", 0, 3, []float32{1, 2, 3, 4}, []float32{3, 6, 9, 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := makeView(2, 2, tt.prev...)
			if err := n.ScaledMatMul(x, w, y, tt.alpha, tt.beta, nil, nil, nil, DefaultAttr()); err != nil {
				t.Fatalf("ScaledMatMul: %v", err)
			}
			if diff := cmp.Diff(tt.want, viewValues(y)); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScaledMatMulBetaZeroIgnoresOutput(t *testing.T) {
	n := newTestNative(t)
	x := makeView(1, 2, 1, 2)
	w := makeView(2, 1, 3, 4)
	nan := float32(math.NaN())
	y := makeView(1, 1, nan)

	if err := n.ScaledMatMul(x, w, y, 1, 0, nil, nil, nil, DefaultAttr()); err != nil {
		t.Fatalf("ScaledMatMul: %v", err)
	}
	if got := y.Data[0].Float32(); got != 11 {
		t.Errorf("y = %v, want 11 (previous NaN must not be read)", got)
	}
}

func TestScaledMatMulScales(t *testing.T) {
	n := newTestNative(t)
	x := makeView(2, 2, 1, 2, 3, 4)
	eye := makeView(2, 2, 1, 0, 0, 1)

	y := makeView(2, 2, 0, 0, 0, 0)
	err := n.ScaledMatMul(x, eye, y, 1, 0, Scale{2}, Scale{1, 3}, Scale{0.5}, DefaultAttr())
	if err != nil {
		t.Fatalf("ScaledMatMul: %v", err)
	}
	if diff := cmp.Diff([]float32{1, 6, 3, 12}, viewValues(y)); diff != "" {
		t.Errorf("per-column scales (-want +got):\n%s", diff)
	}

	y = makeView(2, 2, 0, 0, 0, 0)
	if err := n.ScaledMatMul(x, eye, y, 1, 0, nil, Scale{4}, nil, DefaultAttr()); err != nil {
		t.Fatalf("ScaledMatMul: %v", err)
	}
	if diff := cmp.Diff([]float32{4, 8, 12, 16}, viewValues(y)); diff != "" {
		t.Errorf("scalar weight scale (-want +got):\n%s", diff)
	}
}

func TestScaledMatMulBadScales(t *testing.T) {
	n := newTestNative(t)
	x := makeView(1, 2, 1, 2)
	w := makeView(2, 3, 1, 0, 0, 0, 1, 0)
	y := makeView(1, 3, 0, 0, 0)

	tests := []struct {
		name             string
		src, weight, dst Scale
	}{
		{"src", Scale{1, 2}, nil, nil},
		{"weight", nil, Scale{1, 2}, nil},
		{"dst", nil, nil, Scale{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := n.ScaledMatMul(x, w, y, 1, 0, tt.src, tt.weight, tt.dst, DefaultAttr()); err == nil {
				t.Error("expected error for malformed scale table")
			}
		})
	}
}

func TestScaledMatMulActivation(t *testing.T) {
	n := newTestNative(t)
	x := makeView(1, 4, 1, -2, 0, 3)
	eye := makeView(4, 4,
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1)

	tests := []struct {
		act  ActivationType
		want []float32
	}{
		{ActNone, []float32{1, -2, 0, 3}},
		{ActReLU, []float32{1, 0, 0, 3}},
		{ActSiLU, []float32{0.7311, -0.2384, 0, 2.8577}},
		{ActGELU, []float32{0.8413, -0.0455, 0, 2.9960}},
		{ActGELUApprox, []float32{0.8458, -0.0643, 0, 2.9815}},
	}
	for _, tt := range tests {
		t.Run(tt.act.String(), func(t *testing.T) {
			y := makeView(1, 4, 0, 0, 0, 0)
			if err := n.ScaledMatMul(x, eye, y, 1, 0, nil, nil, nil, Attr{Activation: tt.act}); err != nil {
				t.Fatalf("ScaledMatMul: %v", err)
			}
			// bf16 keeps about 3 significant digits.
			if diff := cmp.Diff(tt.want, viewValues(y), cmpopts.EquateApprox(0.01, 0.002)); diff != "" {
				t.Errorf("activation %s (-want +got):\n%s", tt.act, diff)
			}
		})
	}
}

func TestBiasMatMul(t *testing.T) {
	n := newTestNative(t)
	x := makeView(2, 2, 1, 2, 3, 4)
	eye := makeView(2, 2, 1, 0, 0, 1)
	bias := makeView(1, 2, 1, 1)
	y := makeView(2, 2, 0, 0, 0, 0)

	if err := n.BiasMatMul(x, eye, bias, y); err != nil {
		t.Fatalf("BiasMatMul: %v", err)
	}
	if diff := cmp.Diff([]float32{2, 3, 4, 5}, viewValues(y)); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestBiasMatMulRejectsFullBias(t *testing.T) {
	n := newTestNative(t)
	x := makeView(2, 2, 1, 2, 3, 4)
	eye := makeView(2, 2, 1, 0, 0, 1)
	bias := makeView(2, 2, 1, 1, 1, 1)
	y := makeView(2, 2, 7, 7, 7, 7)

	if err := n.BiasMatMul(x, eye, bias, y); err == nil {
		t.Fatal("expected error for 2x2 bias")
	}
	if diff := cmp.Diff([]float32{7, 7, 7, 7}, viewValues(y)); diff != "" {
		t.Errorf("y modified on error (-want +got):\n%s", diff)
	}
}

func TestDirectCopy(t *testing.T) {
	n := newTestNative(t)

	src := makeView(2, 2, 1, 2, 3, 4)
	dst := makeView(2, 2, 0, 0, 0, 0)
	if err := n.DirectCopy(src, dst); err != nil {
		t.Fatalf("DirectCopy: %v", err)
	}
	if diff := cmp.Diff(viewValues(src), viewValues(dst)); diff != "" {
		t.Errorf("same-shape copy (-want +got):\n%s", diff)
	}

	row := makeView(1, 2, 5, 6)
	dst = makeView(3, 2, 0, 0, 0, 0, 0, 0)
	if err := n.DirectCopy(row, dst); err != nil {
		t.Fatalf("DirectCopy broadcast: %v", err)
	}
	if diff := cmp.Diff([]float32{5, 6, 5, 6, 5, 6}, viewValues(dst)); diff != "" {
		t.Errorf("broadcast copy (-want +got):\n%s", diff)
	}

	if err := n.DirectCopy(makeView(2, 3, 0, 0, 0, 0, 0, 0), dst); err == nil {
		t.Error("expected error copying 2x3 into 3x2")
	}
}

func TestDirectCopyStrided(t *testing.T) {
	n := newTestNative(t)
	// A 2x2 window over a 2x3 buffer.
	backing := makeView(2, 3, 1, 2, 99, 3, 4, 99)
	src := View{Rows: 2, Cols: 2, Stride: 3, Data: backing.Data}
	dst := makeView(2, 2, 0, 0, 0, 0)
	if err := n.DirectCopy(src, dst); err != nil {
		t.Fatalf("DirectCopy: %v", err)
	}
	if diff := cmp.Diff([]float32{1, 2, 3, 4}, viewValues(dst)); diff != "" {
		t.Errorf("strided copy (-want +got):\n%s", diff)
	}
}

func TestDimensionErrors(t *testing.T) {
	n := newTestNative(t)
	x := makeView(2, 3, 1, 2, 3, 4, 5, 6)
	w := makeView(2, 2, 1, 0, 0, 1)
	y := makeView(2, 2, 0, 0, 0, 0)

	if err := n.ScaledMatMul(x, w, y, 1, 1, nil, nil, nil, DefaultAttr()); err == nil {
		t.Error("ScaledMatMul: expected inner dimension error")
	}
	if err := n.BiasMatMul(x, w, makeView(1, 2, 0, 0), y); err == nil {
		t.Error("BiasMatMul: expected inner dimension error")
	}

	wOK := makeView(3, 2, 1, 0, 0, 1, 0, 0)
	yBad := makeView(3, 2, 0, 0, 0, 0, 0, 0)
	if err := n.ScaledMatMul(x, wOK, yBad, 1, 1, nil, nil, nil, DefaultAttr()); err == nil {
		t.Error("ScaledMatMul: expected output shape error")
	}
}

func TestZeroSizedDims(t *testing.T) {
	n := newTestNative(t)

	// K == 0: the product is empty, only beta*y remains.
	x := View{Rows: 2, Cols: 0}
	w := View{Rows: 0, Cols: 2}
	y := makeView(2, 2, 1, 2, 3, 4)
	if err := n.ScaledMatMul(x, w, y, 1, 3, nil, nil, nil, DefaultAttr()); err != nil {
		t.Fatalf("ScaledMatMul K=0: %v", err)
	}
	if diff := cmp.Diff([]float32{3, 6, 9, 12}, viewValues(y)); diff != "" {
		t.Errorf("K=0 scaled (-want +got):\n%s", diff)
	}

	y = makeView(2, 2, 9, 9, 9, 9)
	if err := n.BiasMatMul(x, w, makeView(1, 2, 1, -1), y); err != nil {
		t.Fatalf("BiasMatMul K=0: %v", err)
	}
	if diff := cmp.Diff([]float32{1, -1, 1, -1}, viewValues(y)); diff != "" {
		t.Errorf("K=0 bias (-want +got):\n%s", diff)
	}

	// M == 0 is a no-op.
	empty := View{Rows: 0, Cols: 2}
	if err := n.ScaledMatMul(View{Rows: 0, Cols: 2}, makeView(2, 2, 1, 0, 0, 1), empty, 1, 1, nil, nil, nil, DefaultAttr()); err != nil {
		t.Errorf("ScaledMatMul M=0: %v", err)
	}
}

func TestParallelStripsMatchSerial(t *testing.T) {
	serial, err := NewNative(Config{ParallelThreshold: 0, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	parallel, err := NewNative(Config{ParallelThreshold: 1, Workers: 4})
	if err != nil {
		t.Fatal(err)
	}

	m, k, cols := 3*RowsPerStrip+5, 7, 9
	xv := make([]float32, m*k)
	for i := range xv {
		xv[i] = float32(i%13) - 6
	}
	wv := make([]float32, k*cols)
	for i := range wv {
		wv[i] = float32(i%5) * 0.5
	}
	yv := make([]float32, m*cols)
	for i := range yv {
		yv[i] = float32(i % 3)
	}
	x, w := makeView(m, k, xv...), makeView(k, cols, wv...)

	y1, y2 := makeView(m, cols, yv...), makeView(m, cols, yv...)
	if err := serial.ScaledMatMul(x, w, y1, 0.5, 2, nil, nil, nil, DefaultAttr()); err != nil {
		t.Fatal(err)
	}
	if err := parallel.ScaledMatMul(x, w, y2, 0.5, 2, nil, nil, nil, DefaultAttr()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(viewValues(y1), viewValues(y2)); diff != "" {
		t.Errorf("parallel conversion differs from serial (-serial +parallel):\n%s", diff)
	}
}

func TestForEachStrip(t *testing.T) {
	n, err := NewNative(Config{ParallelThreshold: 1, Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	rows := 4*RowsPerStrip + 1

	visits := make([]int32, rows)
	err = n.forEachStrip(rows, 2, func(r0, r1 int) error {
		for i := r0; i < r1; i++ {
			atomic.AddInt32(&visits[i], 1)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("forEachStrip: %v", err)
	}
	for i, v := range visits {
		if v != 1 {
			t.Fatalf("row %d visited %d times, want 1", i, v)
		}
	}

	errStrip := errors.New("strip failed")
	err = n.forEachStrip(rows, 2, func(r0, r1 int) error {
		if r0 == 2*RowsPerStrip {
			return errStrip
		}
		return nil
	})
	if !errors.Is(err, errStrip) {
		t.Errorf("forEachStrip error = %v, want %v", err, errStrip)
	}

	serial, err := NewNative(Config{ParallelThreshold: 0, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	err = serial.forEachStrip(rows, 2, func(r0, r1 int) error {
		if r0 != 0 || r1 != rows {
			t.Errorf("serial strip = [%d, %d), want [0, %d)", r0, r1, rows)
		}
		return errStrip
	})
	if !errors.Is(err, errStrip) {
		t.Errorf("serial forEachStrip error = %v, want %v", err, errStrip)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"serial", Config{ParallelThreshold: 0, Workers: 1}, false},
		{"negative threshold", Config{ParallelThreshold: -1, Workers: 1}, true},
		{"no workers", Config{ParallelThreshold: 10, Workers: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, nerr := NewNative(tt.cfg); (nerr != nil) != tt.wantErr {
				t.Errorf("NewNative() error = %v, wantErr %v", nerr, tt.wantErr)
			}
		})
	}
}

func TestViewOf(t *testing.T) {
	x := tensor.FromFloat32s(tensor.BFloat16, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	v, err := ViewOf(x)
	if err != nil {
		t.Fatalf("ViewOf: %v", err)
	}
	if v.Rows != 2 || v.Cols != 3 || v.Stride != 3 {
		t.Errorf("view = %dx%d stride %d, want 2x3 stride 3", v.Rows, v.Cols, v.Stride)
	}
	if &v.Data[0] != &x.BFloat16s()[0] {
		t.Error("ViewOf copied the tensor storage")
	}
	if v.IsEmpty() {
		t.Error("IsEmpty() = true for a populated view")
	}
	if !(View{}).IsEmpty() {
		t.Error("IsEmpty() = false for the zero View")
	}

	bad := []*tensor.Tensor{
		nil,
		tensor.New(tensor.BFloat16, 6),
		tensor.New(tensor.BFloat16, 1, 2, 3),
		tensor.New(tensor.Float32, 2, 3),
	}
	for i, b := range bad {
		if _, err := ViewOf(b); err == nil {
			t.Errorf("case %d: ViewOf expected error", i)
		}
	}
}
