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

// Package hwy reports the SIMD dispatch level of the running processor and
// gates the bf16 matmul path on the vector extensions it needs.
package hwy

import (
	"os"
	"strconv"
	"sync"
)

// DispatchLevel identifies the widest instruction set selected at init.
type DispatchLevel int

const (
	DispatchScalar DispatchLevel = iota
	DispatchSSE2
	DispatchAVX2
	DispatchAVX512
	DispatchNEON
	DispatchSVE
)

func (l DispatchLevel) String() string {
	switch l {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	case DispatchNEON:
		return "neon"
	case DispatchSVE:
		return "sve"
	default:
		return "unknown"
	}
}

var (
	currentLevel DispatchLevel
	currentWidth int
	currentName  string
)

// CurrentLevel returns the dispatch level chosen for this process.
func CurrentLevel() DispatchLevel { return currentLevel }

// CurrentWidth returns the vector width in bytes for the current level.
func CurrentWidth() int { return currentWidth }

// CurrentName returns a short name for the current level.
func CurrentName() string { return currentName }

// NoSimdEnv reports whether HWY_NO_SIMD is set to a true value.
// Any non-empty value that strconv.ParseBool cannot parse also counts as set.
func NoSimdEnv() bool {
	v, ok := os.LookupEnv("HWY_NO_SIMD")
	if !ok || v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

func setScalarMode() {
	currentLevel = DispatchScalar
	currentWidth = 16 // Use 16-byte vectors even in scalar mode for consistency
	currentName = "scalar"
}

// bf16MatMulProbe is evaluated at most once. Concurrent first callers block
// on the same computation; the result never changes afterwards.
var bf16MatMulProbe = sync.OnceValue(func() bool {
	if NoSimdEnv() {
		return false
	}
	return hasBF16MatMulFeatures()
})

// HasBF16MatMul reports whether the processor has the vector extensions the
// bf16 matmul path requires:
//   - amd64: AVX512BW, AVX512VL and AVX512DQ
//   - arm64: ASIMD with half-precision arithmetic (ARMv8.2-A)
//
// It always returns false when HWY_NO_SIMD is set. The probe runs once per
// process and the result is cached.
func HasBF16MatMul() bool {
	return bf16MatMulProbe()
}
