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

package hwy

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

// BFloat16 is the 16-bit brain-float element type: the upper half of an
// IEEE float32 (8-bit exponent, 7-bit mantissa).
type BFloat16 = bfloat16.BFloat16

// Float16 is the IEEE 754 binary16 element type.
type Float16 = float16.Float16

// Float32ToBFloat16 rounds f to the nearest bf16, ties to even.
// NaN stays NaN: the sign is kept and the quiet bit is set, so a payload
// held only in the low mantissa bits cannot collapse to infinity.
func Float32ToBFloat16(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if bits&0x7FFFFFFF > 0x7F800000 {
		return BFloat16((bits >> 16) | 0x0040)
	}
	// Bit 15 is the first dropped bit; adding 0x7FFF plus the lowest kept
	// bit carries into the kept half exactly when rounding up.
	bits += 0x7FFF + ((bits >> 16) & 1)
	return BFloat16(bits >> 16)
}

// BFloat16ToFloat32 widens b to float32. The conversion is exact.
func BFloat16ToFloat32(b BFloat16) float32 {
	return b.Float32()
}

// Float32ToFloat16 rounds f to the nearest fp16 value.
func Float32ToFloat16(f float32) Float16 {
	return float16.Fromfloat32(f)
}

// Float16ToFloat32 widens h to float32. The conversion is exact.
func Float16ToFloat32(h Float16) float32 {
	return h.Float32()
}

// WidenBFloat16 converts src into dst element-wise.
// PRECONDITION: len(dst) >= len(src).
func WidenBFloat16(dst []float32, src []BFloat16) {
	if len(dst) < len(src) {
		panic("hwy: WidenBFloat16 dst slice too short")
	}
	for i, v := range src {
		dst[i] = v.Float32()
	}
}

// NarrowBFloat16 rounds src into dst element-wise.
// PRECONDITION: len(dst) >= len(src).
func NarrowBFloat16(dst []BFloat16, src []float32) {
	if len(dst) < len(src) {
		panic("hwy: NarrowBFloat16 dst slice too short")
	}
	for i, v := range src {
		dst[i] = Float32ToBFloat16(v)
	}
}
