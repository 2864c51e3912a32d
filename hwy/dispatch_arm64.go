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

//go:build arm64

package hwy

import "golang.org/x/sys/cpu"

func init() {
	if NoSimdEnv() {
		setScalarMode()
		return
	}

	detectCPUFeatures()
}

func detectCPUFeatures() {
	if cpu.ARM64.HasSVE {
		currentLevel = DispatchSVE
		currentName = "sve"
	} else {
		// ASIMD is mandatory on arm64
		currentLevel = DispatchNEON
		currentName = "neon"
	}
	currentWidth = 16
}

func hasBF16MatMulFeatures() bool {
	return cpu.ARM64.HasASIMD && cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP
}

// HasAVX512BF16 returns false on arm64.
func HasAVX512BF16() bool {
	return false
}

// HasARMBF16 reports half-precision SIMD arithmetic (ARMv8.2-A), the
// extension the bf16 path widens through.
func HasARMBF16() bool {
	return cpu.ARM64.HasASIMDHP
}
