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
	"github.com/ajroetker/go-bf16gemm/hwy/contrib/matmul/gemm"
)

// Options holds the coefficients of Y = Alpha*(X@W) + Beta*Bias and the
// post-op attributes handed to the backend's scaled matmul.
type Options struct {
	// Alpha scales the product X@W. Default 1.
	Alpha float32
	// Beta scales the bias (or previous output contents). Default 1.
	// Ignored when no bias is given.
	Beta float32
	// Attr is forwarded to ScaledMatMul. The fused bias path does not
	// apply it. Default: no post-ops.
	Attr gemm.Attr
}

// DefaultOptions returns Alpha=1, Beta=1 and an empty attribute set.
func DefaultOptions() Options {
	return Options{Alpha: 1, Beta: 1, Attr: gemm.DefaultAttr()}
}
