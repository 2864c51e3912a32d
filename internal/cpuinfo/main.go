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

// Package main provides a diagnostic tool to print the CPU features that gate
// the bf16 matmul path and optionally run a small multiply through it.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/cpu"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ajroetker/go-bf16gemm/hwy"
	"github.com/ajroetker/go-bf16gemm/hwy/contrib/matmul"
	"github.com/ajroetker/go-bf16gemm/hwy/tensor"
	"github.com/ajroetker/go-bf16gemm/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type feature struct {
	name     string
	enabled  bool
	note     string
	required bool
}

func cpuFeatures(goarch string) []feature {
	switch goarch {
	case "amd64":
		return []feature{
			{"AVX512BW", cpu.X86.HasAVX512BW, "byte/word ops", true},
			{"AVX512VL", cpu.X86.HasAVX512VL, "128/256-bit encodings", true},
			{"AVX512DQ", cpu.X86.HasAVX512DQ, "dword/qword ops", true},
			{"AVX512F", cpu.X86.HasAVX512F, "foundation", false},
			{"AVX512BF16", cpu.X86.HasAVX512BF16, "VDPBF16PS", false},
			{"AVX2", cpu.X86.HasAVX2, "", false},
			{"FMA", cpu.X86.HasFMA, "", false},
		}
	case "arm64":
		return []feature{
			{"ASIMD", cpu.ARM64.HasASIMD, "NEON baseline", true},
			{"FPHP", cpu.ARM64.HasFPHP, "FP16 scalar, ARMv8.2-A", true},
			{"ASIMDHP", cpu.ARM64.HasASIMDHP, "FP16 NEON, ARMv8.2-A", true},
			{"ASIMDFHM", cpu.ARM64.HasASIMDFHM, "FP16 FMA, ARMv8.4-A", false},
			{"SVE", cpu.ARM64.HasSVE, "Scalable Vector Extension", false},
		}
	default:
		return nil
	}
}

func printReport(w io.Writer, goarch string, features []feature) {
	title := cases.Title(language.English)

	fmt.Fprintf(w, "GOOS: %s\n", runtime.GOOS)
	fmt.Fprintf(w, "GOARCH: %s\n", goarch)
	fmt.Fprintf(w, "NumCPU: %d\n", runtime.NumCPU())
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Highway dispatch level: %s\n", hwy.CurrentLevel())
	fmt.Fprintf(w, "Highway dispatch width: %d bytes\n", hwy.CurrentWidth())
	fmt.Fprintln(w)

	fmt.Fprintf(w, "=== %s ===\n", title.String("cpu features"))
	for _, f := range features {
		marker := ""
		if f.required {
			marker = " [required]"
		}
		if f.note != "" {
			fmt.Fprintf(w, "  Has%-11s %v (%s)%s\n", f.name+":", f.enabled, f.note, marker)
		} else {
			fmt.Fprintf(w, "  Has%-11s %v%s\n", f.name+":", f.enabled, marker)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "=== %s ===\n", title.String("bf16 matmul gate"))
	fmt.Fprintf(w, "  HWY_NO_SIMD set: %v\n", hwy.NoSimdEnv())
	fmt.Fprintf(w, "  HasBF16MatMul:   %v\n", hwy.HasBF16MatMul())
	fmt.Fprintf(w, "  HasAVX512BF16:   %v\n", hwy.HasAVX512BF16())
	fmt.Fprintf(w, "  HasARMBF16:      %v\n", hwy.HasARMBF16())
	if missing := missingFeatures(features); len(missing) > 0 {
		fmt.Fprintf(w, "  Missing:         %s\n", strings.Join(missing, ", "))
	}
}

func missingFeatures(features []feature) []string {
	missing := lo.Filter(features, func(f feature, _ int) bool { return f.required && !f.enabled })
	return lo.Map(missing, func(f feature, _ int) string { return f.name })
}

// runSmoke multiplies [[1,2],[3,4]] by the identity, with and without a
// broadcast bias row.
func runSmoke(w io.Writer, d *matmul.Dispatcher) error {
	x := tensor.FromFloat32s(tensor.BFloat16, []float32{1, 2, 3, 4}, 2, 2)
	one := hwy.Float32ToBFloat16(1)
	eye := tensor.Wrap([]hwy.BFloat16{one, 0, 0, one}, 2, 2)
	bias := tensor.FromFloat32s(tensor.BFloat16, []float32{1, 1}, 1, 2)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Smoke Test ===")

	y, err := d.Multiply(x, eye)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  x @ I:        %v\n", rows(y))
	logger.Log.Debug().Str("shape", y.String()).Msg("smoke multiply done")

	if _, err := d.FusedMultiply(x, eye, bias, y, matmul.DefaultOptions()); err != nil {
		return err
	}
	fmt.Fprintf(w, "  x @ I + bias: %v\n", rows(y))

	opts := matmul.DefaultOptions()
	opts.Alpha, opts.Beta = 0.5, 2
	if _, err := d.FusedMultiply(x, eye, bias, y, opts); err != nil {
		return err
	}
	fmt.Fprintf(w, "  0.5*(x @ I) + 2*bias: %v\n", rows(y))
	return nil
}

func rows(t *tensor.Tensor) [][]float32 {
	values := t.Float32s()
	cols := t.Dim(1)
	out := make([][]float32, t.Dim(0))
	for i := range out {
		out[i] = values[i*cols : (i+1)*cols]
	}
	return out
}

// newRootCmd builds the command. Every flag can also be set through a
// BF16GEMM_-prefixed environment variable, e.g. BF16GEMM_LOG_LEVEL=debug.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BF16GEMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "cpuinfo",
		Short:         "Print the CPU features that gate the bf16 matmul path",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetupWriter(cmd.ErrOrStderr(), v.GetString("log-level"), v.GetString("log-format"))
			out := cmd.OutOrStdout()

			features := cpuFeatures(runtime.GOARCH)
			printReport(out, runtime.GOARCH, features)
			if !v.GetBool("smoke") {
				return nil
			}

			opts := []matmul.DispatcherOption{matmul.WithLogger(logger.Log)}
			if v.GetBool("force") {
				logger.Log.Warn().Strs("missing", missingFeatures(features)).Msg("bypassing the bf16 capability gate")
				opts = append(opts, matmul.WithCapabilityProbe(func() bool { return true }))
			}
			if err := runSmoke(out, matmul.New(opts...)); err != nil {
				logger.Log.Error().Err(err).Msg("smoke test failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	cmd.Flags().String("log-format", "console", "log format: console or json")
	cmd.Flags().Bool("smoke", false, "run a 2x2 multiply through the dispatcher")
	cmd.Flags().Bool("force", false, "run the smoke test even if the capability gate is negative")
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}
