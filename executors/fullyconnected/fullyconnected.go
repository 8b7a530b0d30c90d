// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fullyconnected selects and builds executors for the FullyConnected
// operation: dst[M,N] = src0[M,K] x weights[K,N] (+ bias[N]) with fused
// post-ops.
//
// Two strategies are registered, most-preferred first:
//
//   - "fc_blocked": float32-only cache-blocked kernel. It asks for weights
//     repacked into the blocked16 layout via a fallback Config rewrite, and
//     only accepts shapes whose K and N are multiples of the block size. Its
//     factory reserves scratch memory for the packed weights and fails when
//     the context budget is exhausted, which makes selection fall through to
//     the reference kernel.
//   - "fc_ref": shape-agnostic reference kernel for float32, float64,
//     float16 and bfloat16 over plain layouts.
package fullyconnected

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/nnexec/executors"
)

// Attrs are the FullyConnected attributes judged during selection.
type Attrs struct {
	// WithBias adds bias[N] to every output row.
	WithBias bool
}

// Config is the FullyConnected candidate configuration.
type Config = executors.Config[Attrs]

var refCapabilities = executors.Capabilities{
	Operations: map[executors.OpType]bool{executors.OpTypeFullyConnected: true},
	DTypes: map[dtypes.DType]bool{
		dtypes.Float32:  true,
		dtypes.Float64:  true,
		dtypes.Float16:  true,
		dtypes.BFloat16: true,
	},
}

var registry = executors.NewRegistry[Attrs](executors.OpTypeFullyConnected)

func init() {
	registry.Register(blockedImplementation())
	registry.Register(refImplementation())
}

// Registry returns the priority-ordered FullyConnected implementations.
func Registry() *executors.Registry[Attrs] { return registry }

// Select picks and builds an executor for the given configuration and
// runtime memory. It returns the executor and the effective Config (which
// differs from config when the winning implementation asked for a fallback
// rewrite, e.g. blocked weights).
func Select(config Config, memory executors.MemoryDescArgs, ctx *executors.Context) (executors.Executor, Config, error) {
	return registry.Select(config, memory, ctx)
}

// configDType returns the data type the config computes in, taken from src0.
// Supports closures only look at dtypes and layouts here, never at the
// dimensions.
func configDType(config Config) dtypes.DType {
	return config.Args[executors.ArgSrc0].Shape.DType
}

// sameDType returns whether src0, weights and dst agree on the data type.
func sameDType(config Config) bool {
	dtype := configDType(config)
	for _, role := range []executors.ArgRole{executors.ArgWeights, executors.ArgDst} {
		if config.Args[role].Shape.DType != dtype {
			return false
		}
	}
	if config.Attrs.WithBias && config.Args[executors.ArgBias].Shape.DType != dtype {
		return false
	}
	return true
}

// shapesConsistent validates the runtime dimensions: src0[M,K], weights[K,N],
// dst[M,N] and, when a bias operand is present, bias[N].
func shapesConsistent(memory executors.MemoryDescArgs) bool {
	src := memory[executors.ArgSrc0].Shape
	weights := memory[executors.ArgWeights].Shape
	dst := memory[executors.ArgDst].Shape
	if src.Rank() != 2 || weights.Rank() != 2 || dst.Rank() != 2 {
		return false
	}
	m, k := src.Dimensions[0], src.Dimensions[1]
	n := weights.Dimensions[1]
	if weights.Dimensions[0] != k || dst.Dimensions[0] != m || dst.Dimensions[1] != n {
		return false
	}
	if bias, found := memory[executors.ArgBias]; found {
		if bias.Shape.Rank() != 1 || bias.Shape.Dimensions[0] != n {
			return false
		}
	}
	return true
}
