// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fullyconnected

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/gomlx/nnexec/executors"
)

// refImplementation is the shape-agnostic reference strategy: a plain triple
// loop over any consistent shapes, for all supported float types.
func refImplementation() *executors.Implementation[Attrs] {
	return executors.NewImplementation("fc_ref", executors.BackendKindReference,
		executors.OpTypeFullyConnected, executors.ShapeAgnostic,
		executors.Functions[Attrs]{
			Supports:      refSupports,
			AcceptsShapes: shapesConsistent,
			Create:        newRefExecutor,
		})
}

func refSupports(config Config) bool {
	if !refCapabilities.Supports(executors.OpTypeFullyConnected, configDType(config)) {
		return false
	}
	if !sameDType(config) {
		return false
	}
	// The reference loop reads dense row-major weights only.
	for _, arg := range config.Args {
		if arg.Layout == executors.LayoutBlocked16 {
			return false
		}
	}
	return true
}

// refExecutor computes dst = src0 x weights (+ bias) one output element at a
// time, accumulating in float64 so the half-precision paths stay accurate.
type refExecutor struct {
	attrs   Attrs
	postOps executors.PostOps
	dtype   dtypes.DType
}

func newRefExecutor(attrs Attrs, postOps executors.PostOps, memory executors.MemoryDescArgs, ctx *executors.Context) (executors.Executor, error) {
	return &refExecutor{
		attrs:   attrs,
		postOps: postOps,
		dtype:   memory[executors.ArgSrc0].Shape.DType,
	}, nil
}

func (e *refExecutor) Execute(args executors.TensorArgs) error {
	switch e.dtype {
	case dtypes.Float32:
		return refGemmPOD[float32](e, args)
	case dtypes.Float64:
		return refGemmPOD[float64](e, args)
	case dtypes.Float16:
		return refGemm[float16.Float16](e, args,
			func(v float16.Float16) float64 { return float64(v.Float32()) },
			func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) })
	case dtypes.BFloat16:
		return refGemm[bfloat16.BFloat16](e, args,
			func(v bfloat16.BFloat16) float64 { return float64(v.Float32()) },
			func(v float64) bfloat16.BFloat16 { return bfloat16.FromFloat32(float32(v)) })
	default:
		return errors.Errorf("fc_ref executor does not support dtype %s", e.dtype)
	}
}

// refGemmPOD is the triple loop for the float types Go supports natively,
// accumulating in the storage type itself.
func refGemmPOD[T constraints.Float](e *refExecutor, args executors.TensorArgs) error {
	src, weights, dst, bias, err := gemmOperands[T](e.attrs, args)
	if err != nil {
		return err
	}
	m := args[executors.ArgSrc0].Shape.Dimensions[0]
	k := args[executors.ArgSrc0].Shape.Dimensions[1]
	n := args[executors.ArgWeights].Shape.Dimensions[1]
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum T
			for p := 0; p < k; p++ {
				sum += src[i*k+p] * weights[p*n+j]
			}
			if bias != nil {
				sum += bias[j]
			}
			dst[i*n+j] = T(e.postOps.Apply(float64(sum)))
		}
	}
	return nil
}

// refGemm is the dtype-generic triple loop for the half-precision types.
// toF64/fromF64 bridge the storage type and the float64 accumulator.
func refGemm[T any](e *refExecutor, args executors.TensorArgs, toF64 func(T) float64, fromF64 func(float64) T) error {
	src, weights, dst, bias, err := gemmOperands[T](e.attrs, args)
	if err != nil {
		return err
	}
	m := args[executors.ArgSrc0].Shape.Dimensions[0]
	k := args[executors.ArgSrc0].Shape.Dimensions[1]
	n := args[executors.ArgWeights].Shape.Dimensions[1]
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for p := 0; p < k; p++ {
				sum += toF64(src[i*k+p]) * toF64(weights[p*n+j])
			}
			if bias != nil {
				sum += toF64(bias[j])
			}
			dst[i*n+j] = fromF64(e.postOps.Apply(sum))
		}
	}
	return nil
}

// gemmOperands extracts and validates the typed buffers for one Execute call.
func gemmOperands[T any](attrs Attrs, args executors.TensorArgs) (src, weights, dst, bias []T, err error) {
	srcTensor, err := args.Get(executors.ArgSrc0)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	src, err = executors.FlatAs[T](srcTensor)
	if err != nil {
		return nil, nil, nil, nil, errors.WithMessage(err, "src0")
	}
	weightsTensor, err := args.Get(executors.ArgWeights)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	weights, err = executors.FlatAs[T](weightsTensor)
	if err != nil {
		return nil, nil, nil, nil, errors.WithMessage(err, "weights")
	}
	dstTensor, err := args.Get(executors.ArgDst)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	dst, err = executors.FlatAs[T](dstTensor)
	if err != nil {
		return nil, nil, nil, nil, errors.WithMessage(err, "dst")
	}
	if attrs.WithBias {
		biasTensor, err := args.Get(executors.ArgBias)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		bias, err = executors.FlatAs[T](biasTensor)
		if err != nil {
			return nil, nil, nil, nil, errors.WithMessage(err, "bias")
		}
	}
	return src, weights, dst, bias, nil
}
