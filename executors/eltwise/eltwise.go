// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package eltwise selects and builds executors for binary element-wise
// operations (add, sub, mul, max) with fused post-ops.
//
// Two strategies are registered, most-preferred first:
//
//   - "elt_flat": float32 kernel over equal-shaped operands, a single flat
//     loop with no index arithmetic. Shape-dependent: it rejects any
//     broadcast.
//   - "elt_ref": shape-agnostic reference kernel for float32 and float64,
//     also serving a scalar right-hand operand.
package eltwise

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/nnexec/executors"
)

// BinaryOp selects the element-wise operation.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpMax
)

// String returns the name of the binary operation.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpMax:
		return "max"
	default:
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
}

// Attrs are the eltwise attributes judged during selection.
type Attrs struct {
	Op BinaryOp
}

// Config is the eltwise candidate configuration.
type Config = executors.Config[Attrs]

var registry = executors.NewRegistry[Attrs](executors.OpTypeEltwise)

func init() {
	registry.Register(flatImplementation())
	registry.Register(refImplementation())
}

// Registry returns the priority-ordered eltwise implementations.
func Registry() *executors.Registry[Attrs] { return registry }

// Select picks and builds an executor for the given configuration and
// runtime memory.
func Select(config Config, memory executors.MemoryDescArgs, ctx *executors.Context) (executors.Executor, Config, error) {
	return registry.Select(config, memory, ctx)
}

func configDType(config Config) dtypes.DType {
	return config.Args[executors.ArgSrc0].Shape.DType
}

func sameDType(config Config) bool {
	dtype := configDType(config)
	return config.Args[executors.ArgSrc1].Shape.DType == dtype &&
		config.Args[executors.ArgDst].Shape.DType == dtype
}

func validOp(op BinaryOp) bool {
	return op >= OpAdd && op <= OpMax
}

// flatShapes accepts only equal-shaped src0/src1/dst: the flat kernel does no
// broadcasting.
func flatShapes(memory executors.MemoryDescArgs) bool {
	src0 := memory[executors.ArgSrc0].Shape
	src1 := memory[executors.ArgSrc1].Shape
	dst := memory[executors.ArgDst].Shape
	return src0.EqualDimensions(src1) && src0.EqualDimensions(dst)
}

// refShapes additionally accepts a scalar src1 broadcast over src0.
func refShapes(memory executors.MemoryDescArgs) bool {
	if flatShapes(memory) {
		return true
	}
	src0 := memory[executors.ArgSrc0].Shape
	src1 := memory[executors.ArgSrc1].Shape
	dst := memory[executors.ArgDst].Shape
	return src1.IsScalar() && src0.EqualDimensions(dst)
}

func apply64(op BinaryOp, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	default: // OpMax
		if a > b {
			return a
		}
		return b
	}
}

// flatImplementation is the no-broadcast float32 fast path.
func flatImplementation() *executors.Implementation[Attrs] {
	return executors.NewImplementation("elt_flat", executors.BackendKindVectorized,
		executors.OpTypeEltwise, executors.ShapeDependent,
		executors.Functions[Attrs]{
			Supports: func(config Config) bool {
				return validOp(config.Attrs.Op) && configDType(config) == dtypes.Float32 && sameDType(config)
			},
			AcceptsShapes: flatShapes,
			Create:        newFlatExecutor,
		})
}

// flatKernel is the cached inner loop of the flat executor, shared through
// the context kernel cache by every executor built for the same operation.
type flatKernel func(src0, src1, dst []float32)

func newFlatExecutor(attrs Attrs, postOps executors.PostOps, memory executors.MemoryDescArgs, ctx *executors.Context) (executors.Executor, error) {
	key := fmt.Sprintf("eltwise/flat/%s/f32", attrs.Op)
	cached, err := ctx.Kernel(key, func() (any, error) {
		op := attrs.Op
		return flatKernel(func(src0, src1, dst []float32) {
			switch op {
			case OpAdd:
				for i := range dst {
					dst[i] = src0[i] + src1[i]
				}
			case OpSub:
				for i := range dst {
					dst[i] = src0[i] - src1[i]
				}
			case OpMul:
				for i := range dst {
					dst[i] = src0[i] * src1[i]
				}
			default: // OpMax
				for i := range dst {
					dst[i] = max(src0[i], src1[i])
				}
			}
		}), nil
	})
	if err != nil {
		return nil, err
	}
	return &flatExecutor{postOps: postOps, kernel: cached.(flatKernel)}, nil
}

type flatExecutor struct {
	postOps executors.PostOps
	kernel  flatKernel
}

func (e *flatExecutor) Execute(args executors.TensorArgs) error {
	src0, src1, dst, err := operands[float32](args)
	if err != nil {
		return err
	}
	if len(src1) != len(src0) || len(dst) != len(src0) {
		return errors.Errorf("elt_flat executor requires equal-sized operands, got %d/%d/%d elements",
			len(src0), len(src1), len(dst))
	}
	e.kernel(src0, src1, dst)
	if len(e.postOps) > 0 {
		for i := range dst {
			dst[i] = float32(e.postOps.Apply(float64(dst[i])))
		}
	}
	return nil
}

// refImplementation is the shape-agnostic reference strategy.
func refImplementation() *executors.Implementation[Attrs] {
	return executors.NewImplementation("elt_ref", executors.BackendKindReference,
		executors.OpTypeEltwise, executors.ShapeAgnostic,
		executors.Functions[Attrs]{
			Supports: func(config Config) bool {
				dtype := configDType(config)
				return validOp(config.Attrs.Op) && sameDType(config) &&
					(dtype == dtypes.Float32 || dtype == dtypes.Float64)
			},
			AcceptsShapes: refShapes,
			Create: func(attrs Attrs, postOps executors.PostOps, memory executors.MemoryDescArgs, ctx *executors.Context) (executors.Executor, error) {
				return &refExecutor{
					attrs:   attrs,
					postOps: postOps,
					dtype:   memory[executors.ArgSrc0].Shape.DType,
				}, nil
			},
		})
}

type refExecutor struct {
	attrs   Attrs
	postOps executors.PostOps
	dtype   dtypes.DType
}

func (e *refExecutor) Execute(args executors.TensorArgs) error {
	switch e.dtype {
	case dtypes.Float32:
		return refLoop[float32](e, args)
	case dtypes.Float64:
		return refLoop[float64](e, args)
	default:
		return errors.Errorf("elt_ref executor does not support dtype %s", e.dtype)
	}
}

func refLoop[T float32 | float64](e *refExecutor, args executors.TensorArgs) error {
	src0, src1, dst, err := operands[T](args)
	if err != nil {
		return err
	}
	if len(dst) != len(src0) {
		return errors.Errorf("elt_ref executor: dst has %d elements, src0 has %d", len(dst), len(src0))
	}
	scalarRHS := len(src1) == 1 && len(src0) != 1
	if !scalarRHS && len(src1) != len(src0) {
		return errors.Errorf("elt_ref executor: src1 has %d elements, src0 has %d", len(src1), len(src0))
	}
	for i := range dst {
		b := src1[0]
		if !scalarRHS {
			b = src1[i]
		}
		value := apply64(e.attrs.Op, float64(src0[i]), float64(b))
		dst[i] = T(e.postOps.Apply(value))
	}
	return nil
}

func operands[T any](args executors.TensorArgs) (src0, src1, dst []T, err error) {
	src0Tensor, err := args.Get(executors.ArgSrc0)
	if err != nil {
		return nil, nil, nil, err
	}
	src0, err = executors.FlatAs[T](src0Tensor)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "src0")
	}
	src1Tensor, err := args.Get(executors.ArgSrc1)
	if err != nil {
		return nil, nil, nil, err
	}
	src1, err = executors.FlatAs[T](src1Tensor)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "src1")
	}
	dstTensor, err := args.Get(executors.ArgDst)
	if err != nil {
		return nil, nil, nil, err
	}
	dst, err = executors.FlatAs[T](dstTensor)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "dst")
	}
	return src0, src1, dst, nil
}
