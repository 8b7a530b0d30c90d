// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fullyconnected

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/nnexec/executors"
)

// blockDim is the tile width of the blocked16 weights layout.
const blockDim = 16

// minBlockedWork is the M*K*N product below which the blocked kernel refuses
// the shapes: under it the packing cost dominates and the reference loop
// wins.
const minBlockedWork = 16 * 16 * 16

// blockedImplementation is the cache-blocked float32 strategy. It is
// shape-dependent: applicability must be re-checked when runtime shapes
// change, since only block-aligned K and N are served.
func blockedImplementation() *executors.Implementation[Attrs] {
	return executors.NewImplementation("fc_blocked", executors.BackendKindVectorized,
		executors.OpTypeFullyConnected, executors.ShapeDependent,
		executors.Functions[Attrs]{
			Supports:         blockedSupports,
			RequiresFallback: blockedFallback,
			AcceptsShapes:    blockedAcceptsShapes,
			Create:           newBlockedExecutor,
		})
}

func blockedSupports(config Config) bool {
	return configDType(config) == dtypes.Float32 && sameDType(config)
}

// blockedFallback rewrites the Config to ask for weights in the blocked16
// layout: the executor repacks them itself, so any requested layout is
// servable after the rewrite.
func blockedFallback(config Config) executors.Fallback[Attrs] {
	if config.Args[executors.ArgWeights].Layout == executors.LayoutBlocked16 {
		return executors.NoFallback[Attrs]()
	}
	replacement := config.Clone()
	weights := replacement.Args[executors.ArgWeights]
	weights.Layout = executors.LayoutBlocked16
	replacement.Args[executors.ArgWeights] = weights
	return executors.FallbackTo(replacement)
}

func blockedAcceptsShapes(memory executors.MemoryDescArgs) bool {
	if !shapesConsistent(memory) {
		return false
	}
	src := memory[executors.ArgSrc0].Shape
	weights := memory[executors.ArgWeights].Shape
	m, k := src.Dimensions[0], src.Dimensions[1]
	n := weights.Dimensions[1]
	if k%blockDim != 0 || n%blockDim != 0 {
		return false
	}
	return m*k*n >= minBlockedWork
}

// blockedExecutor packs weights into [N/16 panels][K][16] order once per
// Execute and runs the row loop over the context's worker pool. The packed
// buffer is counted against the context scratch budget for the executor's
// lifetime.
type blockedExecutor struct {
	attrs    Attrs
	postOps  executors.PostOps
	ctx      *executors.Context
	k, n     int
	packed   []float32
	reserved uintptr
}

func newBlockedExecutor(attrs Attrs, postOps executors.PostOps, memory executors.MemoryDescArgs, ctx *executors.Context) (executors.Executor, error) {
	weights := memory[executors.ArgWeights].Shape
	k, n := weights.Dimensions[0], weights.Dimensions[1]
	reserved := uintptr(k*n) * weights.DType.Memory()
	if err := ctx.ReserveScratch(reserved); err != nil {
		return nil, errors.WithMessagef(err, "fc_blocked packing buffer for weights %s", weights)
	}
	return &blockedExecutor{
		attrs:    attrs,
		postOps:  postOps,
		ctx:      ctx,
		k:        k,
		n:        n,
		packed:   make([]float32, k*n),
		reserved: reserved,
	}, nil
}

// Close releases the executor's scratch reservation. The owner must not call
// Execute afterwards.
func (e *blockedExecutor) Close() error {
	e.ctx.ReleaseScratch(e.reserved)
	e.packed = nil
	return nil
}

func (e *blockedExecutor) Execute(args executors.TensorArgs) error {
	if e.packed == nil {
		return errors.New("fc_blocked executor already closed")
	}
	src, weights, dst, bias, err := gemmOperands[float32](e.attrs, args)
	if err != nil {
		return err
	}
	m := args[executors.ArgSrc0].Shape.Dimensions[0]
	k, n := e.k, e.n
	if args[executors.ArgSrc0].Shape.Dimensions[1] != k || args[executors.ArgWeights].Shape.Dimensions[1] != n {
		return errors.Errorf("fc_blocked executor built for K=%d N=%d, got src0 %s weights %s",
			k, n, args[executors.ArgSrc0].Shape, args[executors.ArgWeights].Shape)
	}

	e.pack(weights)

	workers := e.ctx.Workers()
	workers.Parallelize(m, func(i int) {
		row := src[i*k : (i+1)*k]
		out := dst[i*n : (i+1)*n]
		for nb := 0; nb < n/blockDim; nb++ {
			panel := e.packed[nb*k*blockDim : (nb+1)*k*blockDim]
			var sums [blockDim]float32
			for p := 0; p < k; p++ {
				a := row[p]
				lane := panel[p*blockDim : (p+1)*blockDim]
				for jj := 0; jj < blockDim; jj++ {
					sums[jj] += a * lane[jj]
				}
			}
			j0 := nb * blockDim
			for jj := 0; jj < blockDim; jj++ {
				sum := sums[jj]
				if bias != nil {
					sum += bias[j0+jj]
				}
				out[j0+jj] = float32(e.postOps.Apply(float64(sum)))
			}
		}
	})
	return nil
}

// pack rearranges row-major weights[K,N] into column panels of blockDim
// consecutive outputs, so the inner product walks both operands linearly.
func (e *blockedExecutor) pack(weights []float32) {
	k, n := e.k, e.n
	for nb := 0; nb < n/blockDim; nb++ {
		panel := e.packed[nb*k*blockDim:]
		j0 := nb * blockDim
		for p := 0; p < k; p++ {
			copy(panel[p*blockDim:(p+1)*blockDim], weights[p*n+j0:p*n+j0+blockDim])
		}
	}
}
