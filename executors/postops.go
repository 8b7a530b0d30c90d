// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"fmt"
	"math"
)

// Activation is the element-wise non-linearity a PostOp can fuse after an
// operation's main computation.
type Activation int

const (
	ActivationNone Activation = iota
	ActivationReLU
	ActivationSigmoid
	ActivationTanh
)

// String returns the name of the activation.
func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationReLU:
		return "relu"
	case ActivationSigmoid:
		return "sigmoid"
	case ActivationTanh:
		return "tanh"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// PostOpKind discriminates the fused post-operation variants.
type PostOpKind int

const (
	// PostOpActivation applies an element-wise non-linearity.
	PostOpActivation PostOpKind = iota

	// PostOpScaleShift computes x*Scale + Shift element-wise.
	PostOpScaleShift
)

// PostOp is one fused post-operation. Which fields are meaningful depends on
// Kind.
type PostOp struct {
	Kind       PostOpKind
	Activation Activation
	Scale      float32
	Shift      float32
}

// PostOps is the ordered sequence of post-operations fused after an
// operation, applied element-wise in order.
type PostOps []PostOp

// WithActivation appends an activation post-op and returns the extended
// sequence.
func (p PostOps) WithActivation(a Activation) PostOps {
	return append(p, PostOp{Kind: PostOpActivation, Activation: a})
}

// WithScaleShift appends an x*scale+shift post-op and returns the extended
// sequence.
func (p PostOps) WithScaleShift(scale, shift float32) PostOps {
	return append(p, PostOp{Kind: PostOpScaleShift, Scale: scale, Shift: shift})
}

// Apply runs the whole sequence over one value. Kernels that accumulate in
// lower precision convert to float64 around the call.
func (p PostOps) Apply(x float64) float64 {
	for _, op := range p {
		switch op.Kind {
		case PostOpActivation:
			switch op.Activation {
			case ActivationReLU:
				x = math.Max(x, 0)
			case ActivationSigmoid:
				x = 1 / (1 + math.Exp(-x))
			case ActivationTanh:
				x = math.Tanh(x)
			}
		case PostOpScaleShift:
			x = x*float64(op.Scale) + float64(op.Shift)
		}
	}
	return x
}
