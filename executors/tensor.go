// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"github.com/pkg/errors"

	"github.com/gomlx/nnexec/types/shapes"
)

// Tensor is a concrete operand buffer handed to Executor.Execute. Flat holds
// the flattened values in row-major order; its concrete type is determined by
// Shape.DType ([]float32, []float64, []float16.Float16, []bfloat16.BFloat16).
type Tensor struct {
	Shape shapes.Shape
	Flat  any
}

// TensorArgs maps operand slots to their buffers for one Execute call.
type TensorArgs map[ArgRole]*Tensor

// Get returns the tensor for the role or an error naming the missing slot.
func (a TensorArgs) Get(role ArgRole) (*Tensor, error) {
	t, ok := a[role]
	if !ok || t == nil {
		return nil, errors.Errorf("missing %s tensor argument", role)
	}
	return t, nil
}

// FlatAs returns the tensor's flat buffer asserted to []T, with the shape
// size checked against the buffer length.
func FlatAs[T any](t *Tensor) ([]T, error) {
	flat, ok := t.Flat.([]T)
	if !ok {
		return nil, errors.Errorf("tensor %s: flat buffer is %T, want []%T", t.Shape, t.Flat, *new(T))
	}
	if len(flat) != t.Shape.Size() {
		return nil, errors.Errorf("tensor %s: flat buffer has %d elements, shape wants %d", t.Shape, len(flat), t.Shape.Size())
	}
	return flat, nil
}
