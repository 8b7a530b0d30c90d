// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the value type describing the data type and
// dimensions of one operand as observed at runtime.
//
// A Shape pairs a DType (from github.com/gomlx/gopjrt/dtypes) with a list of
// dimensions. It is a plain value: cheap to copy, compared with Equal, and
// never mutated after creation. Executor memory descriptors are built on top
// of it.
//
// Go float16 support uses github.com/x448/float16, and bfloat16 uses the
// implementation in github.com/gomlx/gopjrt/dtypes/bfloat16.
package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gopjrt/dtypes"
	"slices"
)

// Shape of one operand: data type plus one dimension per axis.
// A rank-0 shape is a scalar.
//
// Use Make to create one; the zero value is invalid (Ok() == false).
type Shape struct {
	DType      DType
	Dimensions []int
}

// Make returns a Shape with the given data type and dimensions.
// It panics if any dimension is <= 0: runtime-observed shapes are always
// concrete, there are no symbolic dimensions at this layer.
func Make(dtype DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): axes must have dimension > 0", s)
		}
	}
	return s
}

// Scalar returns a rank-0 Shape for the given Go numeric type.
func Scalar[T Number]() Shape {
	return Shape{DType: FromGenericsType[T]()}
}

// Invalid returns an invalid shape: Invalid().Ok() == false.
func Invalid() Shape { return Shape{DType: InvalidDType} }

// Ok returns whether this is a valid Shape. The zero value Shape{} is invalid.
func (s Shape) Ok() bool { return s.DType != InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape has rank 0.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. Negative axis counts from the
// end, so Dim(-1) is the last axis. Panics on an out-of-bounds axis.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.Rank()
	}
	if adjusted < 0 || adjusted >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjusted]
}

// Shape returns itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// Size returns the number of elements: the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the bytes needed to store an array of this shape.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares data type and dimensions.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualDimensions compares dimensions only, ignoring the data type.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// String pretty-prints the shape as "(dtype)[dims...]".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// HasShape is implemented by anything that can report its Shape.
// Shape itself implements it.
type HasShape interface {
	Shape() Shape
}
