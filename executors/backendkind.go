// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

// BackendKind tags which physical backend family an implementation belongs
// to. It is carried for filtering and diagnostics only; selection never
// branches on it.
type BackendKind int

const (
	// BackendKindReference is the portable, unoptimized fallback family.
	BackendKindReference BackendKind = iota

	// BackendKindVectorized covers cache-blocked and SIMD-friendly kernels.
	BackendKindVectorized

	// BackendKindAccelerated covers kernels backed by a hardware accelerator
	// or an external optimized library.
	BackendKindAccelerated
)

// String returns the name of the backend kind.
func (k BackendKind) String() string {
	switch k {
	case BackendKindReference:
		return "reference"
	case BackendKindVectorized:
		return "vectorized"
	case BackendKindAccelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ShapeTolerance declares whether an implementation's applicability depends
// on the concrete runtime shapes.
type ShapeTolerance int

const (
	// ShapeAgnostic implementations apply based on attributes and layout
	// alone: once selected they stay valid when runtime shapes change.
	ShapeAgnostic ShapeTolerance = iota

	// ShapeDependent implementations must have AcceptsShapes re-checked
	// whenever runtime memory changes, even with unchanged attributes.
	ShapeDependent
)

// String returns the name of the shape tolerance.
func (t ShapeTolerance) String() string {
	switch t {
	case ShapeAgnostic:
		return "shape-agnostic"
	case ShapeDependent:
		return "shape-dependent"
	default:
		return "unknown"
	}
}
