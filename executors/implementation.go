// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrNotImplemented indicates an implementation has no factory for the given
// configuration. Select treats it like any other creation failure and moves
// to the next candidate.
var ErrNotImplemented = errors.New("executor implementation not available")

// Functions groups the four capability callables of an Implementation,
// generic over the operation's attributes type A. Any of them may be nil:
//
//   - Supports nil: the implementation never matches.
//   - RequiresFallback nil: no fallback, the Config is served as-is.
//   - AcceptsShapes nil: no runtime shapes are accepted.
//   - Create nil: creation fails with ErrNotImplemented.
//
// Supports and RequiresFallback must be pure and must not inspect runtime
// memory -- they are evaluated before any memory is materialized.
// AcceptsShapes is the only predicate allowed to look at concrete dimensions.
// All four must be safe to call repeatedly and concurrently.
type Functions[A any] struct {
	Supports         func(config Config[A]) bool
	RequiresFallback func(config Config[A]) Fallback[A]
	AcceptsShapes    func(memory MemoryDescArgs) bool
	Create           func(attrs A, postOps PostOps, memory MemoryDescArgs, ctx *Context) (Executor, error)
}

// Implementation is the immutable capability record for one physical strategy
// implementing one logical operation. Build one with NewImplementation; after
// that every field is fixed, which is what makes registries safe to query
// from many goroutines without synchronization.
type Implementation[A any] struct {
	name      string
	kind      BackendKind
	opType    OpType
	tolerance ShapeTolerance
	fns       Functions[A]
}

// NewImplementation returns an immutable capability record. The name is a
// stable human-readable identifier used only in diagnostics, never as a
// dispatch key.
//
// It panics on an empty name or an invalid opType: those are registration
// mistakes, caught at process initialization.
func NewImplementation[A any](name string, kind BackendKind, opType OpType, tolerance ShapeTolerance, fns Functions[A]) *Implementation[A] {
	if name == "" {
		exceptions.Panicf("executors.NewImplementation: name must not be empty")
	}
	if !opType.IsAOpType() || opType == OpTypeInvalid {
		exceptions.Panicf("executors.NewImplementation(%q): invalid OpType %d", name, opType)
	}
	return &Implementation[A]{
		name:      name,
		kind:      kind,
		opType:    opType,
		tolerance: tolerance,
		fns:       fns,
	}
}

// Name returns the diagnostic identifier.
func (impl *Implementation[A]) Name() string { return impl.name }

// Kind returns the backend family tag.
func (impl *Implementation[A]) Kind() BackendKind { return impl.kind }

// OpType returns the logical operation this implementation serves.
func (impl *Implementation[A]) OpType() OpType { return impl.opType }

// ShapeTolerance returns whether applicability depends on runtime shapes.
func (impl *Implementation[A]) ShapeTolerance() ShapeTolerance { return impl.tolerance }

// ShapeAgnostic returns whether the implementation applies regardless of
// concrete runtime shapes.
func (impl *Implementation[A]) ShapeAgnostic() bool { return impl.tolerance == ShapeAgnostic }

// Supports judges whether the implementation can serve the Config, on
// attributes and layout alone. Without a Supports callable it never matches.
func (impl *Implementation[A]) Supports(config Config[A]) bool {
	if impl.fns.Supports == nil {
		return false
	}
	return impl.fns.Supports(config)
}

// RequiresFallback asks whether the implementation wants the Config rewritten
// into an alternative form it can serve, for example repacking weights into a
// blocked layout. An implementation is trusted to support the fallback Config
// it produces.
func (impl *Implementation[A]) RequiresFallback(config Config[A]) Fallback[A] {
	if impl.fns.RequiresFallback == nil {
		return NoFallback[A]()
	}
	return impl.fns.RequiresFallback(config)
}

// AcceptsShapes judges the concrete runtime shapes. It must answer correctly
// even for shape-agnostic implementations, since callers are permitted to
// call it unconditionally.
func (impl *Implementation[A]) AcceptsShapes(memory MemoryDescArgs) bool {
	if impl.fns.AcceptsShapes == nil {
		return false
	}
	return impl.fns.AcceptsShapes(memory)
}

// Create builds the bound Executor. It is a factory with no idempotence
// guarantee: it may allocate backend state immediately, and it may fail even
// after Supports and AcceptsShapes passed (for example on a scratch budget),
// in which case selection moves to the next candidate.
func (impl *Implementation[A]) Create(attrs A, postOps PostOps, memory MemoryDescArgs, ctx *Context) (Executor, error) {
	if impl.fns.Create == nil {
		return nil, errors.WithMessagef(ErrNotImplemented, "implementation %q has no factory", impl.name)
	}
	return impl.fns.Create(attrs, postOps, memory, ctx)
}
