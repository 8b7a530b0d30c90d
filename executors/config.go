// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

// Config is the candidate execution configuration an implementation is asked
// to judge: the operation attributes, the per-operand descriptors (data type
// and layout preferences), and the fused post-operations.
//
// A Config is a value and is never mutated in place: a fallback rewrite
// produces a new Config, typically built with Clone plus edits.
//
// Supports and RequiresFallback callables reason about the attributes,
// data types, and layouts in a Config; by contract they must not depend on
// the concrete dimensions, which are only judged by AcceptsShapes against
// the runtime memory descriptors.
type Config[A any] struct {
	Attrs   A
	Args    MemoryDescArgs
	PostOps PostOps
}

// Clone returns a Config whose Args map is independent from the receiver's,
// ready to be edited into a fallback form.
func (c Config[A]) Clone() Config[A] {
	c.Args = c.Args.Clone()
	return c
}

// Fallback is the optional result of RequiresFallback: either a replacement
// Config or nothing. The zero value means "no fallback".
type Fallback[A any] struct {
	config Config[A]
	ok     bool
}

// FallbackTo wraps a replacement Config.
func FallbackTo[A any](config Config[A]) Fallback[A] {
	return Fallback[A]{config: config, ok: true}
}

// NoFallback reports that the implementation serves the Config as-is.
func NoFallback[A any]() Fallback[A] {
	return Fallback[A]{}
}

// Ok returns whether a replacement Config is present.
func (f Fallback[A]) Ok() bool { return f.ok }

// Config returns the replacement Config; only meaningful when Ok().
func (f Fallback[A]) Config() Config[A] { return f.config }
