// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package executors implements selection and instantiation of physical
// executors for logical compute operations.
//
// A logical operation (say FullyConnected) usually has several competing
// physical implementations: a reference loop, a cache-blocked vectorized
// kernel, maybe a hardware-accelerated one. Each is described by an immutable
// Implementation record holding four capability callables: Supports judges a
// candidate Config on attributes and layout alone, RequiresFallback may
// rewrite the Config into an alternative form the implementation can serve,
// AcceptsShapes judges the concrete runtime shapes, and Create builds the
// bound Executor.
//
// Select walks a priority-ordered list of implementations and returns the
// executor built by the first candidate that supports the Config (directly or
// via one fallback rewrite), accepts the runtime shapes, and constructs
// successfully. Registration order is the only priority signal: callers
// register implementations from most- to least-preferred.
//
// Selection runs on the caller's goroutine, holds no locks, and keeps no
// mutable state beyond the read-only registry: implementations are immutable
// after registration, so any number of selections may run concurrently over
// the same registry. Shared runtime resources (worker pool, scratch budget,
// kernel cache) live in a Context that is borrowed by Create calls, never
// owned.
//
// Errors on the selection path are returned, never panicked; registration
// mistakes are programmer errors and panic with a stack trace, see package
// github.com/gomlx/exceptions.
package executors

// Executor is a bound physical implementation of one operation instance,
// produced by a successful selection. Ownership passes to the caller, which
// keeps it for the operation's runtime lifetime; the selection engine never
// caches or reuses executors across calls.
type Executor interface {
	// Execute runs the computation over the given operand buffers.
	// The buffers must match the memory descriptors the executor was
	// selected with.
	Execute(args TensorArgs) error
}
