// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// RejectReason records at which stage a candidate implementation was
// discarded during selection. Attribute mismatch and shape mismatch are
// different tuning signals, so diagnostics keep them apart.
type RejectReason int

const (
	// RejectNotSupported: Supports returned false for the Config.
	RejectNotSupported RejectReason = iota

	// RejectShapeMismatch: attributes matched but AcceptsShapes refused the
	// concrete runtime shapes.
	RejectShapeMismatch

	// RejectCreateFailed: all checks passed but the factory could not build
	// the executor.
	RejectCreateFailed
)

// String returns the name of the rejection reason.
func (r RejectReason) String() string {
	switch r {
	case RejectNotSupported:
		return "not supported"
	case RejectShapeMismatch:
		return "shapes rejected"
	case RejectCreateFailed:
		return "creation failed"
	default:
		return fmt.Sprintf("RejectReason(%d)", int(r))
	}
}

// Rejection describes one discarded candidate: which implementation, at what
// stage, and (for creation failures) the factory's error.
type Rejection struct {
	Name   string
	Kind   BackendKind
	Reason RejectReason
	Err    error
}

// String formats the rejection for diagnostics.
func (r Rejection) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", r.Name, r.Kind, r.Reason, r.Err)
	}
	return fmt.Sprintf("%s (%s): %s", r.Name, r.Kind, r.Reason)
}

// SelectionError reports that no implementation in the registry could serve
// the request. Attempts enumerates every candidate tried, in priority order,
// with the stage each was rejected at.
type SelectionError struct {
	OpType   OpType
	Attempts []Rejection
}

// Error implements the error interface.
func (e *SelectionError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no executor implementation registered for %s", e.OpType)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, attempt.String())
	}
	return fmt.Sprintf("no applicable executor implementation for %s, tried %d candidate(s): %s",
		e.OpType, len(e.Attempts), strings.Join(parts, "; "))
}

// Select walks the implementations in priority order and returns the executor
// built by the first structurally successful candidate, along with the
// effective Config it was built with (the fallback replacement, when the
// candidate asked for one).
//
// Per candidate: Supports gates eligibility on the original Config;
// RequiresFallback is queried once and may replace the Config for the rest of
// this candidate's evaluation; AcceptsShapes gates shape-dependent candidates
// against the runtime memory; Create failures are not fatal to the overall
// selection, only to the candidate. Registration order is the sole priority
// signal.
//
// On exhaustion it returns a *SelectionError enumerating every attempt; the
// failure is always surfaced, never substituted with a default executor.
func Select[A any](opType OpType, impls []*Implementation[A], config Config[A], memory MemoryDescArgs, ctx *Context) (Executor, Config[A], error) {
	attempts := make([]Rejection, 0, len(impls))
	for _, impl := range impls {
		if !impl.Supports(config) {
			klog.V(2).Infof("%s: %q (%s) rejected: does not support config", opType, impl.Name(), impl.Kind())
			attempts = append(attempts, Rejection{Name: impl.Name(), Kind: impl.Kind(), Reason: RejectNotSupported})
			continue
		}
		effective := config
		if fallback := impl.RequiresFallback(config); fallback.Ok() {
			effective = fallback.Config()
			klog.V(2).Infof("%s: %q requires fallback config %s", opType, impl.Name(), effective.Args)
			if klog.V(3).Enabled() && !impl.Supports(effective) {
				// Contract violation by the implementation author; selection
				// still trusts the fallback.
				klog.Warningf("%s: %q produced a fallback config it does not itself support", opType, impl.Name())
			}
		}
		if !impl.ShapeAgnostic() && !impl.AcceptsShapes(memory) {
			klog.V(2).Infof("%s: %q (%s) rejected shapes %s", opType, impl.Name(), impl.Kind(), memory)
			attempts = append(attempts, Rejection{Name: impl.Name(), Kind: impl.Kind(), Reason: RejectShapeMismatch})
			continue
		}
		executor, err := impl.Create(effective.Attrs, effective.PostOps, memory, ctx)
		if err != nil || executor == nil {
			if err == nil {
				err = ErrNotImplemented
			}
			klog.V(2).Infof("%s: %q (%s) failed to create executor: %v", opType, impl.Name(), impl.Kind(), err)
			attempts = append(attempts, Rejection{Name: impl.Name(), Kind: impl.Kind(), Reason: RejectCreateFailed, Err: err})
			continue
		}
		klog.V(1).Infof("%s: selected %q (%s)", opType, impl.Name(), impl.Kind())
		return executor, effective, nil
	}
	return nil, Config[A]{}, &SelectionError{OpType: opType, Attempts: attempts}
}

// Registry is the priority-ordered collection of implementations for one
// logical operation. Register during package initialization, from most- to
// least-preferred; after that the registry is read-only and safe for
// concurrent Select calls.
type Registry[A any] struct {
	opType OpType
	impls  []*Implementation[A]
}

// NewRegistry returns an empty registry for the given operation.
func NewRegistry[A any](opType OpType) *Registry[A] {
	if !opType.IsAOpType() || opType == OpTypeInvalid {
		exceptions.Panicf("executors.NewRegistry: invalid OpType %d", opType)
	}
	return &Registry[A]{opType: opType}
}

// OpType returns the logical operation the registry serves.
func (r *Registry[A]) OpType() OpType { return r.opType }

// Register appends an implementation with the next (lowest remaining)
// priority. It panics on nil or on an implementation built for a different
// operation -- registration mistakes, not runtime errors.
func (r *Registry[A]) Register(impl *Implementation[A]) {
	if impl == nil {
		exceptions.Panicf("executors.Registry(%s).Register: nil implementation", r.opType)
	}
	if impl.OpType() != r.opType {
		exceptions.Panicf("executors.Registry(%s).Register: implementation %q is for %s",
			r.opType, impl.Name(), impl.OpType())
	}
	r.impls = append(r.impls, impl)
}

// Implementations returns the registered implementations in priority order.
// The returned slice is the registry's own: treat it as read-only.
func (r *Registry[A]) Implementations() []*Implementation[A] { return r.impls }

// Select runs the selection algorithm over the registry's implementations.
func (r *Registry[A]) Select(config Config[A], memory MemoryDescArgs, ctx *Context) (Executor, Config[A], error) {
	return Select(r.opType, r.impls, config, memory, ctx)
}
