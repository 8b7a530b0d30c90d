// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/gomlx/nnexec/types/shapes"
)

// ArgRole identifies one operand slot of an operation.
type ArgRole int

const (
	ArgSrc0 ArgRole = iota
	ArgSrc1
	ArgWeights
	ArgBias
	ArgDst
)

// String returns the name of the argument role.
func (r ArgRole) String() string {
	switch r {
	case ArgSrc0:
		return "src0"
	case ArgSrc1:
		return "src1"
	case ArgWeights:
		return "weights"
	case ArgBias:
		return "bias"
	case ArgDst:
		return "dst"
	default:
		return fmt.Sprintf("ArgRole(%d)", int(r))
	}
}

// Layout describes how an operand's elements are arranged in memory.
type Layout int

const (
	// LayoutAny means the requester has no layout preference.
	LayoutAny Layout = iota

	// LayoutPlain is the dense row-major layout.
	LayoutPlain

	// LayoutBlocked16 tiles the two innermost axes in 16x16 blocks, the
	// form the blocked kernels consume weights in.
	LayoutBlocked16
)

// String returns the name of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutAny:
		return "any"
	case LayoutPlain:
		return "plain"
	case LayoutBlocked16:
		return "blocked16"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// MemoryDesc describes one operand: its runtime-observed shape (data type and
// dimensions) and its memory layout.
type MemoryDesc struct {
	Shape  shapes.Shape
	Layout Layout
}

// String pretty-prints the descriptor as "shape/layout".
func (d MemoryDesc) String() string {
	return fmt.Sprintf("%s/%s", d.Shape, d.Layout)
}

// MemoryDescArgs maps each operand slot to its descriptor. It is consulted
// read-only: selection never mutates it, and fallback rewrites produce fresh
// maps via Clone.
type MemoryDescArgs map[ArgRole]MemoryDesc

// Clone returns a shallow copy; MemoryDesc is a value, so the copy is
// independent for the purposes of fallback rewriting.
func (m MemoryDescArgs) Clone() MemoryDescArgs {
	return maps.Clone(m)
}

// String lists the descriptors sorted by role, for logging.
func (m MemoryDescArgs) String() string {
	roles := make([]ArgRole, 0, len(m))
	for role := range m {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	parts := make([]string, 0, len(roles))
	for _, role := range roles {
		parts = append(parts, fmt.Sprintf("%s=%s", role, m[role]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
