// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import "maps"

import "github.com/gomlx/gopjrt/dtypes"

// Capabilities holds mappings of what a backend family's implementations
// support. Supports closures are usually written against one of these.
type Capabilities struct {
	// Operations supported.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[OpType]bool

	// DTypes lists the data types supported.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[OpType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// Supports returns whether both the operation and the data type are listed.
func (c Capabilities) Supports(opType OpType, dtype dtypes.DType) bool {
	return c.Operations[opType] && c.DTypes[dtype]
}
