// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

// OpType is an enum of the logical operations executors can be selected for.
//
// It keys nothing in the selection logic itself: each registry is built for
// one OpType, and the tag is carried for diagnostics and to catch
// registration mistakes.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota
	OpTypeConvolution
	OpTypeEltwise
	OpTypeFullyConnected
	OpTypeMatMul
	OpTypePooling
	OpTypeSoftmax
)
