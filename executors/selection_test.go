// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"sync"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/gomlx/nnexec/types/shapes"
)

func init() {
	klog.InitFlags(nil)
}

type testAttrs struct {
	Tag string
}

type fakeExecutor struct {
	name string
}

func (e *fakeExecutor) Execute(args TensorArgs) error { return nil }

// callCounts tracks how often each capability of a mock implementation was
// queried during a selection.
type callCounts struct {
	supports, fallback, accepts, create int
}

// mockSpec describes one mock implementation's scripted behavior.
type mockSpec struct {
	name      string
	tolerance ShapeTolerance
	supports  bool
	fallback  *testAttrs // nil: no fallback; otherwise replacement attrs.
	accepts   bool
	createErr error
	// createdWith records the attrs the factory was invoked with.
	createdWith *testAttrs
}

func newMock(spec *mockSpec, counts *callCounts) *Implementation[testAttrs] {
	return NewImplementation(spec.name, BackendKindReference, OpTypeMatMul, spec.tolerance,
		Functions[testAttrs]{
			Supports: func(config Config[testAttrs]) bool {
				counts.supports++
				return spec.supports
			},
			RequiresFallback: func(config Config[testAttrs]) Fallback[testAttrs] {
				counts.fallback++
				if spec.fallback == nil {
					return NoFallback[testAttrs]()
				}
				replacement := config.Clone()
				replacement.Attrs = *spec.fallback
				return FallbackTo(replacement)
			},
			AcceptsShapes: func(memory MemoryDescArgs) bool {
				counts.accepts++
				return spec.accepts
			},
			Create: func(attrs testAttrs, postOps PostOps, memory MemoryDescArgs, ctx *Context) (Executor, error) {
				counts.create++
				if spec.createErr != nil {
					return nil, spec.createErr
				}
				spec.createdWith = &attrs
				return &fakeExecutor{name: spec.name}, nil
			},
		})
}

func testConfigAndMemory() (Config[testAttrs], MemoryDescArgs) {
	desc := MemoryDesc{Shape: shapes.Make(dtypes.Float32, 4, 4), Layout: LayoutPlain}
	args := MemoryDescArgs{ArgSrc0: desc, ArgSrc1: desc, ArgDst: desc}
	return Config[testAttrs]{Attrs: testAttrs{Tag: "original"}, Args: args}, args.Clone()
}

func TestSelectFirstSupportingWins(t *testing.T) {
	// Scenario: the first descriptor does not support the config, the second
	// one does and is selected; the first one's factory is never invoked.
	d1 := &mockSpec{name: "d1", tolerance: ShapeDependent, supports: false, accepts: true}
	d2 := &mockSpec{name: "d2", tolerance: ShapeDependent, supports: true, accepts: true}
	var c1, c2 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1), newMock(d2, &c2)}
	config, memory := testConfigAndMemory()

	executor, effective, err := Select(OpTypeMatMul, impls, config, memory, NewContext())
	require.NoError(t, err)
	require.Equal(t, "d2", executor.(*fakeExecutor).name)
	assert.Equal(t, "original", effective.Attrs.Tag)
	assert.Zero(t, c1.create, "non-supporting candidate must never be constructed")
	assert.Zero(t, c1.accepts, "non-supporting candidate must not reach the shape check")
	assert.Equal(t, 1, c2.create)
}

func TestSelectFallbackRewritesConfig(t *testing.T) {
	// A descriptor asking for a fallback has its executor created with the
	// replacement config's attributes, and the replacement is returned as
	// the effective config.
	d1 := &mockSpec{name: "d1", tolerance: ShapeDependent, supports: true,
		fallback: &testAttrs{Tag: "rewritten"}, accepts: true}
	var c1 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1)}
	config, memory := testConfigAndMemory()

	executor, effective, err := Select(OpTypeMatMul, impls, config, memory, NewContext())
	require.NoError(t, err)
	require.NotNil(t, executor)
	assert.Equal(t, "rewritten", effective.Attrs.Tag)
	require.NotNil(t, d1.createdWith)
	assert.Equal(t, "rewritten", d1.createdWith.Tag, "factory must receive the fallback attributes")
	assert.Equal(t, 1, c1.fallback, "fallback must be queried exactly once per candidate")
	// The original config value is untouched.
	assert.Equal(t, "original", config.Attrs.Tag)
}

func TestSelectShapeRejectionMovesOn(t *testing.T) {
	d1 := &mockSpec{name: "d1", tolerance: ShapeDependent, supports: true, accepts: false}
	d2 := &mockSpec{name: "d2", tolerance: ShapeDependent, supports: true, accepts: true}
	var c1, c2 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1), newMock(d2, &c2)}
	config, memory := testConfigAndMemory()

	executor, _, err := Select(OpTypeMatMul, impls, config, memory, NewContext())
	require.NoError(t, err)
	require.Equal(t, "d2", executor.(*fakeExecutor).name)
	assert.Equal(t, 1, c1.accepts)
	assert.Zero(t, c1.create, "shape-rejected candidate must not be constructed")
}

func TestSelectCreateFailureIsNotFatal(t *testing.T) {
	d1 := &mockSpec{name: "d1", tolerance: ShapeDependent, supports: true, accepts: true,
		createErr: errors.New("out of resources")}
	d2 := &mockSpec{name: "d2", tolerance: ShapeDependent, supports: true, accepts: true}
	var c1, c2 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1), newMock(d2, &c2)}
	config, memory := testConfigAndMemory()

	executor, _, err := Select(OpTypeMatMul, impls, config, memory, NewContext())
	require.NoError(t, err)
	require.Equal(t, "d2", executor.(*fakeExecutor).name)
	assert.Equal(t, 1, c1.create)
	assert.Equal(t, 1, c2.create)
}

func TestSelectEmptyRegistry(t *testing.T) {
	config, memory := testConfigAndMemory()
	executor, _, err := Select(OpTypeMatMul, nil, config, memory, NewContext())
	require.Nil(t, executor)
	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Equal(t, OpTypeMatMul, selErr.OpType)
	assert.Empty(t, selErr.Attempts)
	assert.Contains(t, selErr.Error(), "no executor implementation registered")
}

func TestSelectExhaustionEnumeratesAttempts(t *testing.T) {
	// Three candidates rejected at three different stages: the failure must
	// name every one, with the stage it was rejected at.
	d1 := &mockSpec{name: "d1", tolerance: ShapeDependent, supports: false}
	d2 := &mockSpec{name: "d2", tolerance: ShapeDependent, supports: true, accepts: false}
	d3 := &mockSpec{name: "d3", tolerance: ShapeDependent, supports: true, accepts: true,
		createErr: errors.New("allocation failed")}
	var c1, c2, c3 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1), newMock(d2, &c2), newMock(d3, &c3)}
	config, memory := testConfigAndMemory()

	executor, _, err := Select(OpTypeMatMul, impls, config, memory, NewContext())
	require.Nil(t, executor)
	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	require.Len(t, selErr.Attempts, 3)
	assert.Equal(t, RejectNotSupported, selErr.Attempts[0].Reason)
	assert.Equal(t, RejectShapeMismatch, selErr.Attempts[1].Reason)
	assert.Equal(t, RejectCreateFailed, selErr.Attempts[2].Reason)
	assert.ErrorContains(t, selErr.Attempts[2].Err, "allocation failed")
	for _, name := range []string{"d1", "d2", "d3"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestSelectShapeAgnosticSkipsShapeCheck(t *testing.T) {
	// A shape-agnostic candidate is selected even though its AcceptsShapes
	// would reject, while a shape-dependent sibling with the same answer is
	// skipped.
	d1 := &mockSpec{name: "dependent", tolerance: ShapeDependent, supports: true, accepts: false}
	d2 := &mockSpec{name: "agnostic", tolerance: ShapeAgnostic, supports: true, accepts: false}
	var c1, c2 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1), newMock(d2, &c2)}
	config, memory := testConfigAndMemory()

	executor, _, err := Select(OpTypeMatMul, impls, config, memory, NewContext())
	require.NoError(t, err)
	require.Equal(t, "agnostic", executor.(*fakeExecutor).name)
	assert.Zero(t, c2.accepts, "shape check must not gate a shape-agnostic candidate")
	// A conforming implementation still answers if asked directly.
	assert.False(t, impls[1].AcceptsShapes(memory))
}

func TestSelectPriorityDeterminism(t *testing.T) {
	d1 := &mockSpec{name: "first", tolerance: ShapeDependent, supports: true, accepts: true}
	d2 := &mockSpec{name: "second", tolerance: ShapeDependent, supports: true, accepts: true}
	var c1, c2 callCounts
	impls := []*Implementation[testAttrs]{newMock(d1, &c1), newMock(d2, &c2)}
	config, memory := testConfigAndMemory()
	ctx := NewContext()

	for run := 0; run < 10; run++ {
		executor, _, err := Select(OpTypeMatMul, impls, config, memory, ctx)
		require.NoError(t, err)
		require.Equal(t, "first", executor.(*fakeExecutor).name)
	}
	assert.Zero(t, c2.supports+c2.accepts+c2.create,
		"short-circuit: later candidates must never be evaluated once an earlier one succeeds")
}

func TestSelectConcurrent(t *testing.T) {
	// Many selections over one shared registry and context, no coordination.
	var c1 callCounts
	var mu sync.Mutex
	impl := NewImplementation("winner", BackendKindReference, OpTypeMatMul, ShapeAgnostic,
		Functions[testAttrs]{
			Supports: func(config Config[testAttrs]) bool { return true },
			Create: func(attrs testAttrs, postOps PostOps, memory MemoryDescArgs, ctx *Context) (Executor, error) {
				mu.Lock()
				c1.create++
				mu.Unlock()
				return &fakeExecutor{name: "winner"}, nil
			},
		})
	registry := NewRegistry[testAttrs](OpTypeMatMul)
	registry.Register(impl)
	config, memory := testConfigAndMemory()
	ctx := NewContext()

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			executor, _, err := registry.Select(config, memory, ctx)
			assert.NoError(t, err)
			assert.Equal(t, "winner", executor.(*fakeExecutor).name)
		}()
	}
	wg.Wait()
	assert.Equal(t, goroutines, c1.create)
}
