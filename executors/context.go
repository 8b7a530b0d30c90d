// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package executors

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/nnexec/internal/workerspool"
)

// NNEXEC_PARALLELISM is the environment variable overriding the worker pool
// parallelism of new contexts: 0 disables parallelism, -1 makes it unlimited.
const NNEXEC_PARALLELISM = "NNEXEC_PARALLELISM"

// DefaultScratchBudget is the per-context scratch memory budget used when
// none is configured.
const DefaultScratchBudget = 256 * 1024 * 1024

// ErrScratchExhausted indicates a factory asked for more scratch memory than
// the context's remaining budget. Factories surface it from Create, which
// makes selection move on to a less memory-hungry candidate.
var ErrScratchExhausted = errors.New("scratch memory budget exhausted")

// Context holds the process-wide resources handed to every Create call: the
// worker pool, the scratch memory budget, and the kernel cache. It is shared
// by any number of concurrent selections and executors; the selection engine
// borrows it and never takes ownership.
type Context struct {
	id      uuid.UUID
	workers *workerspool.Pool

	mu             sync.Mutex
	scratchBudget  uintptr
	scratchInUse   uintptr
	kernelCache    map[string]any
	kernelBuilding map[string]*sync.Once
}

// NewContext returns a Context with the default scratch budget and a worker
// pool sized from NNEXEC_PARALLELISM (or the number of CPUs when unset).
func NewContext() *Context {
	ctx := &Context{
		id:             uuid.New(),
		workers:        workerspool.New(),
		scratchBudget:  DefaultScratchBudget,
		kernelCache:    make(map[string]any),
		kernelBuilding: make(map[string]*sync.Once),
	}
	if value, found := os.LookupEnv(NNEXEC_PARALLELISM); found {
		parallelism, err := strconv.Atoi(value)
		if err != nil {
			klog.Warningf("ignoring %s=%q: %v", NNEXEC_PARALLELISM, value, err)
		} else {
			ctx.workers.SetMaxParallelism(parallelism)
		}
	}
	return ctx
}

// ID identifies this context instance in logs, so selections sharing a
// context can be correlated.
func (ctx *Context) ID() uuid.UUID { return ctx.id }

// Workers returns the shared worker pool.
func (ctx *Context) Workers() *workerspool.Pool { return ctx.workers }

// SetScratchBudget replaces the scratch memory budget. Configure before
// handing the context to selections.
func (ctx *Context) SetScratchBudget(bytes uintptr) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.scratchBudget = bytes
}

// ReserveScratch takes bytes from the scratch budget. It fails with
// ErrScratchExhausted (wrapped) when the remaining budget is too small;
// factories propagate that failure from Create so selection can fall back to
// a cheaper implementation. The caller allocates its own buffers against the
// reservation and returns it with ReleaseScratch.
func (ctx *Context) ReserveScratch(bytes uintptr) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.scratchInUse+bytes > ctx.scratchBudget {
		return errors.WithMessagef(ErrScratchExhausted,
			"requested %s, %s of %s in use (context %s)",
			humanize.IBytes(uint64(bytes)), humanize.IBytes(uint64(ctx.scratchInUse)),
			humanize.IBytes(uint64(ctx.scratchBudget)), ctx.id)
	}
	ctx.scratchInUse += bytes
	return nil
}

// ReleaseScratch returns a reservation to the budget.
func (ctx *Context) ReleaseScratch(bytes uintptr) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if bytes > ctx.scratchInUse {
		ctx.scratchInUse = 0
		return
	}
	ctx.scratchInUse -= bytes
}

// ScratchInUse returns the currently reserved scratch bytes.
func (ctx *Context) ScratchInUse() uintptr {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.scratchInUse
}

// Kernel returns the cached kernel for key, building it with build on the
// first request. Concurrent requests for the same key build once; the
// winner's value is shared. A failed build is not cached, the next request
// retries.
func (ctx *Context) Kernel(key string, build func() (any, error)) (any, error) {
	ctx.mu.Lock()
	if kernel, found := ctx.kernelCache[key]; found {
		ctx.mu.Unlock()
		return kernel, nil
	}
	once, found := ctx.kernelBuilding[key]
	if !found {
		once = &sync.Once{}
		ctx.kernelBuilding[key] = once
	}
	ctx.mu.Unlock()

	var buildErr error
	once.Do(func() {
		kernel, err := build()
		ctx.mu.Lock()
		defer ctx.mu.Unlock()
		delete(ctx.kernelBuilding, key)
		if err != nil {
			buildErr = errors.WithMessagef(err, "building kernel %q", key)
			return
		}
		ctx.kernelCache[key] = kernel
	})
	if buildErr != nil {
		return nil, buildErr
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	kernel, found := ctx.kernelCache[key]
	if !found {
		// Another goroutine's build failed inside this Once; retry on the
		// next call.
		return nil, errors.Errorf("kernel %q failed to build concurrently", key)
	}
	return kernel, nil
}

// String pretty-prints the context for logging.
func (ctx *Context) String() string {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return fmt.Sprintf("Context(%s, parallelism=%d, scratch=%s/%s, kernels=%d)",
		ctx.id, ctx.workers.MaxParallelism(),
		humanize.IBytes(uint64(ctx.scratchInUse)), humanize.IBytes(uint64(ctx.scratchBudget)),
		len(ctx.kernelCache))
}
