// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool bounds the parallelism of CPU-bound kernel work.
//
// Executors share one Pool through the executor context: each kernel splits
// its work into tasks and lets the pool decide how many run at once, so
// concurrent operations don't oversubscribe the machine.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits how many kernel tasks run in parallel.
//
// maxParallelism is a soft target: the number of live goroutines can be
// slightly higher around task handoff.
type Pool struct {
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning decreases.
	numRunning int
}

// New returns a Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	p := &Pool{maxParallelism: runtime.NumCPU()}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// IsEnabled returns whether parallelism is enabled (maxParallelism != 0).
func (p *Pool) IsEnabled() bool { return p.maxParallelism != 0 }

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0).
func (p *Pool) IsUnlimited() bool { return p.maxParallelism < 0 }

// MaxParallelism returns the soft parallelism target.
// 0 means parallelism is disabled; -1 means unlimited.
func (p *Pool) MaxParallelism() int { return p.maxParallelism }

// SetMaxParallelism changes the parallelism target. Only change it before
// any tasks run; changing it mid-execution is undefined.
func (p *Pool) SetMaxParallelism(maxParallelism int) {
	p.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all workers are in use.
// Call with p.mu held.
func (p *Pool) lockedIsFull() bool {
	if p.maxParallelism == 0 {
		return true
	} else if p.maxParallelism < 0 {
		return false
	}
	return p.numRunning >= p.maxParallelism
}

// WaitToStart blocks until a worker is available and then runs task in a
// goroutine. With parallelism disabled it runs the task inline instead.
func (p *Pool) WaitToStart(task func()) {
	if p.IsUnlimited() {
		go task()
		return
	} else if p.maxParallelism == 0 {
		task()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.lockedStartTask(task)
}

// StartIfAvailable runs task in a goroutine if a worker is free, returning
// whether it did. The caller synchronizes the task's completion.
func (p *Pool) StartIfAvailable(task func()) bool {
	if p.IsUnlimited() {
		go task()
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockedIsFull() {
		return false
	}
	p.lockedStartTask(task)
	return true
}

// lockedStartTask runs task in a goroutine, keeping tabs on numRunning.
// Call with p.mu held.
func (p *Pool) lockedStartTask(task func()) {
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// Parallelize runs fn(i) for i in [0, n) across the pool's workers and
// returns when all calls finished. With parallelism disabled everything runs
// inline on the calling goroutine.
func (p *Pool) Parallelize(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if !p.IsEnabled() || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		p.WaitToStart(func() {
			defer wg.Done()
			fn(i)
		})
	}
	wg.Wait()
}
