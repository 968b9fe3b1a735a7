/*
 * Copyright 2026 EdgeMetal Systems, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package taskq provides a single-goroutine task loop. Tasks posted to a
// Loop run one at a time, in posting order, on the loop's own goroutine.
// It is the execution context backing endpoint sessions and the monitor
// service: code that must never run concurrently with itself posts to the
// same Loop instead of taking locks.
package taskq

import (
	"errors"
	"sync"
)

// ErrStopped is returned by Post after Stop has been called.
var ErrStopped = errors.New("task loop stopped")

// Task is a unit of work executed on a Loop's goroutine.
type Task func()

// Loop runs posted tasks sequentially on a dedicated goroutine.
//
// Stop drains tasks that were accepted before it was called, then joins
// the goroutine. Stop must not be called from a task running on the same
// Loop; the task would wait on itself.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Task
	stopped bool
	done    chan struct{}
}

// New creates a Loop and starts its goroutine.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)

	go l.run()

	return l
}

// Post queues task for execution. The stop check and the enqueue happen
// under one lock, so a task either runs before Stop returns or is
// rejected; it is never silently dropped.
func (l *Loop) Post(task Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrStopped
	}

	l.pending = append(l.pending, task)
	l.cond.Signal()

	return nil
}

// Stop rejects further posts, runs every task accepted so far and waits
// for the loop goroutine to exit. It is idempotent and safe to call from
// multiple goroutines; every call blocks until the drain completes.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		l.cond.Signal()
	}
	l.mu.Unlock()

	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.pending) == 0 && !l.stopped {
			l.cond.Wait()
		}

		batch := l.pending
		l.pending = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, task := range batch {
			task()
		}

		// Post rejects once stopped is set, so the batch taken above
		// was the final one.
		if stopped {
			return
		}
	}
}
