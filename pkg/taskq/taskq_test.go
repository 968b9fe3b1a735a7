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

package taskq

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := New()

	const n = 100

	var got []int

	for i := 0; i < n; i++ {
		i := i

		require.NoError(t, l.Post(func() {
			got = append(got, i)
		}))
	}

	l.Stop()

	require.Len(t, got, n)

	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopStopDrainsAcceptedTasks(t *testing.T) {
	l := New()

	release := make(chan struct{})
	started := make(chan struct{})

	// Hold the loop on a gate task so the tasks behind it stay queued
	// when Stop is called.
	require.NoError(t, l.Post(func() {
		close(started)
		<-release
	}))

	<-started

	var (
		mu  sync.Mutex
		ran int
	)

	const n = 10

	for i := 0; i < n; i++ {
		require.NoError(t, l.Post(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}

	stopDone := make(chan struct{})

	go func() {
		defer close(stopDone)
		l.Stop()
	}()

	// Wait until Stop has flipped the loop into the stopped state; a
	// rejected probe post proves it without touching the queue.
	require.Eventually(t, func() bool {
		return errors.Is(l.Post(func() {}), ErrStopped)
	}, time.Second, time.Millisecond)

	close(release)
	<-stopDone

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, ran)
}

func TestLoopPostAfterStopReturnsErrStopped(t *testing.T) {
	l := New()
	l.Stop()

	err := l.Post(func() {
		t.Error("task ran after stop")
	})
	require.ErrorIs(t, err, ErrStopped)
}

func TestLoopStopIsIdempotent(t *testing.T) {
	l := New()
	l.Stop()
	l.Stop()

	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			l.Stop()
		}()
	}

	wg.Wait()
}

func TestLoopTaskMayPostFollowup(t *testing.T) {
	l := New()

	var got []string

	done := make(chan struct{})

	require.NoError(t, l.Post(func() {
		got = append(got, "first")

		require.NoError(t, l.Post(func() {
			got = append(got, "second")
			close(done)
		}))
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("followup task never ran")
	}

	l.Stop()

	assert.Equal(t, []string{"first", "second"}, got)
}
