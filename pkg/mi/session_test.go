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

package mi

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/mctp"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

var errResolve = errors.New("mctpd unreachable")

// fakeResolver fails the first failures calls, then succeeds.
type fakeResolver struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *fakeResolver) SetupEndpoint(_ context.Context, _ string, _ uint8) (mctp.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.calls <= r.failures {
		return mctp.Endpoint{}, errResolve
	}

	return mctp.Endpoint{EID: 9, NID: 1, Path: "/au/com/codeconstruct/mctp1/networks/1/endpoints/9"}, nil
}

// fakeTransport answers every request through handle. Concurrent calls
// fail the test: the session must serialize commands.
type fakeTransport struct {
	mu       sync.Mutex
	inFlight bool
	calls    int
	handle   func(req []byte) ([]byte, error)
	t        *testing.T
}

func (f *fakeTransport) Roundtrip(req []byte) ([]byte, error) {
	f.mu.Lock()
	if f.inFlight {
		f.t.Error("overlapping commands on one endpoint")
	}

	f.inFlight = true
	f.calls++
	f.mu.Unlock()

	resp, err := f.handle(req)

	f.mu.Lock()
	f.inFlight = false
	f.mu.Unlock()

	return resp, err
}

func (f *fakeTransport) Close() error { return nil }

func newTestSession(t *testing.T, failures int, handle func(req []byte) ([]byte, error)) (*Session, *fakeTransport, *taskq.Loop) {
	t.Helper()

	tr := &fakeTransport{handle: handle, t: t}
	root := NewRoot(logger.NewTestLogger(), func(_ int, _ uint8) (Transport, error) {
		return tr, nil
	})

	owner := taskq.New()
	t.Cleanup(owner.Stop)

	s, err := NewSession(context.Background(), root, owner, &fakeResolver{failures: failures}, 3, 0x6a)
	require.NoError(t, err)

	return s, tr, owner
}

func healthResponse(ctemp int8) []byte {
	data := []byte{0x20, 0xff, byte(ctemp), 0, 0, 0, 0, 0}
	return buildResponse(nmimtMICommand, miResponseBody(0, data))
}

func controllerListResponse(ids ...uint16) []byte {
	data := make([]byte, 2+2*len(ids))
	binary.LittleEndian.PutUint16(data[0:], uint16(len(ids)))

	for i, id := range ids {
		binary.LittleEndian.PutUint16(data[2+2*i:], id)
	}

	return buildResponse(nmimtMICommand, miResponseBody(0, data))
}

func TestNewSessionRetriesResolution(t *testing.T) {
	// Five failures still leave one successful attempt within the bound.
	s, _, _ := newTestSession(t, 5, func([]byte) ([]byte, error) { return nil, nil })
	defer s.Close()

	nid, eid := s.Endpoint()
	assert.Equal(t, 1, nid)
	assert.Equal(t, uint8(9), eid)
}

func TestNewSessionResolutionExhaustsRetries(t *testing.T) {
	root := NewRoot(logger.NewTestLogger(), func(_ int, _ uint8) (Transport, error) {
		t.Fatal("transport opened despite resolution failure")
		return nil, nil
	})

	owner := taskq.New()
	defer owner.Stop()

	resolver := &fakeResolver{failures: 6}

	_, err := NewSession(context.Background(), root, owner, resolver, 3, 0x6a)
	require.Error(t, err)
	assert.ErrorIs(t, err, errResolve)
	assert.Equal(t, 6, resolver.calls)
}

func TestNewSessionOpenFailureIsFatal(t *testing.T) {
	errOpen := errors.New("no route to endpoint")

	root := NewRoot(logger.NewTestLogger(), func(_ int, _ uint8) (Transport, error) {
		return nil, errOpen
	})

	owner := taskq.New()
	defer owner.Stop()

	_, err := NewSession(context.Background(), root, owner, &fakeResolver{}, 3, 0x6a)
	assert.ErrorIs(t, err, errOpen)
}

func TestSubsystemHealthPoll(t *testing.T) {
	s, _, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		return healthResponse(25), nil
	})
	defer s.Close()

	done := make(chan *SubsystemHealthStatus, 1)

	s.SubsystemHealthPoll(func(err error, status *SubsystemHealthStatus) {
		require.NoError(t, err)
		done <- status
	})

	select {
	case status := <-done:
		assert.Equal(t, int8(25), status.CTemp)
		assert.True(t, status.DriveFunctional())
	case <-time.After(time.Second):
		t.Fatal("health poll callback never ran")
	}
}

func TestScanControllersOrdersByID(t *testing.T) {
	s, _, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		return controllerListResponse(3, 1, 2), nil
	})
	defer s.Close()

	done := make(chan []Controller, 1)

	s.ScanControllers(func(err error, list []Controller) {
		require.NoError(t, err)
		done <- list
	})

	select {
	case list := <-done:
		require.Len(t, list, 3)
		assert.Equal(t, uint16(1), list[0].ID())
		assert.Equal(t, uint16(2), list[1].ID())
		assert.Equal(t, uint16(3), list[2].ID())
	case <-time.After(time.Second):
		t.Fatal("scan callback never ran")
	}
}

func TestScanControllersReportsBadMessage(t *testing.T) {
	s, _, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		return nil, unix.ETIMEDOUT
	})
	defer s.Close()

	done := make(chan error, 1)

	s.ScanControllers(func(err error, list []Controller) {
		assert.Nil(t, list)
		done <- err
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, unix.EBADMSG)
	case <-time.After(time.Second):
		t.Fatal("scan callback never ran")
	}
}

func TestAdminIdentifyRejectsUndersizedPayload(t *testing.T) {
	s, _, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		return buildResponse(nmimtAdminCommand, adminResponseBody(0, make([]byte, 64))), nil
	})
	defer s.Close()

	done := make(chan error, 1)

	s.AdminIdentify(Controller{id: 1}, IdentifyRequest{CNS: CNSSecondaryControllerList}, func(err error, data []byte) {
		assert.Nil(t, data)
		done <- err
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, unix.EBADMSG)
	case <-time.After(time.Second):
		t.Fatal("identify callback never ran")
	}
}

func TestSessionSerializesConcurrentSubmissions(t *testing.T) {
	s, tr, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		time.Sleep(time.Millisecond)
		return healthResponse(30), nil
	})
	defer s.Close()

	const n = 32

	var (
		mu        sync.Mutex
		completed int
	)

	done := make(chan struct{})

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			s.SubsystemHealthPoll(func(err error, _ *SubsystemHealthStatus) {
				require.NoError(t, err)

				mu.Lock()
				completed++
				if completed == n {
					close(done)
				}
				mu.Unlock()
			})
		}()
	}

	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not all callbacks ran")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, n, tr.calls)
}

func TestSessionCloseDrainsQueuedCommands(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})

	var once sync.Once

	s, tr, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		once.Do(func() {
			close(first)
			<-release
		})

		return healthResponse(30), nil
	})

	const queued = 4

	var (
		mu        sync.Mutex
		completed int
	)

	for i := 0; i < queued; i++ {
		s.SubsystemHealthPoll(func(err error, _ *SubsystemHealthStatus) {
			require.NoError(t, err)

			mu.Lock()
			completed++
			mu.Unlock()
		})
	}

	<-first

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	s.Close()

	tr.mu.Lock()
	assert.Equal(t, queued, tr.calls)
	tr.mu.Unlock()

	// Completions are posted to the owner loop during the drain; give the
	// owner loop a moment to run them.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return completed == queued
	}, time.Second, time.Millisecond)
}

func TestSessionRejectsAfterClose(t *testing.T) {
	s, tr, _ := newTestSession(t, 0, func([]byte) ([]byte, error) {
		return healthResponse(30), nil
	})

	s.Close()

	done := make(chan error, 1)

	s.SubsystemHealthPoll(func(err error, status *SubsystemHealthStatus) {
		assert.Nil(t, status)
		done <- err
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, unix.ENODEV)
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 0, tr.calls)
}
