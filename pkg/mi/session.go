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
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/mctp"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

// setupRetries is how many times endpoint resolution is retried after the
// first failure before session construction gives up.
const setupRetries = 5

// Controller is an opaque token for one controller reachable through a
// session. It is only meaningful to the session that produced it.
type Controller struct {
	id uint16
}

// ID returns the controller id, unique within the subsystem.
func (c Controller) ID() uint16 {
	return c.id
}

// ControllerAt builds a token for a known controller id, for callers that
// address a controller without scanning first.
func ControllerAt(id uint16) Controller {
	return Controller{id: id}
}

// Session owns one NVMe-MI endpoint. All commands funnel through a private
// worker loop, so at most one command is in flight on the endpoint at any
// instant and commands execute in submission order. Results are handed
// back by posting the callback onto the owner loop; callbacks never run on
// the worker.
type Session struct {
	bus  int
	addr int
	eid  uint8
	nid  int
	path string

	tr     Transport
	worker *taskq.Loop
	owner  *taskq.Loop
	log    logger.Logger

	closed atomic.Bool
}

// NewSession resolves the device's MCTP address, opens the endpoint and
// starts the worker loop. Resolution is retried up to setupRetries times;
// exhausting the retries or failing to open the endpoint fails
// construction, and no partially-initialized session is returned.
func NewSession(ctx context.Context, root *Root, owner *taskq.Loop, resolver mctp.Resolver, bus, addr int) (*Session, error) {
	log := root.log

	var (
		ep  mctp.Endpoint
		err error
	)

	for attempt := 0; ; attempt++ {
		ep, err = resolver.SetupEndpoint(ctx, mctp.I2CNetwork(bus), uint8(addr))
		if err == nil {
			break
		}

		if attempt >= setupRetries {
			return nil, fmt.Errorf("failed to set up MCTP endpoint for bus %d addr 0x%02x: %w", bus, addr, err)
		}

		log.Warn().
			Err(err).
			Int("bus", bus).
			Int("addr", addr).
			Int("attempt", attempt+1).
			Msg("Retrying MCTP endpoint setup")
	}

	tr, err := root.open(ep.NID, ep.EID)
	if err != nil {
		return nil, fmt.Errorf("failed to open MCTP endpoint %d:%d: %w", ep.NID, ep.EID, err)
	}

	s := &Session{
		bus:    bus,
		addr:   addr,
		eid:    ep.EID,
		nid:    ep.NID,
		path:   ep.Path,
		tr:     tr,
		worker: taskq.New(),
		owner:  owner,
		log:    log,
	}

	log.Info().
		Int("bus", bus).
		Int("addr", addr).
		Int("nid", s.nid).
		Uint8("eid", s.eid).
		Msg("Opened NVMe-MI endpoint")

	return s, nil
}

// Endpoint returns the resolved (network id, endpoint id) identity.
func (s *Session) Endpoint() (nid int, eid uint8) {
	return s.nid, s.eid
}

// Close stops the worker, which drains any commands accepted before the
// stop, then closes the endpoint. It does not return while the worker
// goroutine is still running. In-flight commands complete; they are not
// aborted.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.worker.Stop()

	if err := s.tr.Close(); err != nil {
		s.log.Warn().Err(err).Int("nid", s.nid).Uint8("eid", s.eid).Msg("Failed to close MCTP endpoint")
	}
}

// postOwner hands a completion back to the owner loop. A completion that
// cannot be delivered because the owner has already stopped is logged and
// dropped; its session is being torn down with it.
func (s *Session) postOwner(fn func()) {
	if err := s.owner.Post(fn); err != nil {
		s.log.Warn().Err(err).Msg("Dropped completion: owner loop stopped")
	}
}

// submit posts a command task to the worker. A session that is already
// closed or stopping is reported to the callback as a device-absent error
// on the owner loop; the worker is never touched.
func (s *Session) submit(task taskq.Task, fail func(error)) {
	if s.closed.Load() {
		s.postOwner(func() { fail(unix.ENODEV) })
		return
	}

	if err := s.worker.Post(task); err != nil {
		if !errors.Is(err, taskq.ErrStopped) {
			s.log.Error().Err(err).Msg("Unexpected worker post failure")
		}

		s.postOwner(func() { fail(unix.ENODEV) })
	}
}

// SubsystemHealthPoll fetches the NVM subsystem health data structure.
// The callback runs exactly once, on the owner loop.
func (s *Session) SubsystemHealthPoll(cb func(error, *SubsystemHealthStatus)) {
	s.submit(func() {
		resp, err := s.tr.Roundtrip(encodeHealthPollRequest())
		if err != nil {
			s.log.Error().Err(err).Int("nid", s.nid).Uint8("eid", s.eid).
				Msg("Subsystem health status poll failed")
			s.postOwner(func() { cb(err, nil) })

			return
		}

		status, err := decodeHealthPollResponse(resp)
		if err != nil {
			s.log.Error().Err(err).Int("nid", s.nid).Uint8("eid", s.eid).
				Msg("Malformed health status response")
			s.postOwner(func() { cb(err, nil) })

			return
		}

		s.postOwner(func() { cb(nil, status) })
	}, func(err error) { cb(err, nil) })
}

// ScanControllers enumerates the controllers behind the endpoint. Failures
// are reported as a bad-message error; success yields controller tokens
// ordered by controller id. The callback runs exactly once, on the owner
// loop.
func (s *Session) ScanControllers(cb func(error, []Controller)) {
	s.submit(func() {
		resp, err := s.tr.Roundtrip(encodeControllerListRequest())
		if err != nil {
			s.log.Error().Err(err).Int("nid", s.nid).Uint8("eid", s.eid).
				Msg("Failed to scan controllers")
			s.postOwner(func() { cb(unix.EBADMSG, nil) })

			return
		}

		ids, err := decodeControllerListResponse(resp)
		if err != nil {
			s.log.Error().Err(err).Int("nid", s.nid).Uint8("eid", s.eid).
				Msg("Malformed controller list response")
			s.postOwner(func() { cb(unix.EBADMSG, nil) })

			return
		}

		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		list := make([]Controller, len(ids))
		for i, id := range ids {
			list[i] = Controller{id: id}
		}

		s.postOwner(func() { cb(nil, list) })
	}, func(err error) { cb(err, nil) })
}

// AdminIdentify issues an Identify admin command against a controller and
// returns the raw 4KiB payload. Undersized responses are an error. The
// callback runs exactly once, on the owner loop.
func (s *Session) AdminIdentify(ctrl Controller, req IdentifyRequest, cb func(error, []byte)) {
	s.submit(func() {
		resp, err := s.tr.Roundtrip(encodeIdentifyRequest(ctrl.ID(), req))
		if err != nil {
			s.log.Error().Err(err).Uint16("ctrl", ctrl.ID()).Uint8("cns", req.CNS).
				Msg("Identify command failed")
			s.postOwner(func() { cb(err, nil) })

			return
		}

		data, err := decodeAdminResponse(resp)
		if err != nil {
			s.log.Error().Err(err).Uint16("ctrl", ctrl.ID()).Uint8("cns", req.CNS).
				Msg("Malformed identify response")
			s.postOwner(func() { cb(err, nil) })

			return
		}

		if len(data) < IdentifyDataLen {
			s.postOwner(func() { cb(fmt.Errorf("%w: identify payload %d bytes", unix.EBADMSG, len(data)), nil) })
			return
		}

		s.postOwner(func() { cb(nil, data[:IdentifyDataLen]) })
	}, func(err error) { cb(err, nil) })
}
