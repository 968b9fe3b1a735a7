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

package nvme

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/smbus"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

const (
	// basicStatusCommand is the NVMe Basic Management Command register
	// offset for the drive status block.
	basicStatusCommand = 0x00

	// The status block: status flags, SMART warnings, composite
	// temperature, drive life used, two reserved bytes.
	basicStatusLen = 6
)

// BasicDevice implements BasicIntf over an SMBus block read. Bus access
// serializes through a private worker loop the same way an MI session
// serializes endpoint commands; completions post back to the owner loop.
type BasicDevice struct {
	dev    smbus.Device
	worker *taskq.Loop
	owner  *taskq.Loop
	log    logger.Logger

	closed atomic.Bool
}

// NewBasicDevice wraps an open SMBus device and starts the worker loop.
func NewBasicDevice(dev smbus.Device, owner *taskq.Loop, log logger.Logger) *BasicDevice {
	return &BasicDevice{
		dev:    dev,
		worker: taskq.New(),
		owner:  owner,
		log:    log,
	}
}

// GetStatus fetches and parses the drive status block. The callback runs
// exactly once, on the owner loop.
func (b *BasicDevice) GetStatus(cb func(error, *DriveStatus)) {
	fail := func(err error) {
		if postErr := b.owner.Post(func() { cb(err, nil) }); postErr != nil {
			b.log.Warn().Err(postErr).Msg("Dropped completion: owner loop stopped")
		}
	}

	if b.closed.Load() {
		fail(unix.ENODEV)
		return
	}

	err := b.worker.Post(func() {
		data, err := b.dev.BlockRead(basicStatusCommand)
		if err != nil {
			b.log.Error().Err(err).Msg("Failed to read drive status block")
			fail(err)

			return
		}

		if len(data) < basicStatusLen {
			fail(fmt.Errorf("%w: drive status block %d bytes", unix.EBADMSG, len(data)))
			return
		}

		status := &DriveStatus{
			Status:        data[0],
			SmartWarnings: data[1],
			Temp:          int8(data[2]),
			PDLU:          data[3],
		}

		if postErr := b.owner.Post(func() { cb(nil, status) }); postErr != nil {
			b.log.Warn().Err(postErr).Msg("Dropped completion: owner loop stopped")
		}
	})
	if err != nil {
		fail(unix.ENODEV)
	}
}

// Close drains queued reads, then closes the bus device.
func (b *BasicDevice) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.worker.Stop()

	if err := b.dev.Close(); err != nil {
		b.log.Warn().Err(err).Msg("Failed to close SMBus device")
	}
}
