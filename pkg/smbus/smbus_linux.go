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

//go:build linux

package smbus

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers from linux/i2c-dev.h; not exported by x/sys/unix.
const (
	i2cSlave = 0x0703
	i2cSMBus = 0x0720

	i2cSmbusRead      = 1
	i2cSmbusBlockData = 5

	// BlockMax is the SMBus block transaction size limit.
	BlockMax = 32
)

// smbusIoctlData mirrors struct i2c_smbus_ioctl_data from linux/i2c-dev.h.
type smbusIoctlData struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *[BlockMax + 2]byte
}

type smbusDevice struct {
	fd   int
	bus  int
	addr uint8
}

// Open opens /dev/i2c-<bus> and targets the given device address.
func Open(bus int, addr uint8) (Device, error) {
	fd, err := unix.Open(fmt.Sprintf("/dev/i2c-%d", bus), unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d: %w", bus, err)
	}

	if err := unix.IoctlSetInt(fd, i2cSlave, int(addr)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("select i2c addr 0x%02x on bus %d: %w", addr, bus, err)
	}

	return &smbusDevice{fd: fd, bus: bus, addr: addr}, nil
}

// BlockRead issues an SMBus block read and returns the data bytes the
// device reported. The device controls the length, up to BlockMax.
func (d *smbusDevice) BlockRead(command uint8) ([]byte, error) {
	var buf [BlockMax + 2]byte

	args := smbusIoctlData{
		readWrite: i2cSmbusRead,
		command:   command,
		size:      i2cSmbusBlockData,
		data:      &buf,
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL,
		uintptr(d.fd), i2cSMBus, uintptr(unsafe.Pointer(&args)))
	if errno != 0 {
		return nil, fmt.Errorf("smbus block read bus %d addr 0x%02x: %w", d.bus, d.addr, errno)
	}

	n := int(buf[0])
	if n > BlockMax {
		n = BlockMax
	}

	data := make([]byte, n)
	copy(data, buf[1:1+n])

	return data, nil
}

func (d *smbusDevice) Close() error {
	return unix.Close(d.fd)
}
