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

package mi

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AF_MCTP sockets move the MCTP message type byte out of the payload and
// into sockaddr_mctp, so the transport strips it on send and restores it
// from the peer address on receive. The codec always sees full messages.

const (
	// MCTP_TAG_OWNER asks the kernel to allocate a tag for the exchange.
	mctpTagOwner = 0x08

	mctpRespTimeoutSec = 2

	maxResponseLen = msgHeaderLen + 16 + IdentifyDataLen + micLen
)

// rawSockaddrMCTP mirrors struct sockaddr_mctp from linux/mctp.h.
// x/sys/unix has the AF_MCTP constant but no sockaddr wrapper yet.
type rawSockaddrMCTP struct {
	Family  uint16
	_       uint16
	Network uint32
	Addr    uint8
	Type    uint8
	Tag     uint8
	_       uint8
}

type mctpSocket struct {
	fd  int
	nid uint32
	eid uint8
}

// openMCTP opens a datagram socket to one endpoint. A receive timeout is
// set so a dead endpoint surfaces as ETIMEDOUT instead of a hang.
func openMCTP(nid int, eid uint8) (Transport, error) {
	fd, err := unix.Socket(unix.AF_MCTP, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open AF_MCTP socket: %w", err)
	}

	tv := unix.Timeval{Sec: mctpRespTimeoutSec}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set receive timeout: %w", err)
	}

	return &mctpSocket{fd: fd, nid: uint32(nid), eid: eid}, nil
}

func (s *mctpSocket) Roundtrip(msg []byte) ([]byte, error) {
	if len(msg) < 1 {
		return nil, unix.EINVAL
	}

	sa := rawSockaddrMCTP{
		Family:  unix.AF_MCTP,
		Network: s.nid,
		Addr:    s.eid,
		Type:    msg[0],
		Tag:     mctpTagOwner,
	}

	payload := msg[1:]

	_, _, errno := unix.Syscall6(unix.SYS_SENDTO,
		uintptr(s.fd),
		uintptr(unsafe.Pointer(&payload[0])), uintptr(len(payload)),
		0,
		uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		return nil, errno
	}

	buf := make([]byte, maxResponseLen)

	var from rawSockaddrMCTP

	fromLen := uint32(unsafe.Sizeof(from))

	n, _, errno := unix.Syscall6(unix.SYS_RECVFROM,
		uintptr(s.fd),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)),
		0,
		uintptr(unsafe.Pointer(&from)), uintptr(unsafe.Pointer(&fromLen)))
	if errno != 0 {
		return nil, errno
	}

	resp := make([]byte, 0, int(n)+1)
	resp = append(resp, from.Type)
	resp = append(resp, buf[:n]...)

	return resp, nil
}

func (s *mctpSocket) Close() error {
	return unix.Close(s.fd)
}
