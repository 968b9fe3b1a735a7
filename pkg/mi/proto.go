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
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// MCTP message framing for NVMe-MI. Every message starts with a 4-byte
// header and ends with a CRC-32C message integrity check computed over
// everything before it, stored little-endian.
const (
	// MsgTypeNVMeMI is the MCTP message type carrying NVMe-MI, with the
	// integrity-check bit set.
	MsgTypeNVMeMI = 0x04
	icBit         = 0x80

	// NVMe-MI message types (NMIMT field of the message header).
	nmimtMICommand    = 0x01
	nmimtAdminCommand = 0x02

	rorResponse = 0x80

	msgHeaderLen = 4
	micLen       = 4

	// MI command opcodes used by this daemon.
	opReadDataStructure   = 0x00
	opSubsystemHealthPoll = 0x01

	// Read NVMe-MI Data Structure types.
	dtypControllerList = 0x02

	// Admin opcodes and Identify CNS values.
	opAdminIdentify            = 0x06
	CNSSecondaryControllerList = 0x15

	// Identify responses are always a full 4KiB data structure.
	IdentifyDataLen = 4096

	healthStatusLen = 8
	maxControllers  = 2047
)

var (
	castagnoli = crc32.MakeTable(crc32.Castagnoli)

	errShortResponse = errors.New("response shorter than message header")
	errBadMIC        = errors.New("message integrity check mismatch")
	errBadMsgType    = errors.New("unexpected MCTP message type")
	errNotResponse   = errors.New("message is not a response")
	errBadCount      = errors.New("controller list count out of range")
)

// StatusError is a nonzero NVMe-MI response status byte.
type StatusError struct {
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nvme-mi status 0x%02x", e.Status)
}

// SubsystemHealthStatus is the NVM Subsystem Health Data Structure returned
// by the health status poll.
type SubsystemHealthStatus struct {
	NSS           uint8  // subsystem status flags
	SmartWarnings uint8  // composite SMART warnings, bits active-low
	CTemp         int8   // composite temperature, degrees Celsius
	PDLU          uint8  // percentage drive life used
	CCS           uint16 // composite controller status
}

// DriveFunctional reports the Drive Functional bit of the subsystem status.
func (s *SubsystemHealthStatus) DriveFunctional() bool {
	return s.NSS&0x20 != 0
}

func appendMIC(msg []byte) []byte {
	return binary.LittleEndian.AppendUint32(msg, crc32.Checksum(msg, castagnoli))
}

// checkMessage verifies framing shared by every response: minimum length,
// message type, response direction and the trailing MIC. It returns the
// message body between the header and the MIC.
func checkMessage(raw []byte, nmimt uint8) ([]byte, error) {
	if len(raw) < msgHeaderLen+micLen {
		return nil, errShortResponse
	}

	if raw[0] != MsgTypeNVMeMI|icBit {
		return nil, fmt.Errorf("%w: 0x%02x", errBadMsgType, raw[0])
	}

	body := raw[:len(raw)-micLen]

	mic := binary.LittleEndian.Uint32(raw[len(raw)-micLen:])
	if crc32.Checksum(body, castagnoli) != mic {
		return nil, errBadMIC
	}

	if raw[1]&rorResponse == 0 {
		return nil, errNotResponse
	}

	if got := (raw[1] >> 3) & 0x0f; got != nmimt {
		return nil, fmt.Errorf("%w: NMIMT 0x%02x", errBadMsgType, got)
	}

	return body[msgHeaderLen:], nil
}

func msgHeader(nmimt uint8) [msgHeaderLen]byte {
	return [msgHeaderLen]byte{MsgTypeNVMeMI | icBit, nmimt << 3, 0, 0}
}

// encodeMIRequest frames an MI command: header, opcode, three reserved
// bytes, the two command dwords, then the MIC.
func encodeMIRequest(opcode uint8, dw0, dw1 uint32) []byte {
	hdr := msgHeader(nmimtMICommand)

	msg := make([]byte, 0, msgHeaderLen+12+micLen)
	msg = append(msg, hdr[:]...)
	msg = append(msg, opcode, 0, 0, 0)
	msg = binary.LittleEndian.AppendUint32(msg, dw0)
	msg = binary.LittleEndian.AppendUint32(msg, dw1)

	return appendMIC(msg)
}

// decodeMIResponse validates framing and the status byte, returning the
// response data that follows the status and NMRESP fields.
func decodeMIResponse(raw []byte) ([]byte, error) {
	body, err := checkMessage(raw, nmimtMICommand)
	if err != nil {
		return nil, err
	}

	if len(body) < 4 {
		return nil, errShortResponse
	}

	if body[0] != 0 {
		return nil, &StatusError{Status: body[0]}
	}

	return body[4:], nil
}

func encodeHealthPollRequest() []byte {
	// Dword 1 bit 31: clear status after read.
	return encodeMIRequest(opSubsystemHealthPoll, 0, 1<<31)
}

func decodeHealthPollResponse(raw []byte) (*SubsystemHealthStatus, error) {
	data, err := decodeMIResponse(raw)
	if err != nil {
		return nil, err
	}

	if len(data) < healthStatusLen {
		return nil, errShortResponse
	}

	return &SubsystemHealthStatus{
		NSS:           data[0],
		SmartWarnings: data[1],
		CTemp:         int8(data[2]),
		PDLU:          data[3],
		CCS:           binary.LittleEndian.Uint16(data[4:6]),
	}, nil
}

func encodeControllerListRequest() []byte {
	return encodeMIRequest(opReadDataStructure, dtypControllerList<<24, 0)
}

// decodeControllerListResponse parses the controller list data structure:
// a little-endian u16 count followed by that many u16 controller ids.
func decodeControllerListResponse(raw []byte) ([]uint16, error) {
	data, err := decodeMIResponse(raw)
	if err != nil {
		return nil, err
	}

	if len(data) < 2 {
		return nil, errShortResponse
	}

	count := int(binary.LittleEndian.Uint16(data[0:2]))
	if count > maxControllers {
		return nil, fmt.Errorf("%w: %d", errBadCount, count)
	}

	if len(data) < 2+2*count {
		return nil, errShortResponse
	}

	ids := make([]uint16, count)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint16(data[2+2*i:])
	}

	return ids, nil
}

// IdentifyRequest selects which identify data structure to fetch.
type IdentifyRequest struct {
	CNS   uint8
	NSID  uint32
	CNTID uint16
}

// encodeAdminRequest frames an admin command tunnelled over MI: header,
// opcode, command flags, target controller id, SQE dwords 1-5, the data
// offset/length pair, and SQE dwords 10-15.
func encodeAdminRequest(opcode uint8, ctlid uint16, nsid uint32, dw10 uint32, dlen uint32) []byte {
	hdr := msgHeader(nmimtAdminCommand)

	msg := make([]byte, 0, msgHeaderLen+64+micLen)
	msg = append(msg, hdr[:]...)
	msg = append(msg, opcode, 0)
	msg = binary.LittleEndian.AppendUint16(msg, ctlid)

	// SQE dword 1 carries the namespace id; dwords 2-5 are unused here.
	msg = binary.LittleEndian.AppendUint32(msg, nsid)
	msg = append(msg, make([]byte, 16)...)

	// Data offset and requested response length.
	msg = binary.LittleEndian.AppendUint32(msg, 0)
	msg = binary.LittleEndian.AppendUint32(msg, dlen)
	msg = append(msg, make([]byte, 8)...)

	// SQE dwords 10-15.
	msg = binary.LittleEndian.AppendUint32(msg, dw10)
	msg = append(msg, make([]byte, 20)...)

	return appendMIC(msg)
}

func encodeIdentifyRequest(ctlid uint16, req IdentifyRequest) []byte {
	dw10 := uint32(req.CNS) | uint32(req.CNTID)<<16
	return encodeAdminRequest(opAdminIdentify, ctlid, req.NSID, dw10, IdentifyDataLen)
}

// decodeAdminResponse validates framing and returns the response data that
// follows the status byte and the three completion dwords.
func decodeAdminResponse(raw []byte) ([]byte, error) {
	body, err := checkMessage(raw, nmimtAdminCommand)
	if err != nil {
		return nil, err
	}

	if len(body) < 16 {
		return nil, errShortResponse
	}

	if body[0] != 0 {
		return nil, &StatusError{Status: body[0]}
	}

	return body[16:], nil
}
