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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildResponse frames a response message the way an endpoint would:
// header with the response bit, a body, and a trailing MIC.
func buildResponse(nmimt uint8, body []byte) []byte {
	msg := []byte{MsgTypeNVMeMI | icBit, nmimt<<3 | rorResponse, 0, 0}
	msg = append(msg, body...)

	return appendMIC(msg)
}

func miResponseBody(status uint8, data []byte) []byte {
	body := []byte{status, 0, 0, 0}
	return append(body, data...)
}

func adminResponseBody(status uint8, data []byte) []byte {
	body := make([]byte, 16)
	body[0] = status

	return append(body, data...)
}

func TestEncodeMIRequestFraming(t *testing.T) {
	msg := encodeMIRequest(opSubsystemHealthPoll, 0, 1<<31)

	require.Len(t, msg, msgHeaderLen+12+micLen)
	assert.Equal(t, uint8(MsgTypeNVMeMI|icBit), msg[0])
	assert.Equal(t, uint8(nmimtMICommand<<3), msg[1])
	assert.Equal(t, uint8(opSubsystemHealthPoll), msg[4])

	// Dword 1 carries the clear-status bit.
	dw1 := binary.LittleEndian.Uint32(msg[12:16])
	assert.Equal(t, uint32(1<<31), dw1)
}

func TestDecodeHealthPollResponse(t *testing.T) {
	data := []byte{0x20, 0xff, 25, 3, 0x01, 0x00, 0, 0}
	raw := buildResponse(nmimtMICommand, miResponseBody(0, data))

	status, err := decodeHealthPollResponse(raw)
	require.NoError(t, err)

	assert.Equal(t, uint8(0x20), status.NSS)
	assert.True(t, status.DriveFunctional())
	assert.Equal(t, int8(25), status.CTemp)
	assert.Equal(t, uint8(3), status.PDLU)
	assert.Equal(t, uint16(1), status.CCS)
}

func TestDecodeHealthPollResponseNegativeTemperature(t *testing.T) {
	data := []byte{0x20, 0xff, 0xd8, 0, 0, 0, 0, 0}
	raw := buildResponse(nmimtMICommand, miResponseBody(0, data))

	status, err := decodeHealthPollResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, int8(-40), status.CTemp)
}

func TestDecodeMIResponseStatusError(t *testing.T) {
	raw := buildResponse(nmimtMICommand, miResponseBody(0x04, nil))

	_, err := decodeMIResponse(raw)
	require.Error(t, err)

	var statusErr *StatusError

	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, uint8(0x04), statusErr.Status)
}

func TestDecodeMIResponseBadMIC(t *testing.T) {
	raw := buildResponse(nmimtMICommand, miResponseBody(0, make([]byte, 8)))
	raw[len(raw)-1] ^= 0xff

	_, err := decodeMIResponse(raw)
	assert.ErrorIs(t, err, errBadMIC)
}

func TestDecodeMIResponseTruncated(t *testing.T) {
	_, err := decodeMIResponse([]byte{MsgTypeNVMeMI | icBit, 0})
	assert.ErrorIs(t, err, errShortResponse)
}

func TestDecodeControllerListResponse(t *testing.T) {
	data := make([]byte, 2+3*2)
	binary.LittleEndian.PutUint16(data[0:], 3)
	binary.LittleEndian.PutUint16(data[2:], 1)
	binary.LittleEndian.PutUint16(data[4:], 2)
	binary.LittleEndian.PutUint16(data[6:], 3)

	raw := buildResponse(nmimtMICommand, miResponseBody(0, data))

	ids, err := decodeControllerListResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, ids)
}

func TestDecodeControllerListResponseCountBeyondPayload(t *testing.T) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint16(data[0:], 100)

	raw := buildResponse(nmimtMICommand, miResponseBody(0, data))

	_, err := decodeControllerListResponse(raw)
	assert.ErrorIs(t, err, errShortResponse)
}

func TestDecodeControllerListResponseCountOutOfRange(t *testing.T) {
	// Count exceeds the architectural controller limit even though the
	// payload is present; this is an invalid count, not truncation.
	count := maxControllers + 1
	data := make([]byte, 2+2*count)
	binary.LittleEndian.PutUint16(data[0:], uint16(count))

	raw := buildResponse(nmimtMICommand, miResponseBody(0, data))

	_, err := decodeControllerListResponse(raw)
	assert.ErrorIs(t, err, errBadCount)
	assert.NotErrorIs(t, err, errShortResponse)
}

func TestEncodeIdentifyRequest(t *testing.T) {
	msg := encodeIdentifyRequest(7, IdentifyRequest{CNS: CNSSecondaryControllerList})

	require.Len(t, msg, msgHeaderLen+64+micLen)
	assert.Equal(t, uint8(nmimtAdminCommand<<3), msg[1])
	assert.Equal(t, uint8(opAdminIdentify), msg[4])
	assert.Equal(t, uint16(7), binary.LittleEndian.Uint16(msg[6:8]))

	// Requested response length covers the whole identify structure.
	dlen := binary.LittleEndian.Uint32(msg[32:36])
	assert.Equal(t, uint32(IdentifyDataLen), dlen)

	dw10 := binary.LittleEndian.Uint32(msg[44:48])
	assert.Equal(t, uint32(CNSSecondaryControllerList), dw10)
}

func TestDecodeAdminResponse(t *testing.T) {
	payload := make([]byte, 32)
	payload[0] = 0xab

	raw := buildResponse(nmimtAdminCommand, adminResponseBody(0, payload))

	data, err := decodeAdminResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDecodeAdminResponseWrongMessageType(t *testing.T) {
	raw := buildResponse(nmimtMICommand, adminResponseBody(0, nil))

	_, err := decodeAdminResponse(raw)
	assert.ErrorIs(t, err, errBadMsgType)
}
