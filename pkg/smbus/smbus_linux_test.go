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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// The ioctl numbers and argument struct mirror linux/i2c-dev.h; the
// kernel ABI is the source of truth for these values.
func TestI2CDevABI(t *testing.T) {
	assert.Equal(t, 0x0703, i2cSlave)
	assert.Equal(t, 0x0720, i2cSMBus)
	assert.Equal(t, 1, i2cSmbusRead)
	assert.Equal(t, 5, i2cSmbusBlockData)
}

func TestSmbusIoctlDataLayout(t *testing.T) {
	var args smbusIoctlData

	assert.Equal(t, uintptr(0), unsafe.Offsetof(args.readWrite))
	assert.Equal(t, uintptr(1), unsafe.Offsetof(args.command))
	assert.Equal(t, uintptr(4), unsafe.Offsetof(args.size))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(args.data))
	assert.Equal(t, uintptr(8)+unsafe.Sizeof(args.data), unsafe.Sizeof(args))
}
