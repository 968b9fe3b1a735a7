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

// Package smbus provides the SMBus block-read access used by the NVMe
// Basic Management Command path for drives without a full management
// interface.
package smbus

// Device is one addressed device on an SMBus/I2C link. BlockRead may
// block on the bus; callers serialize access through a worker loop.
type Device interface {
	BlockRead(command uint8) ([]byte, error)
	Close() error
}
