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

// Package mi implements the NVMe Management Interface over MCTP: the wire
// codec, the endpoint transport, and the session that serializes commands
// against one endpoint through a private worker loop.
package mi

import (
	"sync"

	"github.com/edgemetal/nvmemond/pkg/logger"
)

// Transport carries one framed request to an endpoint and returns the
// framed response. A Transport may block on hardware I/O; sessions only
// drive it from their worker loop.
type Transport interface {
	Roundtrip(msg []byte) ([]byte, error)
	Close() error
}

// OpenFunc opens a transport to the endpoint addressed by (nid, eid).
type OpenFunc func(nid int, eid uint8) (Transport, error)

// Root is the process-wide handle sessions are opened from. It exists for
// the whole process; there is no teardown. Sessions receive it explicitly
// at construction instead of reaching for package state.
type Root struct {
	log  logger.Logger
	open OpenFunc
}

// NewRoot creates a root with an explicit transport opener. Tests use this
// to substitute an in-memory transport.
func NewRoot(log logger.Logger, open OpenFunc) *Root {
	return &Root{log: log, open: open}
}

var (
	defaultRootOnce sync.Once
	defaultRoot     *Root
)

// DefaultRoot returns the process-wide root, creating it on first use with
// the AF_MCTP socket transport. The logger supplied on the first call wins.
func DefaultRoot(log logger.Logger) *Root {
	defaultRootOnce.Do(func() {
		defaultRoot = NewRoot(log, openMCTP)
	})

	return defaultRoot
}
