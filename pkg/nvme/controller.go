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
	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/mi"
)

// Controller is one controller record within a subsystem, keyed by its
// controller id. A primary controller carries non-owning references to
// its secondary controllers; the set is rebuilt whole on every topology
// refresh.
type Controller struct {
	handle      mi.Controller
	secondaries []*Controller
	log         logger.Logger
}

func newController(handle mi.Controller, log logger.Logger) *Controller {
	return &Controller{handle: handle, log: log}
}

// ID returns the controller id, unique within the subsystem.
func (c *Controller) ID() uint16 {
	return c.handle.ID()
}

// Handle returns the protocol token used to address this controller.
func (c *Controller) Handle() mi.Controller {
	return c.handle
}

// SecondaryIDs returns the ids of the secondary controllers associated
// with this controller; empty for secondaries and unassociated primaries.
func (c *Controller) SecondaryIDs() []uint16 {
	ids := make([]uint16, len(c.secondaries))
	for i, sec := range c.secondaries {
		ids[i] = sec.ID()
	}

	return ids
}

// setSecondaries replaces the association set. A nil slice clears it.
func (c *Controller) setSecondaries(secs []*Controller) {
	c.secondaries = secs
}

// start runs the controller's lifecycle hook once discovery has placed it
// in the subsystem map.
func (c *Controller) start() {
	c.log.Debug().Uint16("ctrl", c.ID()).Msg("Controller started")
}
