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

// Package nvme orchestrates drive subsystems: controller discovery,
// primary/secondary topology reconstruction and the periodic temperature
// poll loop. A subsystem talks to its drive through exactly one protocol
// variant, either the full management interface or the basic SMBus
// status block.
package nvme

import (
	"errors"

	"github.com/edgemetal/nvmemond/pkg/mi"
)

// MiIntf is the management-interface variant, implemented by *mi.Session.
// Every callback runs exactly once, on the owner loop.
type MiIntf interface {
	SubsystemHealthPoll(cb func(error, *mi.SubsystemHealthStatus))
	ScanControllers(cb func(error, []mi.Controller))
	AdminIdentify(ctrl mi.Controller, req mi.IdentifyRequest, cb func(error, []byte))
}

// DriveStatus is the drive status block returned by the NVMe Basic
// Management Command.
type DriveStatus struct {
	Status        uint8
	SmartWarnings uint8
	Temp          int8
	PDLU          uint8
}

// BasicIntf is the register-polling variant for drives without a full
// management interface. The callback runs exactly once, on the owner loop.
type BasicIntf interface {
	GetStatus(cb func(error, *DriveStatus))
}

// Interface selects the protocol variant for a subsystem. Exactly one
// field must be set; the choice is fixed at subsystem construction.
type Interface struct {
	MI    MiIntf
	Basic BasicIntf
}

var errInterfaceVariant = errors.New("exactly one interface variant must be set")

func (i Interface) validate() error {
	if (i.MI != nil) == (i.Basic != nil) {
		return errInterfaceVariant
	}

	return nil
}
