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

// Package monitor is the daemon service: it builds the configured drive
// subsystems, their transport sessions and sensor publication, and tears
// them down on shutdown.
package monitor

import (
	"errors"
	"fmt"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/telemetry"
)

// InterfaceVariant names the protocol a subsystem speaks.
type InterfaceVariant string

const (
	// VariantMI is NVMe-MI over MCTP.
	VariantMI InterfaceVariant = "mi"

	// VariantBasic is the NVMe Basic Management Command over SMBus.
	VariantBasic InterfaceVariant = "basic"
)

// i2cAddrMax is the last valid 7-bit I2C device address.
const i2cAddrMax = 0x7f

var (
	errNoSubsystems   = errors.New("no subsystems configured")
	errSubsystemName  = errors.New("subsystem needs a name or an inventory path")
	errDuplicateName  = errors.New("duplicate subsystem name")
	errUnknownVariant = errors.New("unknown interface variant")
	errBadBus         = errors.New("bus must be non-negative")
	errBadAddress     = errors.New("address must be a 7-bit I2C address")
	errMIRequiresDBus = errors.New("mi subsystems need D-Bus for endpoint resolution")
)

// SubsystemSpec configures one drive subsystem.
type SubsystemSpec struct {
	// Name is the fallback sensor name when none can be derived from
	// the inventory path.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// InventoryPath is the drive's inventory object path.
	InventoryPath string `json:"inventory_path" yaml:"inventory_path"`

	// Interface selects the protocol variant, "mi" or "basic".
	Interface InterfaceVariant `json:"interface" yaml:"interface"`

	// Bus and Address locate the drive on I2C.
	Bus     int `json:"bus" yaml:"bus"`
	Address int `json:"address" yaml:"address"`
}

// Config is the daemon configuration.
type Config struct {
	Subsystems []SubsystemSpec `json:"subsystems" yaml:"subsystems"`

	// NATS enables telemetry event publishing when its URL is set.
	NATS *telemetry.Config `json:"nats,omitempty" yaml:"nats,omitempty"`

	// DisableDBus runs without sensor publication and endpoint
	// resolution, for bring-up on hosts without a system bus. Only
	// basic subsystems can run in this mode.
	DisableDBus bool `json:"disable_dbus,omitempty" yaml:"disable_dbus,omitempty"`

	Logging *logger.Config `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if len(c.Subsystems) == 0 {
		return errNoSubsystems
	}

	seen := make(map[string]struct{}, len(c.Subsystems))

	for i := range c.Subsystems {
		spec := &c.Subsystems[i]

		if err := spec.validate(); err != nil {
			return fmt.Errorf("subsystem %d: %w", i, err)
		}

		if c.DisableDBus && spec.Interface == VariantMI {
			return fmt.Errorf("subsystem %d: %w", i, errMIRequiresDBus)
		}

		key := spec.Name + "|" + spec.InventoryPath
		if _, dup := seen[key]; dup {
			return fmt.Errorf("subsystem %d: %w: %s", i, errDuplicateName, spec.Name)
		}

		seen[key] = struct{}{}
	}

	return nil
}

func (s *SubsystemSpec) validate() error {
	if s.Name == "" && s.InventoryPath == "" {
		return errSubsystemName
	}

	switch s.Interface {
	case VariantMI, VariantBasic:
	default:
		return fmt.Errorf("%w: %q", errUnknownVariant, s.Interface)
	}

	if s.Bus < 0 {
		return errBadBus
	}

	if s.Address <= 0 || s.Address > i2cAddrMax {
		return fmt.Errorf("%w: 0x%02x", errBadAddress, s.Address)
	}

	return nil
}
