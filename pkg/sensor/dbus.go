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

package sensor

import (
	"fmt"
	"path"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	valueInterface        = "xyz.openbmc_project.Sensor.Value"
	availabilityInterface = "xyz.openbmc_project.State.Decorator.Availability"
	operationalInterface  = "xyz.openbmc_project.State.Decorator.OperationalStatus"
	associationInterface  = "xyz.openbmc_project.Association.Definitions"
	driveInterface        = "xyz.openbmc_project.Inventory.Item.Drive"
	storageInterface      = "xyz.openbmc_project.Inventory.Item.Storage"

	temperaturePathPrefix = "/xyz/openbmc_project/sensors/temperature/"

	driveProtocolNVMe = driveInterface + ".DriveProtocol.NVMe"
	driveTypeSSD      = driveInterface + ".DriveType.SSD"
)

// Association is one entry of the Associations property, wire type (sss).
type Association struct {
	Forward string
	Reverse string
	Path    string
}

// DBusTemperature is a temperature sensor mirrored onto the bus. State
// transitions update the exported properties in place.
type DBusTemperature struct {
	*Value
	props *prop.Properties
}

func (s *DBusTemperature) MarkAvailable(available bool) {
	s.Value.MarkAvailable(available)
	s.props.SetMust(availabilityInterface, "Available", available)
}

func (s *DBusTemperature) MarkFunctional(functional bool) {
	s.Value.MarkFunctional(functional)
	s.props.SetMust(operationalInterface, "Functional", functional)
	s.props.SetMust(valueInterface, "Value", s.Reading())
}

func (s *DBusTemperature) IncrementError() {
	wasFunctional := s.Functional()

	s.Value.IncrementError()

	if wasFunctional && !s.Functional() {
		s.props.SetMust(operationalInterface, "Functional", false)
		s.props.SetMust(valueInterface, "Value", s.Reading())
	}
}

func (s *DBusTemperature) UpdateValue(value float64) {
	s.Value.UpdateValue(value)
	s.props.SetMust(valueInterface, "Value", s.Reading())
	s.props.SetMust(availabilityInterface, "Available", s.Available())
	s.props.SetMust(operationalInterface, "Functional", s.Functional())
}

// DBusFactory publishes sensors on an existing bus connection.
type DBusFactory struct {
	conn *dbus.Conn
}

func NewDBusFactory(conn *dbus.Conn) *DBusFactory {
	return &DBusFactory{conn: conn}
}

// Temperature exports a sensor object under the temperature namespace with
// the Sensor.Value, Availability and OperationalStatus interfaces, plus an
// association back to the inventory item it monitors.
func (f *DBusFactory) Temperature(name string, inventoryPath string) (Sensor, error) {
	value := NewValue(name)
	objPath := dbus.ObjectPath(temperaturePathPrefix + escapeName(name))

	propSpec := prop.Map{
		valueInterface: {
			"Value":    {Value: value.Reading(), Emit: prop.EmitTrue},
			"MinValue": {Value: float64(MinValue), Emit: prop.EmitTrue},
			"MaxValue": {Value: float64(MaxValue), Emit: prop.EmitTrue},
			"Unit":     {Value: "xyz.openbmc_project.Sensor.Value.Unit.DegreesC", Emit: prop.EmitTrue},
		},
		availabilityInterface: {
			"Available": {Value: true, Emit: prop.EmitTrue},
		},
		operationalInterface: {
			"Functional": {Value: true, Emit: prop.EmitTrue},
		},
	}

	if inventoryPath != "" {
		propSpec[associationInterface] = map[string]*prop.Prop{
			"Associations": {
				Value: []Association{{Forward: "inventory", Reverse: "sensors", Path: inventoryPath}},
				Emit:  prop.EmitTrue,
			},
		}
	}

	props, err := prop.Export(f.conn, objPath, propSpec)
	if err != nil {
		return nil, fmt.Errorf("export sensor %s: %w", name, err)
	}

	return &DBusTemperature{Value: value, props: props}, nil
}

// RegisterSubsystemInventory exports the Drive and Storage items for a
// subsystem along with the chassis-to-storage association derived from its
// inventory path.
func RegisterSubsystemInventory(conn *dbus.Conn, inventoryPath string) error {
	objPath := dbus.ObjectPath(inventoryPath)

	_, err := prop.Export(conn, objPath, prop.Map{
		driveInterface: {
			"Protocol": {Value: driveProtocolNVMe, Emit: prop.EmitTrue},
			"Type":     {Value: driveTypeSSD, Emit: prop.EmitTrue},
		},
		storageInterface: {},
		associationInterface: {
			"Associations": {
				Value: []Association{StorageAssociation(inventoryPath)},
				Emit:  prop.EmitTrue,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("export subsystem inventory %s: %w", inventoryPath, err)
	}

	return nil
}

// StorageAssociation builds the chassis-to-storage association for a
// subsystem: the parent of its inventory path is the enclosing chassis.
func StorageAssociation(inventoryPath string) Association {
	return Association{
		Forward: "chassis",
		Reverse: "storage",
		Path:    path.Dir(inventoryPath),
	}
}

// escapeName maps a sensor name onto the bus object-path alphabet.
func escapeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
