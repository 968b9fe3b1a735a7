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

// Package mctp resolves MCTP endpoint addresses through mctpd. A device is
// named by its physical location (I2C bus and address); mctpd assigns it a
// routable (network id, endpoint id) pair and hands back the endpoint's
// management object path.
package mctp

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	mctpdService   = "xyz.openbmc_project.MCTP"
	mctpdPath      = "/xyz/openbmc_project/mctp"
	mctpdInterface = "au.com.CodeConstruct.MCTP"
	setupEndpoint  = mctpdInterface + ".SetupEndpoint"
)

// Endpoint is the routable identity mctpd assigned to a device.
type Endpoint struct {
	EID  uint8
	NID  int
	Path string
}

// Resolver assigns MCTP addressing to a physical device. The network name
// identifies the transport link (for I2C, "mctpi2c<bus>"); addr is the
// device's address on that link.
type Resolver interface {
	SetupEndpoint(ctx context.Context, network string, addr uint8) (Endpoint, error)
}

// I2CNetwork returns the mctpd link name for an I2C bus.
func I2CNetwork(bus int) string {
	return fmt.Sprintf("mctpi2c%d", bus)
}

// DBusResolver resolves endpoints by calling mctpd on the system bus.
type DBusResolver struct {
	conn *dbus.Conn
}

// NewDBusResolver creates a resolver backed by an existing bus connection.
func NewDBusResolver(conn *dbus.Conn) *DBusResolver {
	return &DBusResolver{conn: conn}
}

// SetupEndpoint implements Resolver. mctpd either assigns a fresh endpoint
// id or returns the one already routed for the device; both are success.
func (r *DBusResolver) SetupEndpoint(ctx context.Context, network string, addr uint8) (Endpoint, error) {
	obj := r.conn.Object(mctpdService, dbus.ObjectPath(mctpdPath))

	var (
		eid  uint8
		nid  int32
		path dbus.ObjectPath
		new_ bool
	)

	call := obj.CallWithContext(ctx, setupEndpoint, 0, network, []byte{addr})
	if call.Err != nil {
		return Endpoint{}, fmt.Errorf("SetupEndpoint %s addr 0x%02x: %w", network, addr, call.Err)
	}

	if err := call.Store(&eid, &nid, &path, &new_); err != nil {
		return Endpoint{}, fmt.Errorf("decode SetupEndpoint reply: %w", err)
	}

	return Endpoint{EID: eid, NID: int(nid), Path: string(path)}, nil
}
