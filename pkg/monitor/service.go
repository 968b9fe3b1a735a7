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

package monitor

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/mctp"
	"github.com/edgemetal/nvmemond/pkg/mi"
	"github.com/edgemetal/nvmemond/pkg/nvme"
	"github.com/edgemetal/nvmemond/pkg/sensor"
	"github.com/edgemetal/nvmemond/pkg/smbus"
	"github.com/edgemetal/nvmemond/pkg/taskq"
	"github.com/edgemetal/nvmemond/pkg/telemetry"
)

// busName is the daemon's well-known name on the system bus.
const busName = "xyz.openbmc_project.NVMeMond"

// closer is anything torn down at Stop after polling ends.
type closer interface {
	Close()
}

// Service owns the daemon's runtime: one owner loop all subsystem state
// is confined to, the bus connection, the telemetry stream and the
// per-subsystem transports.
type Service struct {
	cfg *Config
	log logger.Logger

	// Construction seams, overridden in tests.
	connectBus  func() (*dbus.Conn, error)
	openSMBus   func(bus int, addr uint8) (smbus.Device, error)
	newResolver func(conn *dbus.Conn) mctp.Resolver
	newFactory  func(conn *dbus.Conn) sensor.Factory
	root        *mi.Root

	owner      *taskq.Loop
	conn       *dbus.Conn
	sink       *telemetry.Sink
	natsClose  func()
	transports []closer
	subsystems []*nvme.Subsystem
}

// New builds the service for a validated config.
func New(cfg *Config, log logger.Logger) *Service {
	return &Service{
		cfg:        cfg,
		log:        log,
		connectBus: func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
		openSMBus:  smbus.Open,
		newResolver: func(conn *dbus.Conn) mctp.Resolver {
			return mctp.NewDBusResolver(conn)
		},
		newFactory: func(conn *dbus.Conn) sensor.Factory {
			return sensor.NewDBusFactory(conn)
		},
		root: mi.DefaultRoot(log),
	}
}

// Start brings up every configured subsystem. Any failure tears down what
// was already built; a started service is all-or-nothing.
func (s *Service) Start(ctx context.Context) error {
	s.owner = taskq.New()

	if err := s.start(ctx); err != nil {
		s.teardown()
		return err
	}

	return nil
}

func (s *Service) start(ctx context.Context) error {
	factory, err := s.setupBus()
	if err != nil {
		return err
	}

	sink, err := s.setupTelemetry(ctx)
	if err != nil {
		return err
	}

	if sink != nil {
		factory = &sinkFactory{inner: factory, sink: sink}
	}

	for i := range s.cfg.Subsystems {
		spec := &s.cfg.Subsystems[i]

		if err := s.startSubsystem(ctx, spec, factory); err != nil {
			return fmt.Errorf("subsystem %s: %w", spec.Name, err)
		}
	}

	s.log.Info().Int("subsystems", len(s.subsystems)).Msg("Monitoring started")

	return nil
}

func (s *Service) setupBus() (sensor.Factory, error) {
	if s.cfg.DisableDBus {
		return sensor.MemoryFactory{}, nil
	}

	conn, err := s.connectBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	s.conn = conn

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	return s.newFactory(conn), nil
}

func (s *Service) setupTelemetry(ctx context.Context) (sensor.EventSink, error) {
	if s.cfg.NATS == nil || s.cfg.NATS.URL == "" {
		return nil, nil
	}

	pub, nc, err := telemetry.Connect(ctx, *s.cfg.NATS, s.log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telemetry: %w", err)
	}

	s.natsClose = nc.Close
	s.sink = telemetry.NewSink(pub, s.log)

	return s.sink, nil
}

func (s *Service) startSubsystem(ctx context.Context, spec *SubsystemSpec, factory sensor.Factory) error {
	var intf nvme.Interface

	switch spec.Interface {
	case VariantMI:
		sess, err := mi.NewSession(ctx, s.root, s.owner, s.newResolver(s.conn), spec.Bus, spec.Address)
		if err != nil {
			return err
		}

		s.transports = append(s.transports, sess)
		intf.MI = sess
	case VariantBasic:
		dev, err := s.openSMBus(spec.Bus, uint8(spec.Address))
		if err != nil {
			return fmt.Errorf("failed to open SMBus device: %w", err)
		}

		bd := nvme.NewBasicDevice(dev, s.owner, s.log)
		s.transports = append(s.transports, bd)
		intf.Basic = bd
	}

	cfg := nvme.SubsystemConfig{
		Name:          spec.Name,
		InventoryPath: spec.InventoryPath,
	}

	sub, err := nvme.NewSubsystem(cfg, intf, factory, s.owner, s.log)
	if err != nil {
		return err
	}

	if s.conn != nil && spec.InventoryPath != "" {
		if err := sensor.RegisterSubsystemInventory(s.conn, spec.InventoryPath); err != nil {
			s.log.Warn().Err(err).Str("subsystem", sub.Name()).
				Msg("Failed to register subsystem inventory")
		}
	}

	if err := sub.Start(); err != nil {
		return err
	}

	s.subsystems = append(s.subsystems, sub)

	return nil
}

// Stop halts polling, then closes every transport and shared connection.
// Transports close only after their subsystem stopped using them.
func (s *Service) Stop(_ context.Context) error {
	s.teardown()
	s.log.Info().Msg("Monitoring stopped")

	return nil
}

func (s *Service) teardown() {
	for _, sub := range s.subsystems {
		if err := sub.Stop(); err != nil {
			s.log.Warn().Err(err).Str("subsystem", sub.Name()).Msg("Failed to stop subsystem")
		}
	}

	s.subsystems = nil

	for _, tr := range s.transports {
		tr.Close()
	}

	s.transports = nil

	if s.sink != nil {
		s.sink.Close()
		s.sink = nil
	}

	if s.natsClose != nil {
		s.natsClose()
		s.natsClose = nil
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close bus connection")
		}

		s.conn = nil
	}

	if s.owner != nil {
		s.owner.Stop()
		s.owner = nil
	}
}

// sinkFactory decorates produced sensors with telemetry publication.
type sinkFactory struct {
	inner sensor.Factory
	sink  sensor.EventSink
}

func (f *sinkFactory) Temperature(name string, inventoryPath string) (sensor.Sensor, error) {
	s, err := f.inner.Temperature(name, inventoryPath)
	if err != nil {
		return nil, err
	}

	return sensor.WithTelemetry(s, name, f.sink), nil
}
