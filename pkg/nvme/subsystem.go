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
	"fmt"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/mi"
	"github.com/edgemetal/nvmemond/pkg/sensor"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

// SubsystemConfig identifies one drive subsystem in the inventory.
type SubsystemConfig struct {
	// Name is the configured fallback when no sensor name can be
	// derived from the inventory path.
	Name string

	// InventoryPath is the subsystem's bus-path identity,
	// ".../board/{product}/{device}" for board-mounted drives.
	InventoryPath string
}

// Subsystem is one physical drive: its controllers, its temperature
// sensor and the poll loop feeding it. All mutable state is confined to
// the owner loop; Start and Stop post onto it.
type Subsystem struct {
	name  string
	path  string
	intf  Interface
	owner *taskq.Loop
	log   logger.Logger

	controllers map[uint16]*Controller
	ctemp       sensor.Sensor
	poll        poller
}

// NewSubsystem builds a subsystem over exactly one interface variant,
// fixed for its lifetime, and publishes its temperature sensor. The
// fetch/parse strategy pair for the poll loop is chosen here, once.
func NewSubsystem(cfg SubsystemConfig, intf Interface, sensors sensor.Factory, owner *taskq.Loop, log logger.Logger) (*Subsystem, error) {
	if err := intf.validate(); err != nil {
		return nil, fmt.Errorf("subsystem %s: %w", cfg.Name, err)
	}

	sensorName, ok := SensorNameFromPath(cfg.InventoryPath)
	if !ok {
		sensorName = cfg.Name
	}

	ctemp, err := sensors.Temperature(sensorName, cfg.InventoryPath)
	if err != nil {
		return nil, fmt.Errorf("subsystem %s: %w", cfg.Name, err)
	}

	s := &Subsystem{
		name:        sensorName,
		path:        cfg.InventoryPath,
		intf:        intf,
		owner:       owner,
		log:         log,
		controllers: make(map[uint16]*Controller),
		ctemp:       ctemp,
	}

	if intf.Basic != nil {
		s.poll = newPollLoop(owner, ctemp, intf.Basic.GetStatus, parseBasicTemperature, sensorName, log)
	} else {
		s.poll = newPollLoop(owner, ctemp, intf.MI.SubsystemHealthPoll, parseHealthTemperature, sensorName, log)
	}

	return s, nil
}

// Name returns the subsystem's sensor name.
func (s *Subsystem) Name() string {
	return s.name
}

// Sensor returns the temperature sensor publication handle.
func (s *Subsystem) Sensor() sensor.Sensor {
	return s.ctemp
}

// Controller looks up a controller record by id.
func (s *Subsystem) Controller(id uint16) (*Controller, bool) {
	c, ok := s.controllers[id]
	return c, ok
}

// Start kicks off controller discovery (MI variant only) and the sensor
// poll loop. Discovery runs once per Start; a failed or empty scan is
// logged and not retried until the next Start.
func (s *Subsystem) Start() error {
	return s.owner.Post(func() {
		if s.intf.MI != nil {
			s.discover()
		}

		s.poll.start()
	})
}

// Stop cancels the poll timer and returns once the cancellation has taken
// effect on the owner loop.
func (s *Subsystem) Stop() error {
	done := make(chan struct{})

	if err := s.owner.Post(func() {
		s.poll.cancel()
		close(done)
	}); err != nil {
		return err
	}

	<-done

	return nil
}

// discover enumerates controllers and reconstructs topology. Runs on the
// owner loop; completion callbacks arrive there too.
func (s *Subsystem) discover() {
	s.intf.MI.ScanControllers(func(err error, list []mi.Controller) {
		if err != nil || len(list) == 0 {
			s.log.Error().Err(err).Str("subsystem", s.name).
				Msg("Failed to scan controllers for subsystem")

			return
		}

		for _, handle := range list {
			ctrl := newController(handle, s.log)
			s.controllers[ctrl.ID()] = ctrl
			ctrl.start()
		}

		s.log.Info().Str("subsystem", s.name).Int("controllers", len(list)).
			Msg("Discovered controllers")

		// The controllers are SR-IOV: any of them can answer for the
		// whole subsystem, so the identify goes to the last scanned.
		last := list[len(list)-1]

		s.intf.MI.AdminIdentify(last, mi.IdentifyRequest{CNS: mi.CNSSecondaryControllerList},
			func(err error, data []byte) {
				if err != nil {
					s.log.Error().Err(err).Str("subsystem", s.name).
						Msg("Failed to identify secondary controller list")

					return
				}

				if err := s.rebuildTopology(data); err != nil {
					s.log.Error().Err(err).Str("subsystem", s.name).
						Msg("Failed to rebuild controller topology")
				}
			})
	})
}
