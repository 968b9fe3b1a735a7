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

package telemetry

import (
	"context"
	"time"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

// publishTimeout bounds a single event publish so a dead broker cannot
// back the publish queue up forever.
const publishTimeout = 5 * time.Second

// Emitter is the publishing surface the sink needs, satisfied by
// EventPublisher.
type Emitter interface {
	PublishTemperature(ctx context.Context, sensorName string, value float64) error
	PublishFunctional(ctx context.Context, sensorName string, functional bool) error
}

// Sink adapts an Emitter to the sensor event-sink contract. Sensor
// updates run on the owner loop, so the sink never publishes inline:
// events are handed to a private worker loop and published there, in
// order. Publish failures are logged and swallowed; sensor state never
// depends on the event stream.
type Sink struct {
	emitter Emitter
	worker  *taskq.Loop
	log     logger.Logger
}

// NewSink builds a sink over an emitter and starts its publish worker.
func NewSink(emitter Emitter, log logger.Logger) *Sink {
	return &Sink{
		emitter: emitter,
		worker:  taskq.New(),
		log:     log,
	}
}

// TemperatureUpdated queues a temperature update event. Never blocks.
func (s *Sink) TemperatureUpdated(name string, value float64) {
	s.post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := s.emitter.PublishTemperature(ctx, name, value); err != nil {
			s.log.Warn().Err(err).Str("sensor", name).Msg("Failed to publish temperature event")
		}
	})
}

// FunctionalChanged queues a functional-state transition event. Never
// blocks.
func (s *Sink) FunctionalChanged(name string, functional bool) {
	s.post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := s.emitter.PublishFunctional(ctx, name, functional); err != nil {
			s.log.Warn().Err(err).Str("sensor", name).Msg("Failed to publish functional event")
		}
	})
}

func (s *Sink) post(task taskq.Task) {
	if err := s.worker.Post(task); err != nil {
		s.log.Debug().Err(err).Msg("Dropped telemetry event: sink closed")
	}
}

// Close drains events accepted before the close, then stops the worker.
// Events posted afterwards are dropped.
func (s *Sink) Close() {
	s.worker.Stop()
}
