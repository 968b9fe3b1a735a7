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

import "math"

// EventSink receives telemetry events derived from sensor updates. The
// poll loop stays unaware of event publication; the sink is wired in as a
// sensor decorator.
type EventSink interface {
	TemperatureUpdated(name string, value float64)
	FunctionalChanged(name string, functional bool)
}

// WithTelemetry decorates a sensor so reading updates and functional-state
// transitions are mirrored to the sink.
func WithTelemetry(s Sensor, name string, sink EventSink) Sensor {
	return &telemetrySensor{Sensor: s, name: name, sink: sink, functional: true}
}

type telemetrySensor struct {
	Sensor

	name       string
	sink       EventSink
	functional bool
}

func (t *telemetrySensor) MarkFunctional(functional bool) {
	t.Sensor.MarkFunctional(functional)

	if t.functional != functional {
		t.functional = functional
		t.sink.FunctionalChanged(t.name, functional)
	}
}

func (t *telemetrySensor) UpdateValue(value float64) {
	t.Sensor.UpdateValue(value)

	if math.IsNaN(value) {
		return
	}

	if !t.functional {
		t.functional = true
		t.sink.FunctionalChanged(t.name, true)
	}

	t.sink.TemperatureUpdated(t.name, value)
}
