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

// Package sensor publishes drive telemetry as managed sensor objects. The
// poll loop drives sensors through the Sensor interface; the sensor owns
// its own error counting and sampling backoff.
package sensor

import "math"

// Sensor is the publication collaborator the poll loop updates each cycle.
type Sensor interface {
	// ReadingStateGood reports whether the platform state allows a valid
	// reading (for temperature, host power is on).
	ReadingStateGood() bool

	// Sample reports whether the sensor wants to be sampled this cycle.
	// A sensor in a persistent error state declines most cycles.
	Sample() bool

	MarkAvailable(available bool)
	MarkFunctional(functional bool)
	IncrementError()
	UpdateValue(value float64)
}

// Factory creates temperature sensors for subsystems.
type Factory interface {
	Temperature(name string, inventoryPath string) (Sensor, error)
}

const (
	// errorThreshold is how many consecutive bad readings flip the
	// sensor to non-functional.
	errorThreshold = 5

	// errorBackoffTicks is how many poll cycles a non-functional sensor
	// skips between sampling attempts.
	errorBackoffTicks = 10

	// Composite temperature limits published on temperature sensors.
	MinValue = -128
	MaxValue = 127
)

// Value is the in-memory sensor state. DBusTemperature embeds it and
// mirrors changes onto the bus; tests use it directly.
type Value struct {
	name string

	value      float64
	available  bool
	functional bool

	readingGood bool
	errCount    int
	backoff     int
}

// NewValue creates a sensor in the functional, available state with a NaN
// reading.
func NewValue(name string) *Value {
	return &Value{
		name:        name,
		value:       math.NaN(),
		available:   true,
		functional:  true,
		readingGood: true,
	}
}

func (v *Value) Name() string { return v.name }

// Reading returns the current published value.
func (v *Value) Reading() float64 { return v.value }

func (v *Value) Available() bool  { return v.available }
func (v *Value) Functional() bool { return v.functional }

// SetReadingState is driven by platform power state tracking.
func (v *Value) SetReadingState(good bool) { v.readingGood = good }

func (v *Value) ReadingStateGood() bool { return v.readingGood }

// Sample admits every cycle while the sensor is healthy. Once the error
// count reaches the threshold, only every errorBackoffTicks-th cycle is
// admitted so a dead drive is not hammered every second.
func (v *Value) Sample() bool {
	if v.errCount < errorThreshold {
		return true
	}

	v.backoff++
	if v.backoff < errorBackoffTicks {
		return false
	}

	v.backoff = 0

	return true
}

func (v *Value) MarkAvailable(available bool) {
	v.available = available
}

// MarkFunctional publishes the functional state. Losing functionality
// also clears the reading.
func (v *Value) MarkFunctional(functional bool) {
	v.functional = functional
	if !functional {
		v.value = math.NaN()
	}
}

// IncrementError counts a bad reading; hitting the threshold marks the
// sensor non-functional.
func (v *Value) IncrementError() {
	if v.errCount >= errorThreshold {
		return
	}

	v.errCount++
	if v.errCount == errorThreshold {
		v.MarkFunctional(false)
	}
}

// UpdateValue publishes a reading. Any successful reading resets the
// error state and restores the functional flag.
func (v *Value) UpdateValue(value float64) {
	v.value = value

	if !math.IsNaN(value) {
		v.errCount = 0
		v.backoff = 0
		v.functional = true
		v.available = true
	}
}

// MemoryFactory creates plain in-memory sensors. It backs tests and
// configurations without a bus connection.
type MemoryFactory struct{}

func (MemoryFactory) Temperature(name string, _ string) (Sensor, error) {
	return NewValue(name), nil
}
