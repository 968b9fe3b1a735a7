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
	"math"
	"time"

	"github.com/edgemetal/nvmemond/pkg/logger"
	"github.com/edgemetal/nvmemond/pkg/sensor"
	"github.com/edgemetal/nvmemond/pkg/taskq"
)

// pollPeriod is the fixed sensor poll interval.
const pollPeriod = time.Second

// fetchFunc asynchronously produces a raw status snapshot. The completion
// must be invoked exactly once, on the owner loop.
type fetchFunc[T any] func(cb func(error, T))

// parseFunc converts a raw snapshot to a reading, or reports that no
// valid reading is available.
type parseFunc[T any] func(T) (float64, bool)

// poller is the type-erased handle a subsystem keeps on its poll loop.
type poller interface {
	start()
	cancel()
}

// pollLoop repeatedly fetches a raw status snapshot, parses a temperature
// out of it and publishes the value. Data errors never stop the loop: the
// next attempt is simply the next tick. Only cancel terminates it, as part
// of subsystem teardown. All state lives on the owner loop; the timer
// callback posts each tick there.
type pollLoop[T any] struct {
	owner  *taskq.Loop
	sensor sensor.Sensor
	fetch  fetchFunc[T]
	parse  parseFunc[T]
	period time.Duration
	name   string
	log    logger.Logger

	timer     *time.Timer
	cancelled bool
}

func newPollLoop[T any](owner *taskq.Loop, s sensor.Sensor, fetch fetchFunc[T], parse parseFunc[T], name string, log logger.Logger) *pollLoop[T] {
	return &pollLoop[T]{
		owner:  owner,
		sensor: s,
		fetch:  fetch,
		parse:  parse,
		period: pollPeriod,
		name:   name,
		log:    log,
	}
}

// start arms the first tick. Must run on the owner loop.
func (p *pollLoop[T]) start() {
	p.arm()
}

// cancel terminates the loop permanently. Must run on the owner loop; a
// tick already queued behind the cancel sees the flag and does nothing.
func (p *pollLoop[T]) cancel() {
	p.cancelled = true

	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *pollLoop[T]) arm() {
	p.timer = time.AfterFunc(p.period, func() {
		// The owner loop only stops when the whole service is torn
		// down; a failed post means the loop dies with it.
		_ = p.owner.Post(p.tick)
	})
}

func (p *pollLoop[T]) tick() {
	if p.cancelled {
		return
	}

	if p.sensor == nil {
		p.arm()
		return
	}

	if !p.sensor.ReadingStateGood() {
		p.sensor.MarkAvailable(false)
		p.sensor.UpdateValue(math.NaN())
		p.arm()

		return
	}

	// The sensor may decline a cycle while it backs off from errors.
	if !p.sensor.Sample() {
		p.arm()
		return
	}

	p.fetch(p.complete)
}

func (p *pollLoop[T]) complete(err error, data T) {
	if p.cancelled {
		return
	}

	if err != nil {
		p.log.Error().Err(err).Str("subsystem", p.name).Msg("Failed to read drive temperature")
		p.sensor.MarkFunctional(false)
		p.arm()

		return
	}

	value, ok := p.parse(data)
	if !ok {
		p.sensor.IncrementError()
		p.arm()

		return
	}

	p.sensor.UpdateValue(value)
	p.arm()
}
