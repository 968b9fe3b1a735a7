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

	"github.com/edgemetal/nvmemond/pkg/mi"
)

// Composite temperature sentinels. 0x80 means no data, or data more than
// five seconds old; 0x81 means the temperature sensor itself failed.
const (
	tempNoData        = int8(-128) // 0x80
	tempSensorFailure = int8(-127) // 0x81
)

// temperatureReading maps the raw composite temperature byte to degrees
// Celsius. The two sentinel values map to NaN.
func temperatureReading(raw int8) float64 {
	if raw == tempNoData || raw == tempSensorFailure {
		return math.NaN()
	}

	return float64(raw)
}

// parseBasicTemperature reads the composite temperature from a basic
// drive status block.
func parseBasicTemperature(status *DriveStatus) (float64, bool) {
	if status == nil {
		return 0, false
	}

	return temperatureReading(status.Temp), true
}

// parseHealthTemperature reads the composite temperature from a health
// status poll. A drive that reports itself non-functional yields no
// reading at all.
func parseHealthTemperature(status *mi.SubsystemHealthStatus) (float64, bool) {
	if status == nil || !status.DriveFunctional() {
		return 0, false
	}

	return temperatureReading(status.CTemp), true
}
