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

import "strings"

// SensorNameFromPath derives a sensor name from an inventory path of the
// shape ".../board/{product}/{device}", yielding "{product}_{device}".
// Paths that do not end in a board/product/device triple produce no name
// and the caller falls back to the configured subsystem name.
func SensorNameFromPath(path string) (string, bool) {
	segments := make([]string, 0, 8)

	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	if len(segments) < 3 {
		return "", false
	}

	if segments[len(segments)-3] != "board" {
		return "", false
	}

	return segments[len(segments)-2] + "_" + segments[len(segments)-1], true
}
