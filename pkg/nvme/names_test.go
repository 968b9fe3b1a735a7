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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSensorNameFromPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
		ok       bool
	}{
		{
			name:     "board path",
			path:     "/xyz/openbmc_project/inventory/system/board/prodA/nvme0",
			expected: "prodA_nvme0",
			ok:       true,
		},
		{
			name:     "trailing slashes",
			path:     "/xyz/openbmc_project/inventory/system/board/prodA/nvme0//",
			expected: "prodA_nvme0",
			ok:       true,
		},
		{
			name: "no board segment",
			path: "/xyz/openbmc_project/inventory/system/chassis/prodA/nvme0",
		},
		{
			name: "board not third from last",
			path: "/xyz/openbmc_project/inventory/board/system/prodA/nvme0",
		},
		{
			name: "too few segments",
			path: "/board/nvme0",
		},
		{
			name: "empty path",
			path: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := SensorNameFromPath(tt.path)

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, name)
		})
	}
}
