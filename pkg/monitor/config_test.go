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
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSpec() SubsystemSpec {
	return SubsystemSpec{
		Name:          "nvme0",
		InventoryPath: "/xyz/openbmc_project/inventory/system/board/prodA/nvme0",
		Interface:     VariantMI,
		Bus:           3,
		Address:       0x6a,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "no subsystems",
			mutate:  func(c *Config) { c.Subsystems = nil },
			wantErr: errNoSubsystems,
		},
		{
			name: "missing identity",
			mutate: func(c *Config) {
				c.Subsystems[0].Name = ""
				c.Subsystems[0].InventoryPath = ""
			},
			wantErr: errSubsystemName,
		},
		{
			name:    "unknown variant",
			mutate:  func(c *Config) { c.Subsystems[0].Interface = "smart" },
			wantErr: errUnknownVariant,
		},
		{
			name:    "negative bus",
			mutate:  func(c *Config) { c.Subsystems[0].Bus = -1 },
			wantErr: errBadBus,
		},
		{
			name:    "address out of range",
			mutate:  func(c *Config) { c.Subsystems[0].Address = 0x80 },
			wantErr: errBadAddress,
		},
		{
			name:    "zero address",
			mutate:  func(c *Config) { c.Subsystems[0].Address = 0 },
			wantErr: errBadAddress,
		},
		{
			name: "duplicate subsystem",
			mutate: func(c *Config) {
				c.Subsystems = append(c.Subsystems, c.Subsystems[0])
			},
			wantErr: errDuplicateName,
		},
		{
			name: "mi without dbus",
			mutate: func(c *Config) {
				c.DisableDBus = true
			},
			wantErr: errMIRequiresDBus,
		},
		{
			name: "basic without dbus is fine",
			mutate: func(c *Config) {
				c.DisableDBus = true
				c.Subsystems[0].Interface = VariantBasic
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Subsystems: []SubsystemSpec{validSpec()}}
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
