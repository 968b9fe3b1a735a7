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
	"encoding/binary"
	"errors"
	"fmt"
)

// Secondary controller list identify payload: a 32-byte header whose
// first byte is the entry count, followed by 32-byte entries carrying the
// secondary and primary controller ids.
const (
	secListHeaderLen = 32
	secListEntryLen  = 32
)

var (
	errSecListUndersized = errors.New("secondary controller list payload undersized")
	errUnknownPrimary    = errors.New("secondary controller list references unknown primary controller")
)

type secondaryEntry struct {
	scid uint16
	pcid uint16
}

func parseSecondaryControllerList(data []byte) ([]secondaryEntry, error) {
	if len(data) < secListHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", errSecListUndersized, len(data))
	}

	count := int(data[0])
	if len(data) < secListHeaderLen+count*secListEntryLen {
		return nil, fmt.Errorf("%w: %d bytes for %d entries", errSecListUndersized, len(data), count)
	}

	entries := make([]secondaryEntry, count)
	for i := range entries {
		off := secListHeaderLen + i*secListEntryLen
		entries[i] = secondaryEntry{
			scid: binary.LittleEndian.Uint16(data[off:]),
			pcid: binary.LittleEndian.Uint16(data[off+2:]),
		}
	}

	return entries, nil
}

// rebuildTopology reconstructs primary/secondary associations from an
// identify payload. Association sets are cleared up front, so a failed
// rebuild leaves no stale partial associations.
//
// The controllers are SR-IOV: every entry points at the same primary, so
// only the first entry's primary id is consulted. A secondary id missing
// from the controller map stops the walk; entries resolved before the
// miss still commit.
func (s *Subsystem) rebuildTopology(data []byte) error {
	entries, err := parseSecondaryControllerList(data)
	if err != nil {
		return err
	}

	for _, ctrl := range s.controllers {
		ctrl.setSecondaries(nil)
	}

	if len(entries) == 0 {
		s.log.Info().Str("subsystem", s.name).Msg("Empty secondary controller list")
		return nil
	}

	primary, ok := s.controllers[entries[0].pcid]
	if !ok {
		return fmt.Errorf("%w: id %d", errUnknownPrimary, entries[0].pcid)
	}

	secondaries := make([]*Controller, 0, len(entries))

	for _, entry := range entries {
		secondary, ok := s.controllers[entry.scid]
		if !ok {
			s.log.Warn().
				Str("subsystem", s.name).
				Uint16("scid", entry.scid).
				Msg("Secondary controller list references unknown controller")

			break
		}

		secondaries = append(secondaries, secondary)
	}

	primary.setSecondaries(secondaries)

	s.log.Debug().
		Str("subsystem", s.name).
		Uint16("primary", primary.ID()).
		Int("secondaries", len(secondaries)).
		Msg("Rebuilt controller topology")

	return nil
}
