// Package analysis runs the per-tick spatial analytics over the live
// fleet: zone occupancy and dwell tracking, slow-mover congestion
// clustering, and action item synthesis.
package analysis

import (
	"time"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/geo"
	"github.com/banshee-data/fleetwatch/internal/monitoring"
)

// Occupant records one entity currently inside a zone.
type Occupant struct {
	EntityID      fleet.EntityID      `json:"entity_id"`
	EnteredAt     time.Time           `json:"entered_at"`
	LastSeenAt    time.Time           `json:"last_seen_at"`
	StatusAtEntry fleet.DerivedStatus `json:"status_at_entry"`
}

// ZoneOccupancy is the per-zone containment result for one tick.
type ZoneOccupancy struct {
	ZoneID    int64      `json:"zone_id"`
	Count     int        `json:"count"`
	Occupants []Occupant `json:"occupants"`
}

// ZoneAnalyzer tests live positions against the zone set and tracks
// per-occupant entry times. Entry time is the first tick an entity is
// observed inside and resets when it leaves. Not safe for concurrent use;
// the Analyzer serialises ticks.
type ZoneAnalyzer struct {
	// occupants maps zone id -> entity id -> occupancy state carried
	// across ticks.
	occupants map[int64]map[fleet.EntityID]*Occupant
}

// NewZoneAnalyzer creates an empty ZoneAnalyzer.
func NewZoneAnalyzer() *ZoneAnalyzer {
	return &ZoneAnalyzer{occupants: make(map[int64]map[fleet.EntityID]*Occupant)}
}

// Tick evaluates the full zones x entities cross product and returns the
// occupancy per zone. Degenerate zones are logged and skipped so one bad
// shape cannot abort the pass. Entity point geometry is computed once and
// reused across zones.
func (za *ZoneAnalyzer) Tick(now time.Time, zones []geo.Zone, states map[fleet.EntityID]fleet.TelemetryState) map[int64]ZoneOccupancy {
	type entityPoint struct {
		id     fleet.EntityID
		pos    geo.LatLng
		status fleet.DerivedStatus
	}
	points := make([]entityPoint, 0, len(states))
	for id, t := range states {
		points = append(points, entityPoint{
			id:     id,
			pos:    geo.LatLng{Lat: t.Position.Lat, Lng: t.Position.Lng},
			status: fleet.ResolveStatus(t),
		})
	}

	result := make(map[int64]ZoneOccupancy, len(zones))
	seen := make(map[int64]struct{}, len(zones))

	for _, zone := range zones {
		if err := zone.Validate(); err != nil {
			monitoring.Logf("zone analyzer: skipping degenerate zone: %v", err)
			continue
		}
		seen[zone.ID] = struct{}{}

		inside := za.occupants[zone.ID]
		if inside == nil {
			inside = make(map[fleet.EntityID]*Occupant)
			za.occupants[zone.ID] = inside
		}

		current := make(map[fleet.EntityID]struct{}, len(points))
		for _, p := range points {
			if !zone.Contains(p.pos) {
				continue
			}
			current[p.id] = struct{}{}
			if occ, ok := inside[p.id]; ok {
				occ.LastSeenAt = now
			} else {
				inside[p.id] = &Occupant{
					EntityID:      p.id,
					EnteredAt:     now,
					LastSeenAt:    now,
					StatusAtEntry: p.status,
				}
			}
		}

		// exits reset the dwell clock
		for id := range inside {
			if _, ok := current[id]; !ok {
				delete(inside, id)
			}
		}

		occ := ZoneOccupancy{ZoneID: zone.ID, Count: len(inside)}
		for _, o := range inside {
			occ.Occupants = append(occ.Occupants, *o)
		}
		result[zone.ID] = occ
	}

	// drop state for zones that no longer exist
	for zoneID := range za.occupants {
		if _, ok := seen[zoneID]; !ok {
			delete(za.occupants, zoneID)
		}
	}

	return result
}
