package analysis

import (
	"testing"
	"time"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/geo"
)

func depotZone(id int64) geo.Zone {
	return geo.Zone{
		ID:       id,
		Name:     "North Depot",
		Category: "depot",
		Shape: geo.Shape{
			Kind:         geo.ShapeCircle,
			Center:       geo.LatLng{Lat: 41.3, Lng: 69.2},
			RadiusMeters: 1000,
		},
	}
}

func insideState(id fleet.EntityID) (fleet.EntityID, fleet.TelemetryState) {
	return id, fleet.TelemetryState{
		EntityID:   id,
		Position:   fleet.Position{Lat: 41.3, Lng: 69.2},
		Connection: fleet.ConnectionActive,
		Movement:   fleet.MovementStopped,
	}
}

func outsideState(id fleet.EntityID) (fleet.EntityID, fleet.TelemetryState) {
	return id, fleet.TelemetryState{
		EntityID:   id,
		Position:   fleet.Position{Lat: 42.0, Lng: 70.0},
		Connection: fleet.ConnectionActive,
		Movement:   fleet.MovementMoving,
	}
}

func TestZoneAnalyzer_Occupancy(t *testing.T) {
	za := NewZoneAnalyzer()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := map[fleet.EntityID]fleet.TelemetryState{}
	for _, id := range []fleet.EntityID{1, 2} {
		eid, s := insideState(id)
		m[eid] = s
	}
	eid, s := outsideState(3)
	m[eid] = s

	occ := za.Tick(now, []geo.Zone{depotZone(1)}, m)
	if occ[1].Count != 2 {
		t.Fatalf("expected 2 occupants, got %d", occ[1].Count)
	}
	for _, o := range occ[1].Occupants {
		if !o.EnteredAt.Equal(now) {
			t.Errorf("expected entry at first tick inside, got %v", o.EnteredAt)
		}
		if o.StatusAtEntry != fleet.StatusStopped {
			t.Errorf("expected stopped at entry, got %s", o.StatusAtEntry)
		}
	}
}

func TestZoneAnalyzer_DwellPersistsAcrossTicks(t *testing.T) {
	za := NewZoneAnalyzer()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	zones := []geo.Zone{depotZone(1)}

	m := map[fleet.EntityID]fleet.TelemetryState{}
	eid, s := insideState(1)
	m[eid] = s

	za.Tick(start, zones, m)
	occ := za.Tick(start.Add(time.Minute), zones, m)

	o := occ[1].Occupants[0]
	if !o.EnteredAt.Equal(start) {
		t.Errorf("entry time must persist across ticks, got %v", o.EnteredAt)
	}
	if !o.LastSeenAt.Equal(start.Add(time.Minute)) {
		t.Errorf("last seen must track the latest tick, got %v", o.LastSeenAt)
	}
}

func TestZoneAnalyzer_ExitResetsDwell(t *testing.T) {
	za := NewZoneAnalyzer()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	zones := []geo.Zone{depotZone(1)}

	in := map[fleet.EntityID]fleet.TelemetryState{}
	eid, s := insideState(1)
	in[eid] = s
	out := map[fleet.EntityID]fleet.TelemetryState{}
	eid, s = outsideState(1)
	out[eid] = s

	za.Tick(start, zones, in)
	occ := za.Tick(start.Add(time.Minute), zones, out)
	if occ[1].Count != 0 {
		t.Fatalf("expected exit to empty the zone, got %d", occ[1].Count)
	}

	// re-entry starts a fresh dwell
	occ = za.Tick(start.Add(2*time.Minute), zones, in)
	if !occ[1].Occupants[0].EnteredAt.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("re-entry must reset dwell, got %v", occ[1].Occupants[0].EnteredAt)
	}
}

func TestZoneAnalyzer_SkipsDegenerateZones(t *testing.T) {
	za := NewZoneAnalyzer()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	bad := geo.Zone{ID: 9, Shape: geo.Shape{Kind: geo.ShapeCircle, RadiusMeters: 0}}
	m := map[fleet.EntityID]fleet.TelemetryState{}
	eid, s := insideState(1)
	m[eid] = s

	occ := za.Tick(now, []geo.Zone{bad, depotZone(1)}, m)
	if _, ok := occ[9]; ok {
		t.Error("degenerate zone must be skipped")
	}
	if occ[1].Count != 1 {
		t.Error("good zone must still be analyzed")
	}
}

func TestZoneAnalyzer_DropsRemovedZoneState(t *testing.T) {
	za := NewZoneAnalyzer()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := map[fleet.EntityID]fleet.TelemetryState{}
	eid, s := insideState(1)
	m[eid] = s

	za.Tick(now, []geo.Zone{depotZone(1)}, m)
	za.Tick(now.Add(time.Minute), nil, m) // zone deleted

	// zone recreated: dwell must start over, not resume
	occ := za.Tick(now.Add(2*time.Minute), []geo.Zone{depotZone(1)}, m)
	if !occ[1].Occupants[0].EnteredAt.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("recreated zone must not inherit old dwell, got %v", occ[1].Occupants[0].EnteredAt)
	}
}
