package analysis

import (
	"strings"
	"testing"

	"github.com/banshee-data/fleetwatch/internal/congestion"
	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/geo"
)

func occupancyOf(zoneID int64, count int) map[int64]ZoneOccupancy {
	occ := ZoneOccupancy{ZoneID: zoneID, Count: count}
	for i := 0; i < count; i++ {
		occ.Occupants = append(occ.Occupants, Occupant{EntityID: fleet.EntityID(i + 1)})
	}
	return map[int64]ZoneOccupancy{zoneID: occ}
}

func TestBuildActionItems_ZoneBreachThreshold(t *testing.T) {
	zones := []geo.Zone{depotZone(1)}

	if items := BuildActionItems(zones, occupancyOf(1, 2), nil); len(items) != 0 {
		t.Errorf("expected no item below the count floor, got %d", len(items))
	}

	items := BuildActionItems(zones, occupancyOf(1, 3), nil)
	if len(items) != 1 {
		t.Fatalf("expected exactly one item at the floor, got %d", len(items))
	}
	item := items[0]
	if item.Severity != SeverityLow {
		t.Errorf("expected low severity at 3 occupants, got %s", item.Severity)
	}
	if item.SourceType != SourceKnownZone {
		t.Errorf("expected known-zone source, got %s", item.SourceType)
	}
	if item.Count != 3 {
		t.Errorf("expected count 3, got %d", item.Count)
	}
	if !strings.Contains(item.Title, "North Depot") {
		t.Errorf("expected zone name in title, got %q", item.Title)
	}
	if item.ID == "" {
		t.Error("expected a generated item id")
	}
}

func TestBuildActionItems_SeverityTiers(t *testing.T) {
	zones := []geo.Zone{depotZone(1)}

	cases := []struct {
		count int
		want  Severity
	}{
		{3, SeverityLow},
		{4, SeverityLow},
		{5, SeverityMedium},
		{9, SeverityMedium},
		{10, SeverityHigh},
		{25, SeverityHigh},
	}
	for _, tc := range cases {
		items := BuildActionItems(zones, occupancyOf(1, tc.count), nil)
		if len(items) != 1 {
			t.Fatalf("count %d: expected one item, got %d", tc.count, len(items))
		}
		if items[0].Severity != tc.want {
			t.Errorf("count %d: expected %s, got %s", tc.count, tc.want, items[0].Severity)
		}
	}
}

func TestBuildActionItems_CategoryWording(t *testing.T) {
	z := depotZone(1)
	z.Category = "border"
	items := BuildActionItems([]geo.Zone{z}, occupancyOf(1, 4), nil)
	if len(items) != 1 {
		t.Fatal("expected one item")
	}
	if !strings.Contains(items[0].Title, "Border crossing backlog") {
		t.Errorf("expected border wording, got %q", items[0].Title)
	}

	z.Category = "something-new"
	items = BuildActionItems([]geo.Zone{z}, occupancyOf(1, 4), nil)
	if !strings.Contains(items[0].Title, "Vehicle build-up") {
		t.Errorf("expected default wording for unknown category, got %q", items[0].Title)
	}
}

func TestBuildActionItems_UnknownClusterSurfaced(t *testing.T) {
	cluster := congestion.Cluster{
		Points: []congestion.Point{
			{EntityID: 1}, {EntityID: 2}, {EntityID: 3}, {EntityID: 4},
		},
		Centroid:     geo.LatLng{Lat: 40.0, Lng: 65.0},
		MeanSpeedKPH: 12,
	}
	items := BuildActionItems(nil, nil, []congestion.Cluster{cluster})
	if len(items) != 1 {
		t.Fatalf("expected one cluster item, got %d", len(items))
	}
	item := items[0]
	if item.SourceType != SourceUnknownCluster {
		t.Errorf("expected unknown-cluster source, got %s", item.SourceType)
	}
	if item.Severity != SeverityMedium {
		t.Errorf("expected medium severity for clusters, got %s", item.Severity)
	}
	if item.Count != 4 {
		t.Errorf("expected count 4, got %d", item.Count)
	}
}

func TestBuildActionItems_ClusterSuppressedNearZone(t *testing.T) {
	zone := depotZone(1) // 1km circle at 41.3, 69.2

	inside := congestion.Cluster{
		Points:   []congestion.Point{{EntityID: 1}, {EntityID: 2}, {EntityID: 3}},
		Centroid: geo.LatLng{Lat: 41.3, Lng: 69.2},
	}
	far := congestion.Cluster{
		Points:   []congestion.Point{{EntityID: 4}, {EntityID: 5}, {EntityID: 6}},
		Centroid: geo.LatLng{Lat: 42.5, Lng: 70.5},
	}

	items := BuildActionItems([]geo.Zone{zone}, nil, []congestion.Cluster{inside, far})
	if len(items) != 1 {
		t.Fatalf("expected only the far cluster surfaced, got %d items", len(items))
	}
	if items[0].Lat != 42.5 {
		t.Errorf("wrong cluster surfaced: %+v", items[0])
	}
}

func TestBuildActionItems_SortedBySeverity(t *testing.T) {
	zones := []geo.Zone{depotZone(1), depotZone(2)}
	// shift the second zone so it doesn't suppress anything relevant
	zones[1].Shape.Center = geo.LatLng{Lat: 45.0, Lng: 75.0}

	occ := map[int64]ZoneOccupancy{
		1: {ZoneID: 1, Count: 3},  // low
		2: {ZoneID: 2, Count: 12}, // high
	}
	items := BuildActionItems(zones, occ, nil)
	if len(items) != 2 {
		t.Fatalf("expected two items, got %d", len(items))
	}
	if items[0].Severity != SeverityHigh || items[1].Severity != SeverityLow {
		t.Errorf("expected high before low, got %s then %s", items[0].Severity, items[1].Severity)
	}
}
