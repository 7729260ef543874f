package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters(t *testing.T) {
	// one degree of latitude is ~111.2km
	d := DistanceMeters(LatLng{Lat: 0, Lng: 0}, LatLng{Lat: 1, Lng: 0})
	if math.Abs(d-111195) > 500 {
		t.Errorf("expected ~111195m, got %.0f", d)
	}

	if d := DistanceMeters(LatLng{Lat: 41.3, Lng: 69.2}, LatLng{Lat: 41.3, Lng: 69.2}); d != 0 {
		t.Errorf("expected zero distance for identical points, got %v", d)
	}
}

func circleZone(radius float64) Zone {
	return Zone{
		ID:   1,
		Name: "depot",
		Shape: Shape{
			Kind:         ShapeCircle,
			Center:       LatLng{Lat: 41.3, Lng: 69.2},
			RadiusMeters: radius,
		},
	}
}

func TestCircleContains(t *testing.T) {
	z := circleZone(1000)

	if !z.Contains(LatLng{Lat: 41.3, Lng: 69.2}) {
		t.Error("center must be contained")
	}
	// ~0.005 deg lat is ~556m, inside
	if !z.Contains(LatLng{Lat: 41.305, Lng: 69.2}) {
		t.Error("point 556m away must be inside a 1km circle")
	}
	// ~0.02 deg lat is ~2224m, outside
	if z.Contains(LatLng{Lat: 41.32, Lng: 69.2}) {
		t.Error("point 2.2km away must be outside a 1km circle")
	}
}

func TestCircleBoundaryInclusive(t *testing.T) {
	center := LatLng{Lat: 41.3, Lng: 69.2}
	boundary := LatLng{Lat: 41.31, Lng: 69.2}
	z := circleZone(DistanceMeters(center, boundary))
	if !z.Contains(boundary) {
		t.Error("point at exactly the radius must be contained")
	}
}

func TestPolygonContains(t *testing.T) {
	z := Zone{
		ID: 2,
		Shape: Shape{
			Kind: ShapePolygon,
			Points: []LatLng{
				{Lat: 0, Lng: 0},
				{Lat: 0, Lng: 1},
				{Lat: 1, Lng: 1},
				{Lat: 1, Lng: 0},
			},
		},
	}

	if !z.Contains(LatLng{Lat: 0.5, Lng: 0.5}) {
		t.Error("interior point must be contained")
	}
	if z.Contains(LatLng{Lat: 1.5, Lng: 0.5}) {
		t.Error("exterior point must not be contained")
	}
	if z.Contains(LatLng{Lat: -0.5, Lng: -0.5}) {
		t.Error("exterior point must not be contained")
	}
}

func TestCorridorContains(t *testing.T) {
	// east-west segment along the equator with a 1km width
	z := Zone{
		ID: 3,
		Shape: Shape{
			Kind:        ShapeCorridor,
			Points:      []LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.1}},
			WidthMeters: 1000,
		},
	}

	if !z.Contains(LatLng{Lat: 0, Lng: 0.05}) {
		t.Error("point on the centerline must be contained")
	}
	// ~0.004 deg lat is ~445m offset, within the 500m half-width
	if !z.Contains(LatLng{Lat: 0.004, Lng: 0.05}) {
		t.Error("point within half-width must be contained")
	}
	// ~0.01 deg lat is ~1112m offset, outside
	if z.Contains(LatLng{Lat: 0.01, Lng: 0.05}) {
		t.Error("point beyond half-width must not be contained")
	}
	// beyond the segment end, distance is measured to the endpoint
	if z.Contains(LatLng{Lat: 0, Lng: 0.2}) {
		t.Error("point past the corridor end must not be contained")
	}
}

func TestCorridorMultiSegment(t *testing.T) {
	z := Zone{
		ID: 4,
		Shape: Shape{
			Kind: ShapeCorridor,
			Points: []LatLng{
				{Lat: 0, Lng: 0},
				{Lat: 0, Lng: 0.1},
				{Lat: 0.1, Lng: 0.1},
			},
			WidthMeters: 1000,
		},
	}
	// a point near the second leg
	if !z.Contains(LatLng{Lat: 0.05, Lng: 0.1}) {
		t.Error("point on the second segment must be contained")
	}
}

func TestZoneValidate(t *testing.T) {
	cases := []struct {
		name  string
		shape Shape
		valid bool
	}{
		{"good circle", Shape{Kind: ShapeCircle, Center: LatLng{1, 1}, RadiusMeters: 10}, true},
		{"zero radius", Shape{Kind: ShapeCircle, Center: LatLng{1, 1}}, false},
		{"negative radius", Shape{Kind: ShapeCircle, RadiusMeters: -5}, false},
		{"good polygon", Shape{Kind: ShapePolygon, Points: []LatLng{{0, 0}, {0, 1}, {1, 0}}}, true},
		{"two-point polygon", Shape{Kind: ShapePolygon, Points: []LatLng{{0, 0}, {0, 1}}}, false},
		{"good corridor", Shape{Kind: ShapeCorridor, Points: []LatLng{{0, 0}, {0, 1}}, WidthMeters: 100}, true},
		{"one-point corridor", Shape{Kind: ShapeCorridor, Points: []LatLng{{0, 0}}, WidthMeters: 100}, false},
		{"zero-width corridor", Shape{Kind: ShapeCorridor, Points: []LatLng{{0, 0}, {0, 1}}}, false},
		{"unknown kind", Shape{Kind: "blob"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Zone{ID: 9, Shape: tc.shape}.Validate()
			if tc.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestShapeRoundTrip(t *testing.T) {
	s := Shape{
		Kind:        ShapeCorridor,
		Points:      []LatLng{{Lat: 41.3, Lng: 69.2}, {Lat: 41.4, Lng: 69.3}},
		WidthMeters: 250,
	}
	raw, err := MarshalShape(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalShape(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != s.Kind || got.WidthMeters != s.WidthMeters || len(got.Points) != 2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestSuppressionRadius(t *testing.T) {
	if got := circleZone(1500).SuppressionRadiusMeters(); got != 1500 {
		t.Errorf("circle suppression radius should be its own radius, got %v", got)
	}

	z := Zone{
		Shape: Shape{
			Kind: ShapePolygon,
			Points: []LatLng{
				{Lat: 0, Lng: 0},
				{Lat: 0, Lng: 0.02},
				{Lat: 0.02, Lng: 0.02},
				{Lat: 0.02, Lng: 0},
			},
		},
	}
	got := z.SuppressionRadiusMeters()
	// half diagonal of a ~2.2km square is ~1.57km
	if got < 1400 || got > 1800 {
		t.Errorf("unexpected polygon suppression radius: %.0f m", got)
	}
}
