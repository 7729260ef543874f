// Package geo provides zone geometry: great-circle distance, the zone
// shape union (circle, polygon, corridor), and containment predicates.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for all distance math.
const EarthRadiusMeters = 6371000.0

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b LatLng) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// pointInPolygon uses ray casting on raw lat/lng coordinates. Zones are
// small enough that planar treatment of the coordinates is acceptable.
func pointInPolygon(pt LatLng, polygon []LatLng) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		if ((polygon[i].Lat > pt.Lat) != (polygon[j].Lat > pt.Lat)) &&
			(pt.Lng < (polygon[j].Lng-polygon[i].Lng)*(pt.Lat-polygon[i].Lat)/(polygon[j].Lat-polygon[i].Lat)+polygon[i].Lng) {
			inside = !inside
		}
		j = i
	}
	return inside
}

// distanceToSegmentMeters returns the distance from pt to the segment a-b.
// The segment is projected onto a local equirectangular plane centred on a,
// which is accurate for the sub-10km segments corridors are made of.
func distanceToSegmentMeters(pt, a, b LatLng) float64 {
	cosLat := math.Cos(a.Lat * math.Pi / 180)
	metersPerDegLat := math.Pi * EarthRadiusMeters / 180

	toXY := func(p LatLng) (x, y float64) {
		return (p.Lng - a.Lng) * metersPerDegLat * cosLat, (p.Lat - a.Lat) * metersPerDegLat
	}

	px, py := toXY(pt)
	bx, by := toXY(b)

	segLen2 := bx*bx + by*by
	if segLen2 == 0 {
		return math.Hypot(px, py)
	}

	t := (px*bx + py*by) / segLen2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-t*bx, py-t*by)
}
