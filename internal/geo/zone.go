package geo

import (
	"encoding/json"
	"fmt"
)

// ShapeKind discriminates the zone shape union.
type ShapeKind string

const (
	ShapeCircle   ShapeKind = "circle"
	ShapePolygon  ShapeKind = "polygon"
	ShapeCorridor ShapeKind = "corridor"
)

// Shape is a tagged union over the three zone geometries. Which fields are
// meaningful depends on Kind:
//
//	circle:   Center, RadiusMeters
//	polygon:  Points (at least 3)
//	corridor: Points (at least 2), WidthMeters
type Shape struct {
	Kind         ShapeKind `json:"type"`
	Center       LatLng    `json:"center,omitempty"`
	RadiusMeters float64   `json:"radius,omitempty"`
	Points       []LatLng  `json:"points,omitempty"`
	WidthMeters  float64   `json:"width,omitempty"`
}

// Zone is a named geographic region used for containment and dwell analysis.
type Zone struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Shape    Shape  `json:"shape"`
	Color    string `json:"color,omitempty"`
}

// Validate reports whether the zone geometry is usable. Degenerate zones
// (zero radius, too few vertices, zero-width corridor) are skipped by the
// analyzer rather than aborting the pass.
func (z Zone) Validate() error {
	switch z.Shape.Kind {
	case ShapeCircle:
		if z.Shape.RadiusMeters <= 0 {
			return fmt.Errorf("zone %d: circle radius must be positive, got %v", z.ID, z.Shape.RadiusMeters)
		}
	case ShapePolygon:
		if len(z.Shape.Points) < 3 {
			return fmt.Errorf("zone %d: polygon needs at least 3 points, got %d", z.ID, len(z.Shape.Points))
		}
	case ShapeCorridor:
		if len(z.Shape.Points) < 2 {
			return fmt.Errorf("zone %d: corridor needs at least 2 points, got %d", z.ID, len(z.Shape.Points))
		}
		if z.Shape.WidthMeters <= 0 {
			return fmt.Errorf("zone %d: corridor width must be positive, got %v", z.ID, z.Shape.WidthMeters)
		}
	default:
		return fmt.Errorf("zone %d: unknown shape kind %q", z.ID, z.Shape.Kind)
	}
	return nil
}

// Contains reports whether pt lies inside the zone. Boundaries are
// inclusive: a point at distance exactly equal to a circle's radius or a
// corridor's half-width is contained.
func (z Zone) Contains(pt LatLng) bool {
	switch z.Shape.Kind {
	case ShapeCircle:
		return DistanceMeters(pt, z.Shape.Center) <= z.Shape.RadiusMeters
	case ShapePolygon:
		return pointInPolygon(pt, z.Shape.Points)
	case ShapeCorridor:
		half := z.Shape.WidthMeters / 2
		for i := 0; i+1 < len(z.Shape.Points); i++ {
			if distanceToSegmentMeters(pt, z.Shape.Points[i], z.Shape.Points[i+1]) <= half {
				return true
			}
		}
		return false
	}
	return false
}

// Centroid returns a representative centre point for the zone, used for
// congestion-cluster suppression against circular zones and as the
// reported location of zone action items.
func (z Zone) Centroid() LatLng {
	switch z.Shape.Kind {
	case ShapeCircle:
		return z.Shape.Center
	case ShapePolygon, ShapeCorridor:
		if len(z.Shape.Points) == 0 {
			return LatLng{}
		}
		var lat, lng float64
		for _, p := range z.Shape.Points {
			lat += p.Lat
			lng += p.Lng
		}
		n := float64(len(z.Shape.Points))
		return LatLng{Lat: lat / n, Lng: lng / n}
	}
	return LatLng{}
}

// SuppressionRadiusMeters is how close (to the zone centroid) a detected
// congestion cluster must be to count as already covered by the zone.
// Circles use their own radius; other shapes use their max vertex distance
// from the centroid.
func (z Zone) SuppressionRadiusMeters() float64 {
	if z.Shape.Kind == ShapeCircle {
		return z.Shape.RadiusMeters
	}
	centroid := z.Centroid()
	var max float64
	for _, p := range z.Shape.Points {
		if d := DistanceMeters(centroid, p); d > max {
			max = d
		}
	}
	return max
}

// MarshalShape serialises a shape to its JSON storage form.
func MarshalShape(s Shape) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal shape: %w", err)
	}
	return string(b), nil
}

// UnmarshalShape parses a shape from its JSON storage form.
func UnmarshalShape(raw string) (Shape, error) {
	var s Shape
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Shape{}, fmt.Errorf("failed to unmarshal shape: %w", err)
	}
	return s, nil
}
