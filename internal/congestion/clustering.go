// Package congestion detects unreported congestion by density-clustering
// slow-moving entities. Points are projected onto a local planar frame and
// clustered with DBSCAN backed by a grid spatial index.
package congestion

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/geo"
)

const (
	// DefaultEpsMeters is the default DBSCAN neighbourhood radius.
	DefaultEpsMeters = 2000.0
	// DefaultMinPoints is the default minimum cluster membership.
	DefaultMinPoints = 3
	// DefaultSlowSpeedKPH is the speed below which a moving entity counts
	// as a congestion candidate.
	DefaultSlowSpeedKPH = 20.0
)

// Point is one congestion candidate: a moving entity below the slow-speed
// threshold.
type Point struct {
	EntityID fleet.EntityID
	Pos      geo.LatLng
	SpeedKPH float64
}

// Params configures DBSCAN clustering.
type Params struct {
	EpsMeters float64
	MinPoints int
}

// DefaultParams returns clustering parameters tuned for urban congestion.
func DefaultParams() Params {
	return Params{EpsMeters: DefaultEpsMeters, MinPoints: DefaultMinPoints}
}

// Cluster is a detected group of slow movers.
type Cluster struct {
	Points       []Point
	Centroid     geo.LatLng
	MeanSpeedKPH float64
}

// Count returns the cluster's membership size.
func (c Cluster) Count() int { return len(c.Points) }

// planarPoint is a candidate projected into metres relative to the batch
// origin, so neighbourhood queries are plain Euclidean distance.
type planarPoint struct {
	x, y float64
}

// projectPlanar maps lat/lng points onto a local equirectangular plane
// centred on the first point. Congestion neighbourhoods are a few km across
// at most, well within the approximation's accuracy.
func projectPlanar(points []Point) []planarPoint {
	if len(points) == 0 {
		return nil
	}
	origin := points[0].Pos
	cosLat := math.Cos(origin.Lat * math.Pi / 180)
	metersPerDegLat := math.Pi * geo.EarthRadiusMeters / 180

	out := make([]planarPoint, len(points))
	for i, p := range points {
		out[i] = planarPoint{
			x: (p.Pos.Lng - origin.Lng) * metersPerDegLat * cosLat,
			y: (p.Pos.Lat - origin.Lat) * metersPerDegLat,
		}
	}
	return out
}

// spatialIndex is a regular grid over the planar frame. Cell size matches
// the DBSCAN eps so a 3x3 cell neighbourhood covers every candidate.
type spatialIndex struct {
	cellSize float64
	grid     map[int64][]int
}

func newSpatialIndex(cellSize float64, points []planarPoint) *spatialIndex {
	si := &spatialIndex{
		cellSize: cellSize,
		grid:     make(map[int64][]int, len(points)),
	}
	for i, p := range points {
		si.grid[si.cellID(p.x, p.y)] = append(si.grid[si.cellID(p.x, p.y)], i)
	}
	return si
}

// cellID pairs the signed cell coordinates into one key using zigzag
// encoding plus Szudzik's pairing function.
func (si *spatialIndex) cellID(x, y float64) int64 {
	cellX := int64(math.Floor(x / si.cellSize))
	cellY := int64(math.Floor(y / si.cellSize))
	return pairCells(cellX, cellY)
}

func pairCells(cellX, cellY int64) int64 {
	var a, b int64
	if cellX >= 0 {
		a = 2 * cellX
	} else {
		a = -2*cellX - 1
	}
	if cellY >= 0 {
		b = 2 * cellY
	} else {
		b = -2*cellY - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// regionQuery returns indices of all points within eps of points[idx].
func (si *spatialIndex) regionQuery(points []planarPoint, idx int, eps float64) []int {
	p := points[idx]
	eps2 := eps * eps
	baseX := int64(math.Floor(p.x / si.cellSize))
	baseY := int64(math.Floor(p.y / si.cellSize))

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, ci := range si.grid[pairCells(baseX+dx, baseY+dy)] {
				c := points[ci]
				ddx, ddy := c.x-p.x, c.y-p.y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, ci)
				}
			}
		}
	}
	return neighbors
}

// Detect runs DBSCAN over the candidate set and returns the detected
// clusters. Points that never reach MinPoints density are discarded as
// noise.
func Detect(points []Point, params Params) []Cluster {
	if len(points) == 0 {
		return nil
	}
	if params.EpsMeters <= 0 || params.MinPoints <= 0 {
		params = DefaultParams()
	}

	planar := projectPlanar(points)
	si := newSpatialIndex(params.EpsMeters, planar)

	n := len(points)
	labels := make([]int, n) // 0 unvisited, -1 noise, >0 cluster id
	clusterID := 0

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := si.regionQuery(planar, i, params.EpsMeters)
		if len(neighbors) < params.MinPoints {
			labels[i] = -1
			continue
		}
		clusterID++
		expandCluster(planar, si, labels, i, neighbors, clusterID, params)
	}

	return buildClusters(points, labels, clusterID)
}

func expandCluster(planar []planarPoint, si *spatialIndex, labels []int,
	seed int, neighbors []int, clusterID int, params Params) {

	labels[seed] = clusterID
	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]
		if labels[idx] == -1 {
			labels[idx] = clusterID // noise becomes a border point
		}
		if labels[idx] != 0 {
			continue
		}
		labels[idx] = clusterID
		next := si.regionQuery(planar, idx, params.EpsMeters)
		if len(next) >= params.MinPoints {
			neighbors = append(neighbors, next...)
		}
	}
}

func buildClusters(points []Point, labels []int, maxClusterID int) []Cluster {
	clusters := make([]Cluster, 0, maxClusterID)
	for cid := 1; cid <= maxClusterID; cid++ {
		var members []Point
		for i, label := range labels {
			if label == cid {
				members = append(members, points[i])
			}
		}
		if len(members) == 0 {
			continue
		}
		clusters = append(clusters, summarize(members))
	}
	return clusters
}

// summarize computes the centroid and mean speed over cluster members.
func summarize(members []Point) Cluster {
	lats := make([]float64, len(members))
	lngs := make([]float64, len(members))
	speeds := make([]float64, len(members))
	for i, m := range members {
		lats[i] = m.Pos.Lat
		lngs[i] = m.Pos.Lng
		speeds[i] = m.SpeedKPH
	}
	return Cluster{
		Points:       members,
		Centroid:     geo.LatLng{Lat: stat.Mean(lats, nil), Lng: stat.Mean(lngs, nil)},
		MeanSpeedKPH: stat.Mean(speeds, nil),
	}
}
