package analysis

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/banshee-data/fleetwatch/internal/congestion"
	"github.com/banshee-data/fleetwatch/internal/geo"
)

// Severity ranks an action item.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SourceType says where an action item came from.
type SourceType string

const (
	SourceKnownZone      SourceType = "known-zone"
	SourceUnknownCluster SourceType = "unknown-cluster"
)

// ActionItem is one operational alert surfaced by the analysis tick.
type ActionItem struct {
	ID         string     `json:"id"`
	Severity   Severity   `json:"severity"`
	Title      string     `json:"title"`
	Location   string     `json:"location"`
	Lat        float64    `json:"lat"`
	Lng        float64    `json:"lng"`
	Count      int        `json:"count"`
	Action     string     `json:"action"`
	SourceType SourceType `json:"source_type"`
}

// Zone occupancy thresholds for action items.
const (
	zoneBreachMinCount    = 3
	zoneBreachMediumCount = 5
	zoneBreachHighCount   = 10
)

// categoryText maps a zone category to the title/action wording used for
// its breach items.
var categoryText = map[string]struct {
	title  string
	action string
}{
	"terminal":    {"Terminal queue building at %s", "Dispatch yard marshal to %s"},
	"depot":       {"Depot congestion at %s", "Stagger departures from %s"},
	"border":      {"Border crossing backlog at %s", "Reroute inbound vehicles away from %s"},
	"toll":        {"Toll plaza backlog at %s", "Advise drivers to use alternate gates near %s"},
	"weighbridge": {"Weighbridge queue at %s", "Hold dispatches bound for %s"},
}

var defaultCategoryText = struct {
	title  string
	action string
}{"Vehicle build-up at %s", "Review activity at %s"}

// zoneSeverity tiers a breach by occupant count.
func zoneSeverity(count int) Severity {
	switch {
	case count >= zoneBreachHighCount:
		return SeverityHigh
	case count >= zoneBreachMediumCount:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// BuildActionItems synthesises the action list for one tick: one item per
// known-zone breach at or above the count floor, and one per congestion
// cluster whose centroid is not already covered by a known zone. The
// result is sorted high severity first and is otherwise stable.
func BuildActionItems(zones []geo.Zone, occupancy map[int64]ZoneOccupancy, clusters []congestion.Cluster) []ActionItem {
	var items []ActionItem

	zonesByID := make(map[int64]geo.Zone, len(zones))
	ordered := make([]geo.Zone, 0, len(zones))
	for _, z := range zones {
		zonesByID[z.ID] = z
		ordered = append(ordered, z)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, zone := range ordered {
		occ, ok := occupancy[zone.ID]
		if !ok || occ.Count < zoneBreachMinCount {
			continue
		}
		text, ok := categoryText[zone.Category]
		if !ok {
			text = defaultCategoryText
		}
		centroid := zone.Centroid()
		items = append(items, ActionItem{
			ID:         uuid.NewString(),
			Severity:   zoneSeverity(occ.Count),
			Title:      fmt.Sprintf(text.title, zone.Name),
			Location:   zone.Name,
			Lat:        centroid.Lat,
			Lng:        centroid.Lng,
			Count:      occ.Count,
			Action:     fmt.Sprintf(text.action, zone.Name),
			SourceType: SourceKnownZone,
		})
	}

	for _, cluster := range surfacedClusters(zones, clusters) {
		items = append(items, ActionItem{
			ID:         uuid.NewString(),
			Severity:   SeverityMedium,
			Title:      fmt.Sprintf("Unreported congestion: %d slow vehicles", cluster.Count()),
			Location:   fmt.Sprintf("%.4f, %.4f", cluster.Centroid.Lat, cluster.Centroid.Lng),
			Lat:        cluster.Centroid.Lat,
			Lng:        cluster.Centroid.Lng,
			Count:      cluster.Count(),
			Action:     "Investigate congestion outside known zones",
			SourceType: SourceUnknownCluster,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return severityRank(items[i].Severity) > severityRank(items[j].Severity)
	})
	return items
}

// surfacedClusters filters out clusters already covered by a known zone:
// a cluster is suppressed when its centroid falls within a zone's
// suppression radius of the zone centroid.
func surfacedClusters(zones []geo.Zone, clusters []congestion.Cluster) []congestion.Cluster {
	var out []congestion.Cluster
	for _, c := range clusters {
		suppressed := false
		for _, z := range zones {
			if z.Validate() != nil {
				continue
			}
			if geo.DistanceMeters(c.Centroid, z.Centroid()) <= z.SuppressionRadiusMeters() {
				suppressed = true
				break
			}
		}
		if !suppressed {
			out = append(out, c)
		}
	}
	return out
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}
