package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/fleetwatch/internal/congestion"
	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/geo"
	"github.com/banshee-data/fleetwatch/internal/monitoring"
	"github.com/banshee-data/fleetwatch/internal/timeutil"
)

// DefaultInterval is how often the analysis tick runs.
const DefaultInterval = 15 * time.Second

// LiveSource provides the live-state snapshot and duration records the
// analyzer consumes each tick. fleet.Tracker implements this.
type LiveSource interface {
	Snapshot() map[fleet.EntityID]fleet.TelemetryState
	Durations() map[fleet.EntityID]fleet.StatusRecord
}

// ZoneSource provides the current zone set. The db store implements this.
type ZoneSource interface {
	ListZones() ([]geo.Zone, error)
}

// Snapshot is the result of one analysis tick.
type Snapshot struct {
	TakenAt     time.Time                             `json:"taken_at"`
	Occupancy   map[int64]ZoneOccupancy               `json:"occupancy"`
	ActionItems []ActionItem                          `json:"action_items"`
	Durations   map[fleet.EntityID]fleet.StatusRecord `json:"durations"`
}

// Config tunes the analyzer.
type Config struct {
	Interval     time.Duration
	SlowSpeedKPH float64
	Cluster      congestion.Params
}

// DefaultConfig returns production-default analysis parameters.
func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		SlowSpeedKPH: congestion.DefaultSlowSpeedKPH,
		Cluster:      congestion.DefaultParams(),
	}
}

// Analyzer runs the spatial analytics loop: each tick it reads the live
// fleet state, recomputes zone occupancy and congestion clusters, and
// stores the latest snapshot for on-demand reads.
type Analyzer struct {
	live  LiveSource
	zones ZoneSource
	za    *ZoneAnalyzer
	clock timeutil.Clock
	cfg   Config

	mu      sync.Mutex
	latest  Snapshot
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewAnalyzer creates an Analyzer. A nil clock defaults to the real clock.
func NewAnalyzer(live LiveSource, zones ZoneSource, clock timeutil.Clock, cfg Config) *Analyzer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SlowSpeedKPH <= 0 {
		cfg.SlowSpeedKPH = congestion.DefaultSlowSpeedKPH
	}
	return &Analyzer{
		live:   live,
		zones:  zones,
		za:     NewZoneAnalyzer(),
		clock:  clock,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Tick runs one analysis pass and returns the snapshot. Zone listing
// failures degrade to an empty zone set rather than failing the tick.
func (a *Analyzer) Tick() Snapshot {
	now := a.clock.Now()

	zones, err := a.zones.ListZones()
	if err != nil {
		monitoring.Logf("analysis: failed to list zones, analyzing without them: %v", err)
		zones = nil
	}

	states := a.live.Snapshot()
	occupancy := a.za.Tick(now, zones, states)

	var slow []congestion.Point
	for id, t := range states {
		if fleet.ResolveStatus(t) != fleet.StatusMoving {
			continue
		}
		if t.Speed >= a.cfg.SlowSpeedKPH {
			continue
		}
		slow = append(slow, congestion.Point{
			EntityID: id,
			Pos:      geo.LatLng{Lat: t.Position.Lat, Lng: t.Position.Lng},
			SpeedKPH: t.Speed,
		})
	}
	clusters := congestion.Detect(slow, a.cfg.Cluster)

	snap := Snapshot{
		TakenAt:     now,
		Occupancy:   occupancy,
		ActionItems: BuildActionItems(zones, occupancy, clusters),
		Durations:   a.live.Durations(),
	}

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()
	return snap
}

// Latest returns the most recent snapshot. TakenAt is zero if no tick has
// run yet.
func (a *Analyzer) Latest() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// Run ticks on the configured interval until the context is cancelled or
// Stop is called. It blocks; run it in its own goroutine.
func (a *Analyzer) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.mu.Unlock()

	defer func() {
		close(a.doneCh)
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	ticker := a.clock.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	monitoring.Logf("analysis: started, interval=%v", a.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.stopCh:
			return nil
		case <-ticker.C():
			a.Tick()
		}
	}
}

// Stop requests the run loop to exit and waits for it. Safe to call
// multiple times.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.mu.Unlock()
	<-a.doneCh
}
