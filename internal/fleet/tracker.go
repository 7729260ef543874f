package fleet

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/fleetwatch/internal/geo"
	"github.com/banshee-data/fleetwatch/internal/timeutil"
)

// maxTrackPoints bounds the per-entity recent track ring.
const maxTrackPoints = 512

// Batch is one atomic id to telemetry delivery from the stream.
type Batch map[EntityID]TelemetryState

// track is the bounded recent position history for one entity, kept so
// trip distance can be computed from real cumulative movement.
type track struct {
	points         []Position
	distanceMeters float64
}

// Tracker owns the live-state map, the per-entity duration records, and
// the recent track rings. All mutation goes through ApplyBatch under one
// mutex, so a batch's arrival is visible to every consumer atomically:
// no reader ever sees a partially applied batch.
type Tracker struct {
	mu          sync.Mutex
	states      map[EntityID]TelemetryState
	tracks      map[EntityID]*track
	durations   *DurationTracker
	subscribers map[string]chan Batch
}

// NewTracker creates a Tracker. A nil clock defaults to the real clock.
func NewTracker(clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		states:      make(map[EntityID]TelemetryState),
		tracks:      make(map[EntityID]*track),
		durations:   NewDurationTracker(clock),
		subscribers: make(map[string]chan Batch),
	}
}

// ApplyBatch merges one telemetry batch into the live state, updates
// duration records and track rings, and notifies subscribers. Later
// batches overwrite earlier state for the same entity (latest-wins); a
// subscriber slower than the inbound rate simply misses superseded deltas.
func (tr *Tracker) ApplyBatch(batch Batch) {
	if len(batch) == 0 {
		return
	}

	tr.mu.Lock()
	for id, state := range batch {
		tr.states[id] = state
		tr.appendTrackLocked(id, state.Position)
	}
	tr.durations.Observe(tr.states)

	for _, ch := range tr.subscribers {
		select {
		case ch <- batch:
		default:
			// slow subscriber: drop rather than block the update path
		}
	}
	tr.mu.Unlock()
}

func (tr *Tracker) appendTrackLocked(id EntityID, pos Position) {
	t := tr.tracks[id]
	if t == nil {
		t = &track{}
		tr.tracks[id] = t
	}
	if n := len(t.points); n > 0 {
		prev := t.points[n-1]
		if prev == pos {
			return
		}
		t.distanceMeters += geo.DistanceMeters(
			geo.LatLng{Lat: prev.Lat, Lng: prev.Lng},
			geo.LatLng{Lat: pos.Lat, Lng: pos.Lng},
		)
	}
	t.points = append(t.points, pos)
	if len(t.points) > maxTrackPoints {
		t.points = t.points[len(t.points)-maxTrackPoints:]
	}
}

// Snapshot returns a copy of the live-state map.
func (tr *Tracker) Snapshot() map[EntityID]TelemetryState {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make(map[EntityID]TelemetryState, len(tr.states))
	for id, s := range tr.states {
		out[id] = s
	}
	return out
}

// Get returns the live state for one entity.
func (tr *Tracker) Get(id EntityID) (TelemetryState, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	s, ok := tr.states[id]
	return s, ok
}

// Durations returns a copy of the id to StatusRecord map.
func (tr *Tracker) Durations() map[EntityID]StatusRecord {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.durations.Records()
}

// TrackDistanceMeters returns the cumulative great-circle distance over
// the entity's recent track points.
func (tr *Tracker) TrackDistanceMeters(id EntityID) float64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if t := tr.tracks[id]; t != nil {
		return t.distanceMeters
	}
	return 0
}

// Subscribe registers a delta channel that receives each applied batch.
// The returned id is the unsubscribe handle.
func (tr *Tracker) Subscribe() (string, <-chan Batch) {
	id := uuid.NewString()
	ch := make(chan Batch, 1)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a delta channel. Unknown ids are a no-op.
func (tr *Tracker) Unsubscribe(id string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if ch, ok := tr.subscribers[id]; ok {
		close(ch)
		delete(tr.subscribers, id)
	}
}
