package fleet

import (
	"time"

	"github.com/banshee-data/fleetwatch/internal/timeutil"
)

// DurationTracker maintains per-entity status duration records. It is not
// safe for concurrent use on its own; the Tracker serialises all calls
// under its mutex.
type DurationTracker struct {
	clock   timeutil.Clock
	records map[EntityID]StatusRecord
}

// NewDurationTracker creates a DurationTracker using the given clock.
// A nil clock defaults to the real clock.
func NewDurationTracker(clock timeutil.Clock) *DurationTracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DurationTracker{
		clock:   clock,
		records: make(map[EntityID]StatusRecord),
	}
}

// Observe updates duration records for one batch of telemetry. For each
// entity:
//
//   - no prior record: StartedAt is inferred from a status-specific
//     timestamp on the telemetry, falling back to "now" when none exists
//   - prior status differs: a new record starts now (observed transition)
//   - prior status matches: the prior StartedAt is kept unchanged
//
// Entities absent from the live-state map are forgotten, so records only
// live as long as the entity is visible.
func (d *DurationTracker) Observe(states map[EntityID]TelemetryState) {
	now := d.clock.Now()

	for id, t := range states {
		status := ResolveStatus(t)

		prior, ok := d.records[id]
		if ok && prior.Status == status {
			continue
		}
		if ok {
			d.records[id] = StatusRecord{
				EntityID:   id,
				Status:     status,
				StartedAt:  now,
				Provenance: ProvenanceRealtime,
			}
			continue
		}

		startedAt, inferred := inferStartedAt(t, status)
		provenance := ProvenanceInferred
		if !inferred {
			startedAt = now
			provenance = ProvenanceNowFallback
		}
		d.records[id] = StatusRecord{
			EntityID:   id,
			Status:     status,
			StartedAt:  startedAt,
			Provenance: provenance,
		}
	}

	for id := range d.records {
		if _, ok := states[id]; !ok {
			delete(d.records, id)
		}
	}
}

// inferStartedAt picks the provenance timestamp appropriate for the
// derived status: last update time for offline, the movement transition
// time for everything else. Returns false when no usable timestamp exists.
func inferStartedAt(t TelemetryState, status DerivedStatus) (time.Time, bool) {
	if status == StatusOffline {
		if !t.LastUpdateAt.IsZero() {
			return t.LastUpdateAt, true
		}
		return time.Time{}, false
	}
	if t.MovementChangedAt != nil && !t.MovementChangedAt.IsZero() {
		return *t.MovementChangedAt, true
	}
	return time.Time{}, false
}

// Records returns a copy of the current id to StatusRecord map.
func (d *DurationTracker) Records() map[EntityID]StatusRecord {
	out := make(map[EntityID]StatusRecord, len(d.records))
	for id, r := range d.records {
		out[id] = r
	}
	return out
}

// Elapsed returns how long the entity has held its current status, or zero
// if the entity has no record.
func (d *DurationTracker) Elapsed(id EntityID) time.Duration {
	r, ok := d.records[id]
	if !ok {
		return 0
	}
	return d.clock.Since(r.StartedAt)
}
