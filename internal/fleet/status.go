package fleet

// MovingSpeedKPH is the speed above which an entity with no reported
// movement status is considered moving.
const MovingSpeedKPH = 5.0

// ResolveStatus derives the discrete operational status for a telemetry
// snapshot. It is a pure function: identical input always yields identical
// output, since the result feeds both live display and duration accounting.
//
// Precedence, strictly in order:
//
//  1. offline connection overrides everything else
//  2. a reported movement status, combined with ignition for the
//     stopped/parked idle variants
//  3. speed above the moving threshold, then ignition, then stopped
func ResolveStatus(t TelemetryState) DerivedStatus {
	if t.Connection == ConnectionOffline {
		return StatusOffline
	}

	switch t.Movement {
	case MovementMoving:
		return StatusMoving
	case MovementParked:
		if t.IgnitionOn() {
			return StatusIdleParked
		}
		return StatusParked
	case MovementStopped:
		if t.IgnitionOn() {
			return StatusIdleStop
		}
		return StatusStopped
	case MovementUnset:
		// fall through to speed-based derivation
	}

	if t.Speed > MovingSpeedKPH {
		return StatusMoving
	}
	if t.IgnitionOn() {
		return StatusIdleStop
	}
	return StatusStopped
}
