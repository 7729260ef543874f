// Package fleet holds the core domain model for tracked vehicles: the
// telemetry snapshot delivered by the stream, the derived operational
// status, and the per-entity status duration record.
package fleet

import "time"

// EntityID is the canonical integer identity for a tracked vehicle. A raw
// frame may carry both an internal unique id and a shared hardware source
// id; the internal id always wins during frame decoding, so everything
// downstream keys on exactly one EntityID per logical vehicle.
type EntityID int64

// ConnectionStatus describes the device's link to the telemetry backend.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionIdle    ConnectionStatus = "idle"
	ConnectionOffline ConnectionStatus = "offline"
)

// MovementStatus is the device-reported motion state. The zero value
// MovementUnset means the device did not report one and status derivation
// must fall back to speed and ignition.
type MovementStatus string

const (
	MovementUnset   MovementStatus = ""
	MovementMoving  MovementStatus = "moving"
	MovementStopped MovementStatus = "stopped"
	MovementParked  MovementStatus = "parked"
)

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TelemetryState is a point-in-time snapshot of one entity. Speeds are km/h.
//
// Ignition and Inputs are kept separate because some devices report a
// dedicated ignition flag while others expose it only as the first discrete
// input channel; IgnitionOn() applies that fallback.
type TelemetryState struct {
	EntityID   EntityID         `json:"entity_id"`
	Position   Position         `json:"position"`
	Heading    float64          `json:"heading"`
	Speed      float64          `json:"speed"`
	Ignition   *bool            `json:"ignition,omitempty"`
	Inputs     []bool           `json:"inputs,omitempty"`
	Connection ConnectionStatus `json:"connection_status"`
	Movement   MovementStatus   `json:"movement_status,omitempty"`

	// MovementChangedAt and IgnitionChangedAt are backend-supplied
	// transition timestamps, used to infer how long the current status has
	// already been in effect when we first observe an entity.
	MovementChangedAt *time.Time `json:"movement_status_changed_at,omitempty"`
	IgnitionChangedAt *time.Time `json:"ignition_changed_at,omitempty"`

	BatteryLevel *int      `json:"battery_level,omitempty"`
	LastUpdateAt time.Time `json:"last_update_at"`
}

// IgnitionOn resolves the effective ignition state: the explicit flag if
// present, otherwise the first discrete input channel, otherwise false.
func (t TelemetryState) IgnitionOn() bool {
	if t.Ignition != nil {
		return *t.Ignition
	}
	if len(t.Inputs) > 0 {
		return t.Inputs[0]
	}
	return false
}

// DerivedStatus is the discrete operational status shown for an entity.
// Exactly one status holds per entity per instant.
type DerivedStatus string

const (
	StatusMoving     DerivedStatus = "moving"
	StatusStopped    DerivedStatus = "stopped"
	StatusParked     DerivedStatus = "parked"
	StatusIdleStop   DerivedStatus = "idle-stopped"
	StatusIdleParked DerivedStatus = "idle-parked"
	StatusOffline    DerivedStatus = "offline"
)

// Provenance records how a StatusRecord's StartedAt was determined. No
// downstream logic branches on it; it exists for auditability.
type Provenance string

const (
	// ProvenanceRealtime marks a start time taken from an observed
	// status transition between two consecutive updates.
	ProvenanceRealtime Provenance = "realtime-transition"
	// ProvenanceInferred marks a start time inferred from a
	// status-specific timestamp carried on the telemetry itself.
	ProvenanceInferred Provenance = "api-inferred"
	// ProvenanceNowFallback marks a start time that defaulted to the
	// observation time because no usable timestamp was available.
	ProvenanceNowFallback Provenance = "now-fallback"
)

// StatusRecord is the per-entity status duration accounting entry.
// StartedAt is monotonic within an unbroken status streak and resets only
// on an observed transition.
type StatusRecord struct {
	EntityID   EntityID      `json:"entity_id"`
	Status     DerivedStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Provenance Provenance    `json:"provenance"`
}

// EntityRecord is the persisted identity row for an entity, seeded by the
// directory listing and thereafter only ever telemetry-merged. Telemetry is
// nil until the first successful flush for that entity.
type EntityRecord struct {
	ID              EntityID        `json:"id"`
	Label           string          `json:"label"`
	Group           string          `json:"group"`
	Model           string          `json:"model"`
	Phone           string          `json:"phone"`
	DeviceID        string          `json:"device_id"`
	ContractEndDate string          `json:"contract_end_date,omitempty"`
	Telemetry       *TelemetryState `json:"telemetry,omitempty"`
}
