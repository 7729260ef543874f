// Package stream implements the reconnecting telemetry channel: the frame
// codec for the backend's wire protocol, the subscribe/ack/event cycle,
// and backoff reconnection.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/monitoring"
)

// Wire protocol constants. These match the upstream service exactly and
// must not be renamed.
const (
	actionSubscribe   = "subscribe"
	requestStateBatch = "state_batch"

	frameTypeResponse = "response"
	frameTypeEvent    = "event"

	ackAction = "subscription/subscribe"

	// paddingFrame is a bare keepalive token interleaved between frames.
	paddingFrame = "X"
)

// Scope selects which entities a subscription covers.
type Scope struct {
	All        bool
	TrackerIDs []fleet.EntityID
}

// AllEntities is the subscription scope covering the whole fleet.
var AllEntities = Scope{All: true}

// subscribeTarget is the wire form of a Scope.
type subscribeTarget struct {
	Type       string           `json:"type"`
	TrackerIDs []fleet.EntityID `json:"tracker_ids,omitempty"`
}

type subscribeRequest struct {
	Type      string          `json:"type"`
	Target    subscribeTarget `json:"target"`
	RateLimit string          `json:"rate_limit"`
	Format    string          `json:"format"`
}

type subscribeEnvelope struct {
	Action   string             `json:"action"`
	Hash     string             `json:"hash"`
	Requests []subscribeRequest `json:"requests"`
}

// newSubscribeEnvelope builds the outbound subscription for a credential
// and scope, requesting full-format state batches at a 1s rate limit.
func newSubscribeEnvelope(credential string, scope Scope) subscribeEnvelope {
	target := subscribeTarget{Type: "all"}
	if !scope.All {
		target = subscribeTarget{Type: "selected", TrackerIDs: scope.TrackerIDs}
	}
	return subscribeEnvelope{
		Action: actionSubscribe,
		Hash:   credential,
		Requests: []subscribeRequest{{
			Type:      requestStateBatch,
			Target:    target,
			RateLimit: "1s",
			Format:    "full",
		}},
	}
}

// frame is the inbound envelope shared by acks and events.
type frame struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// decodeFrame parses one raw inbound message. It returns (nil, nil) for
// padding and for anything unparseable: malformed frames are dropped, not
// fatal. Frames may arrive wrapped as "<length>|<json>"; the prefix is
// discarded and the remainder is parsed only if it begins with '{'.
func decodeFrame(raw string) *frame {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == paddingFrame {
		return nil
	}
	if i := strings.IndexByte(raw, '|'); i >= 0 {
		raw = raw[i+1:]
	}
	if !strings.HasPrefix(raw, "{") {
		return nil
	}
	var f frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil
	}
	return &f
}

// ackResult is the per-request status inside a subscription ack.
type ackResult struct {
	Success *bool           `json:"success,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// parseAck extracts the state_batch subscription result from an ack frame.
func parseAck(data json.RawMessage) (ok bool, detail string) {
	var body map[string]ackResult
	if err := json.Unmarshal(data, &body); err != nil {
		return false, fmt.Sprintf("unparseable ack payload: %v", err)
	}
	res, found := body[requestStateBatch]
	if !found {
		return false, "ack missing state_batch result"
	}
	if res.Success != nil && *res.Success {
		return true, ""
	}
	if len(res.Value) > 0 {
		return true, string(res.Value)
	}
	return false, "subscription rejected"
}

// rawState is the wire shape of one per-entity state object. A frame may
// carry either the internal tracker id or only the shared hardware source
// id; TrackerID wins during de-aliasing.
type rawState struct {
	TrackerID fleet.EntityID `json:"tracker_id"`
	SourceID  fleet.EntityID `json:"source_id"`

	GPS struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		Heading float64 `json:"heading"`
		Speed   float64 `json:"speed"`
	} `json:"gps"`

	ConnectionStatus     string   `json:"connection_status"`
	MovementStatus       string   `json:"movement_status"`
	MovementStatusUpdate wireTime `json:"movement_status_update"`
	Ignition             *bool    `json:"ignition"`
	IgnitionUpdate       wireTime `json:"ignition_update"`
	Inputs               []bool   `json:"inputs"`
	BatteryLevel         *int     `json:"battery_level"`
	LastUpdate           wireTime `json:"last_update"`
}

// wireTime accepts both RFC3339 and the backend's legacy
// "2006-01-02 15:04:05" timestamp form.
type wireTime struct {
	t time.Time
}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		w.t = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		w.t = t
		return nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return fmt.Errorf("unrecognised timestamp %q", s)
	}
	w.t = t.UTC()
	return nil
}

func (w wireTime) ptr() *time.Time {
	if w.t.IsZero() {
		return nil
	}
	t := w.t
	return &t
}

// stateWrapper covers items that arrive nested under a "state" key.
type stateWrapper struct {
	State json.RawMessage `json:"state"`
}

// parseStateBatch assembles an id to TelemetryState map from an event
// frame's data, which may be a single object or an array, each item
// optionally wrapped as {"state": {...}}. Unparseable items and items
// with no resolvable id are dropped without failing the rest of the
// batch. Later items for the same id overwrite earlier ones.
func parseStateBatch(data json.RawMessage) fleet.Batch {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		// not an array: treat as a single object
		items = []json.RawMessage{data}
	}

	batch := make(fleet.Batch, len(items))
	for _, item := range items {
		var wrap stateWrapper
		if err := json.Unmarshal(item, &wrap); err == nil && len(wrap.State) > 0 {
			item = wrap.State
		}

		var rs rawState
		if err := json.Unmarshal(item, &rs); err != nil {
			monitoring.Logf("stream: dropping malformed state item: %v", err)
			continue
		}

		// de-aliasing: the internal tracker id always wins over the
		// shared hardware source id
		id := rs.TrackerID
		if id == 0 {
			id = rs.SourceID
		}
		if id == 0 {
			continue
		}

		batch[id] = fleet.TelemetryState{
			EntityID: id,
			Position: fleet.Position{
				Lat: rs.GPS.Location.Lat,
				Lng: rs.GPS.Location.Lng,
			},
			Heading:           rs.GPS.Heading,
			Speed:             rs.GPS.Speed,
			Ignition:          rs.Ignition,
			Inputs:            rs.Inputs,
			Connection:        fleet.ConnectionStatus(rs.ConnectionStatus),
			Movement:          fleet.MovementStatus(rs.MovementStatus),
			MovementChangedAt: rs.MovementStatusUpdate.ptr(),
			IgnitionChangedAt: rs.IgnitionUpdate.ptr(),
			BatteryLevel:      rs.BatteryLevel,
			LastUpdateAt:      rs.LastUpdate.t,
		}
	}
	return batch
}
