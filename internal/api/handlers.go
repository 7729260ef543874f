package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/fleetwatch/internal/db"
	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/geo"
	"github.com/banshee-data/fleetwatch/internal/httputil"
	"github.com/banshee-data/fleetwatch/internal/units"
	"github.com/banshee-data/fleetwatch/internal/version"
)

// entityView is one entity in the /api/entities response: identity fields
// joined with either live or last-persisted telemetry.
type entityView struct {
	fleet.EntityRecord
	Live               bool    `json:"live"`
	Status             string  `json:"status,omitempty"`
	TripDistanceMeters float64 `json:"trip_distance_meters,omitempty"`
}

// listEntities serves the fleet snapshot. Live state wins; entities the
// stream has not reported yet fall back to their persisted telemetry, so
// the endpoint stays useful while the channel is down.
func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	records, err := s.store.GetAll()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load entities: %v", err))
		return
	}
	live := s.tracker.Snapshot()

	views := make([]entityView, 0, len(records))
	seen := make(map[fleet.EntityID]struct{}, len(records))
	for _, rec := range records {
		seen[rec.ID] = struct{}{}
		v := entityView{EntityRecord: rec}
		if state, ok := live[rec.ID]; ok {
			state = s.convertSpeed(state)
			v.Telemetry = &state
			v.Live = true
			v.Status = string(fleet.ResolveStatus(state))
			v.TripDistanceMeters = s.tracker.TrackDistanceMeters(rec.ID)
		} else if v.Telemetry != nil {
			t := s.convertSpeed(*v.Telemetry)
			v.Telemetry = &t
			v.Status = string(fleet.ResolveStatus(t))
		}
		views = append(views, v)
	}
	// live entities the identity listing has not delivered yet
	for id, state := range live {
		if _, ok := seen[id]; ok {
			continue
		}
		state = s.convertSpeed(state)
		views = append(views, entityView{
			EntityRecord:       fleet.EntityRecord{ID: id, Telemetry: &state},
			Live:               true,
			Status:             string(fleet.ResolveStatus(state)),
			TripDistanceMeters: s.tracker.TrackDistanceMeters(id),
		})
	}

	httputil.WriteJSONOK(w, views)
}

// convertSpeed applies the display unit to a state's speed field. Status
// derivation always runs on the stored km/h value, never the converted
// one.
func (s *Server) convertSpeed(state fleet.TelemetryState) fleet.TelemetryState {
	state.Speed = units.ConvertSpeed(state.Speed, s.units)
	return state
}

// durationView is one entry in the /api/durations response.
type durationView struct {
	fleet.StatusRecord
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

func (s *Server) listDurations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	now := time.Now()
	records := s.tracker.Durations()
	views := make(map[fleet.EntityID]durationView, len(records))
	for id, rec := range records {
		views[id] = durationView{
			StatusRecord:   rec,
			ElapsedSeconds: now.Sub(rec.StartedAt).Seconds(),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (s *Server) showAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.analyzer.Latest()
	if snap.TakenAt.IsZero() || r.URL.Query().Get("fresh") == "1" {
		snap = s.analyzer.Tick()
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) zonesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		zones, err := s.store.ListZones()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to list zones: %v", err))
			return
		}
		if zones == nil {
			zones = []geo.Zone{}
		}
		httputil.WriteJSON(w, http.StatusOK, zones)

	case http.MethodPost:
		var zone geo.Zone
		if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid zone payload: %v", err))
			return
		}
		if err := s.store.CreateZone(&zone); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, zone)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) zoneItem(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/zones/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid zone id %q", idStr))
		return
	}

	switch r.Method {
	case http.MethodGet:
		zone, err := s.store.GetZone(id)
		if errors.Is(err, db.ErrZoneNotFound) {
			httputil.NotFound(w, "zone not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, zone)

	case http.MethodPut:
		var zone geo.Zone
		if err := json.NewDecoder(r.Body).Decode(&zone); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid zone payload: %v", err))
			return
		}
		zone.ID = id
		err := s.store.UpdateZone(zone)
		if errors.Is(err, db.ErrZoneNotFound) {
			httputil.NotFound(w, "zone not found")
			return
		}
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, zone)

	case http.MethodDelete:
		err := s.store.DeleteZone(id)
		if errors.Is(err, db.ErrZoneNotFound) {
			httputil.NotFound(w, "zone not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		httputil.MethodNotAllowed(w)
	}
}

// liveTail streams live-state deltas to the client as server-sent events,
// one event per applied batch.
func (s *Server) liveTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, deltas := s.tracker.Subscribe()
	defer s.tracker.Unsubscribe(id)

	// initial ping establishes the stream
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case batch, ok := <-deltas:
			if !ok {
				return
			}
			payload, err := json.Marshal(batch)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"units":   s.units,
	})
}
