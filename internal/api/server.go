// Package api exposes the collaborator-facing HTTP surface: the live
// fleet snapshot, per-entity status durations, the analysis snapshot,
// zone CRUD, and an SSE feed of live-state deltas.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/fleetwatch/internal/analysis"
	"github.com/banshee-data/fleetwatch/internal/db"
	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/units"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server holds the handler dependencies.
type Server struct {
	tracker  *fleet.Tracker
	store    *db.DB
	analyzer *analysis.Analyzer
	units    string
}

// NewServer creates an API server. units selects the speed unit for
// display fields; storage stays km/h.
func NewServer(tracker *fleet.Tracker, store *db.DB, analyzer *analysis.Analyzer, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.KPH
	}
	return &Server{
		tracker:  tracker,
		store:    store,
		analyzer: analyzer,
		units:    displayUnits,
	}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/entities", s.listEntities)
	mux.HandleFunc("/api/durations", s.listDurations)
	mux.HandleFunc("/api/analysis", s.showAnalysis)
	mux.HandleFunc("/api/zones", s.zonesCollection)
	mux.HandleFunc("/api/zones/", s.zoneItem)
	mux.HandleFunc("/api/live", s.liveTail)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
