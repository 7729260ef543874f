package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/fleetwatch/internal/analysis"
	"github.com/banshee-data/fleetwatch/internal/api"
	"github.com/banshee-data/fleetwatch/internal/buffer"
	"github.com/banshee-data/fleetwatch/internal/config"
	"github.com/banshee-data/fleetwatch/internal/db"
	"github.com/banshee-data/fleetwatch/internal/directory"
	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/httputil"
	"github.com/banshee-data/fleetwatch/internal/stream"
	"github.com/banshee-data/fleetwatch/internal/timeutil"
	"github.com/banshee-data/fleetwatch/internal/units"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (mock stream fed from fixtures.txt)")
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "fleetwatch.db", "SQLite database file")
	streamURL  = flag.String("stream-url", "", "Telemetry websocket URL (ignored in dev mode)")
	apiURL     = flag.String("api-url", "", "Directory HTTP API base URL (optional)")
	credential = flag.String("hash", "", "Session credential for the upstream APIs")
	configFile = flag.String("config", "", "Optional tuning config JSON file")
	unitFlag   = flag.String("units", units.KPH, "Display speed units (kph, mph, mps)")
)

// devDialer builds a mock stream dialer fed by fixtures.txt, one wire frame
// per line. Lets the whole pipeline run with no upstream connection.
func devDialer() (stream.Dialer, error) {
	data, err := os.ReadFile("fixtures.txt")
	if err != nil {
		return nil, err
	}
	conn := stream.NewMockConn()
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		conn.Queue(line)
	}
	return stream.NewMockDialer(conn), nil
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*unitFlag) {
		log.Fatalf("invalid units %q", *unitFlag)
	}
	if !*devMode && *streamURL == "" {
		log.Fatal("Stream URL is required outside dev mode")
	}

	var tuning *config.TuningConfig
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configFile)
	}
	analysisCfg, err := tuning.AnalysisConfig()
	if err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}
	flushInterval, err := tuning.FlushIntervalOrDefault()
	if err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	clock := timeutil.RealClock{}
	tracker := fleet.NewTracker(clock)
	flusher := buffer.New(store, clock, flushInterval)
	analyzer := analysis.NewAnalyzer(tracker, store, clock, analysisCfg)

	var dialer stream.Dialer
	if *devMode {
		dialer, err = devDialer()
		if err != nil {
			log.Fatalf("failed to load fixtures: %v", err)
		}
	} else {
		dialer = stream.NewWebsocketDialer(nil)
	}
	channel := stream.NewChannel(dialer, *streamURL, clock)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed entity identities from the directory API in the background; live
	// telemetry does not wait on it.
	if *apiURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := directory.NewClient(httputil.NewStandardClient(nil), *apiURL, *credential)
			if err := client.Seed(store); err != nil {
				log.Printf("failed to seed entity directory: %v", err)
			}
		}()
	}

	onUpdate := func(batch fleet.Batch) {
		tracker.ApplyBatch(batch)
		flusher.QueueStates(batch)
	}
	if err := channel.Connect(ctx, *credential, stream.AllEntities, onUpdate); err != nil {
		log.Fatalf("failed to start telemetry channel: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := flusher.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("flusher terminated: %v", err)
		}
		log.Print("flusher routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := analyzer.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("analyzer terminated: %v", err)
		}
		log.Print("analyzer routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(tracker, store, analyzer, *unitFlag).ServeMux()
		store.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	channel.Disconnect()
	flusher.Stop()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
