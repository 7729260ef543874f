// Package config loads the optional JSON tuning file. Fields omitted from
// the file keep their defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/fleetwatch/internal/analysis"
	"github.com/banshee-data/fleetwatch/internal/buffer"
	"github.com/banshee-data/fleetwatch/internal/congestion"
)

// TuningConfig holds the tunable analysis and persistence parameters.
// All fields are pointers so a partial file only overrides what it names.
type TuningConfig struct {
	// Congestion clustering params
	SlowSpeedKPH  *float64 `json:"slow_speed_kph,omitempty"`
	ClusterEpsM   *float64 `json:"cluster_eps_m,omitempty"`
	ClusterMinPts *int     `json:"cluster_min_pts,omitempty"`

	// Loop intervals, duration strings like "30s"
	FlushInterval    *string `json:"flush_interval,omitempty"`
	AnalysisInterval *string `json:"analysis_interval,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg TuningConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// AnalysisConfig applies the tuning overrides to the default analysis
// configuration.
func (c *TuningConfig) AnalysisConfig() (analysis.Config, error) {
	cfg := analysis.DefaultConfig()
	if c == nil {
		return cfg, nil
	}
	if c.SlowSpeedKPH != nil {
		if *c.SlowSpeedKPH <= 0 {
			return cfg, fmt.Errorf("slow_speed_kph must be positive, got %v", *c.SlowSpeedKPH)
		}
		cfg.SlowSpeedKPH = *c.SlowSpeedKPH
	}
	if c.ClusterEpsM != nil {
		if *c.ClusterEpsM <= 0 {
			return cfg, fmt.Errorf("cluster_eps_m must be positive, got %v", *c.ClusterEpsM)
		}
		cfg.Cluster.EpsMeters = *c.ClusterEpsM
	}
	if c.ClusterMinPts != nil {
		if *c.ClusterMinPts < congestion.DefaultMinPoints {
			return cfg, fmt.Errorf("cluster_min_pts must be at least %d, got %d", congestion.DefaultMinPoints, *c.ClusterMinPts)
		}
		cfg.Cluster.MinPoints = *c.ClusterMinPts
	}
	if c.AnalysisInterval != nil {
		d, err := time.ParseDuration(*c.AnalysisInterval)
		if err != nil {
			return cfg, fmt.Errorf("invalid analysis_interval: %w", err)
		}
		cfg.Interval = d
	}
	return cfg, nil
}

// FlushInterval returns the configured flush interval, or the buffer
// default.
func (c *TuningConfig) FlushIntervalOrDefault() (time.Duration, error) {
	if c == nil || c.FlushInterval == nil {
		return buffer.DefaultFlushInterval, nil
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid flush_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("flush_interval must be positive, got %v", d)
	}
	return d, nil
}
