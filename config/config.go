// Package config holds roguehunterd's on-disk configuration, loaded from
// and saved to a JSON file under the XDG config directory.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hluisi/roguehunter/collector"
	"github.com/hluisi/roguehunter/model"
	"github.com/hluisi/roguehunter/tracker"
)

// Config holds every recognized daemon option.
type Config struct {
	System         SystemConfig         `json:"system"`
	Bands          BandsConfig          `json:"bands"`
	Retention      RetentionConfig      `json:"retention"`
	Scoring        ScoringConfig        `json:"scoring"`
	RogueSelection RogueSelectionConfig `json:"rogue_selection"`
	Telemetry      TelemetryConfig      `json:"telemetry"`

	DatabasePath string `json:"database_path"`
	SocketPath   string `json:"socket_path"`
}

// SystemConfig holds system.* options.
type SystemConfig struct {
	RingBufferSize    int     `json:"ring_buffer_size"`
	SampleIntervalSec float64 `json:"sample_interval"`
	ForensicsDebounce float64 `json:"forensics_debounce"`
}

// BandsConfig holds bands.* options.
type BandsConfig struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	Elevated int `json:"elevated"`
	High     int `json:"high"`
	Critical int `json:"critical"`

	TrackingBand  model.Band `json:"tracking_band"`
	ForensicsBand model.Band `json:"forensics_band"`

	MediumCheckpointSamples   int     `json:"medium_checkpoint_samples"`
	ElevatedCheckpointSamples int     `json:"elevated_checkpoint_samples"`
	EventCooldownSeconds      float64 `json:"event_cooldown_seconds"`
	ExitStabilitySamples      int     `json:"exit_stability_samples"`
}

// RetentionConfig holds retention.* options.
type RetentionConfig struct {
	EventsDays int `json:"events_days"`
}

// ScoringConfig holds scoring.* options.
type ScoringConfig struct {
	Weights          WeightsConfig          `json:"weights"`
	StateMultipliers StateMultipliersConfig `json:"state_multipliers"`
}

// WeightsConfig holds scoring.weights.*.
type WeightsConfig struct {
	CPU     float64 `json:"cpu"`
	GPU     float64 `json:"gpu"`
	Memory  float64 `json:"memory"`
	Disk    float64 `json:"disk"`
	Wakeups float64 `json:"wakeups"`
}

// StateMultipliersConfig holds scoring.state_multipliers.*.
type StateMultipliersConfig struct {
	Idle     float64 `json:"idle"`
	Sleeping float64 `json:"sleeping"`
	Stopped  float64 `json:"stopped"`
	Halted   float64 `json:"halted"`
	Zombie   float64 `json:"zombie"`
	Running  float64 `json:"running"`
	Stuck    float64 `json:"stuck"`
}

// RogueSelectionConfig holds rogue_selection.*.
type RogueSelectionConfig struct {
	TopN int `json:"top_n"`
}

// TelemetryConfig controls the optional Prometheus HTTP exporter.
type TelemetryConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		System: SystemConfig{
			RingBufferSize:    180,
			SampleIntervalSec: 1,
			ForensicsDebounce: 5,
		},
		Bands: BandsConfig{
			Low: 0, Medium: 20, Elevated: 45, High: 60, Critical: 80,
			TrackingBand:              model.BandMedium,
			ForensicsBand:             model.BandCritical,
			MediumCheckpointSamples:   60,
			ElevatedCheckpointSamples: 30,
			EventCooldownSeconds:      30,
			ExitStabilitySamples:      15,
		},
		Retention: RetentionConfig{EventsDays: 14},
		Scoring: ScoringConfig{
			Weights:          WeightsConfig{CPU: 1, GPU: 1, Memory: 1, Disk: 1, Wakeups: 1},
			StateMultipliers: StateMultipliersConfig{Idle: 0.5, Sleeping: 0.5, Stopped: 0.7, Halted: 0.8, Zombie: 0.9, Running: 1.0, Stuck: 1.0},
		},
		RogueSelection: RogueSelectionConfig{TopN: 20},
		Telemetry:      TelemetryConfig{Enabled: false, Addr: "127.0.0.1:9101"},
		DatabasePath:   "",
		SocketPath:     "",
	}
}

// Path returns ~/.config/roguehunter/config.json (or XDG_CONFIG_HOME).
// Returns empty string if the home directory cannot be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // refuse to fall back to /tmp (security risk)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "roguehunter", "config.json")
}

// Load loads config from disk; returns defaults on error or if unset
// fields are filled in with their path defaults.
func Load() Config {
	cfg := Default()
	p := Path()
	if p == "" {
		return WithDefaultPaths(cfg)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return WithDefaultPaths(cfg)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("roguehunterd: warning: config parse error: %v", err)
	}
	return WithDefaultPaths(cfg)
}

// WithDefaultPaths fills in DatabasePath and SocketPath when the loaded
// config leaves them empty.
func WithDefaultPaths(cfg Config) Config {
	home, err := os.UserHomeDir()
	base := "/var/lib/roguehunter"
	if err == nil {
		base = filepath.Join(home, ".local", "share", "roguehunter")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(base, "roguehunter.db")
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(base, "roguehunter.sock")
	}
	return cfg
}

// Save writes the config to disk.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate rejects out-of-range values before the daemon starts. A config
// that fails validation never starts sampling.
func (c Config) Validate() error {
	if c.System.RingBufferSize < 1 {
		return fmt.Errorf("config: system.ring_buffer_size must be >= 1, got %d", c.System.RingBufferSize)
	}
	if c.System.SampleIntervalSec <= 0 {
		return fmt.Errorf("config: system.sample_interval must be > 0, got %v", c.System.SampleIntervalSec)
	}
	if c.System.ForensicsDebounce < 0 {
		return fmt.Errorf("config: system.forensics_debounce must be >= 0, got %v", c.System.ForensicsDebounce)
	}
	thresholds := []struct {
		name  string
		value int
	}{
		{"bands.low", c.Bands.Low},
		{"bands.medium", c.Bands.Medium},
		{"bands.elevated", c.Bands.Elevated},
		{"bands.high", c.Bands.High},
		{"bands.critical", c.Bands.Critical},
	}
	for i, t := range thresholds {
		if t.value < 0 || t.value > 100 {
			return fmt.Errorf("config: %s must be in [0,100], got %d", t.name, t.value)
		}
		if i > 0 && t.value <= thresholds[i-1].value {
			return fmt.Errorf("config: %s (%d) must be greater than %s (%d)", t.name, t.value, thresholds[i-1].name, thresholds[i-1].value)
		}
	}
	if c.Bands.TrackingBand.Severity() < 0 {
		return fmt.Errorf("config: bands.tracking_band %q is not a band", c.Bands.TrackingBand)
	}
	if c.Bands.ForensicsBand.Severity() < 0 {
		return fmt.Errorf("config: bands.forensics_band %q is not a band", c.Bands.ForensicsBand)
	}
	if c.Bands.ExitStabilitySamples < 1 {
		return fmt.Errorf("config: bands.exit_stability_samples must be >= 1, got %d", c.Bands.ExitStabilitySamples)
	}
	if c.Bands.EventCooldownSeconds < 0 {
		return fmt.Errorf("config: bands.event_cooldown_seconds must be >= 0, got %v", c.Bands.EventCooldownSeconds)
	}
	if c.Retention.EventsDays < 1 {
		return fmt.Errorf("config: retention.events_days must be >= 1, got %d", c.Retention.EventsDays)
	}
	if c.RogueSelection.TopN < 1 {
		return fmt.Errorf("config: rogue_selection.top_n must be >= 1, got %d", c.RogueSelection.TopN)
	}
	for name, w := range map[string]float64{
		"cpu": c.Scoring.Weights.CPU, "gpu": c.Scoring.Weights.GPU,
		"memory": c.Scoring.Weights.Memory, "disk": c.Scoring.Weights.Disk,
		"wakeups": c.Scoring.Weights.Wakeups,
	} {
		if w < 0 {
			return fmt.Errorf("config: scoring.weights.%s must be >= 0, got %v", name, w)
		}
	}
	return nil
}

// SampleInterval returns the configured tick period as a time.Duration.
func (c Config) SampleInterval() time.Duration {
	return time.Duration(c.System.SampleIntervalSec * float64(time.Second))
}

// CollectorConfig converts scoring.* and rogue_selection.top_n into a
// collector.Config.
func (c Config) CollectorConfig() collector.Config {
	return collector.Config{
		Weights: collector.Weights{
			CPU: c.Scoring.Weights.CPU, GPU: c.Scoring.Weights.GPU,
			Memory: c.Scoring.Weights.Memory, Disk: c.Scoring.Weights.Disk,
			Wakeups: c.Scoring.Weights.Wakeups,
		},
		StateMultipliers: collector.StateMultipliers{
			model.StateIdle:     c.Scoring.StateMultipliers.Idle,
			model.StateSleeping: c.Scoring.StateMultipliers.Sleeping,
			model.StateStopped:  c.Scoring.StateMultipliers.Stopped,
			model.StateHalted:   c.Scoring.StateMultipliers.Halted,
			model.StateZombie:   c.Scoring.StateMultipliers.Zombie,
			model.StateRunning:  c.Scoring.StateMultipliers.Running,
			model.StateStuck:    c.Scoring.StateMultipliers.Stuck,
		},
		Bands: collector.BandThresholds{
			Low: c.Bands.Low, Medium: c.Bands.Medium, Elevated: c.Bands.Elevated,
			High: c.Bands.High, Critical: c.Bands.Critical,
		},
		TopN: c.RogueSelection.TopN,
	}
}

// TrackerConfig converts bands.* into a tracker.Config. tickPeriod should
// be the same duration the daemon's ticker runs at.
func (c Config) TrackerConfig(tickPeriod time.Duration) tracker.Config {
	bandScore := map[model.Band]int{
		model.BandLow: c.Bands.Low, model.BandMedium: c.Bands.Medium,
		model.BandElevated: c.Bands.Elevated, model.BandHigh: c.Bands.High,
		model.BandCritical: c.Bands.Critical,
	}
	return tracker.Config{
		TrackingThreshold: bandScore[c.Bands.TrackingBand],
		ForensicsBand:     c.Bands.ForensicsBand,
		CheckpointIntervalSamples: map[model.Band]int{
			model.BandMedium:   c.Bands.MediumCheckpointSamples,
			model.BandElevated: c.Bands.ElevatedCheckpointSamples,
			model.BandHigh:     1,
			model.BandCritical: 1,
		},
		ExitStabilitySamples: c.Bands.ExitStabilitySamples,
		EventCooldownSeconds: c.Bands.EventCooldownSeconds,
		TickPeriod:           tickPeriod,
	}
}
