package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hluisi/roguehunter/model"
)

func TestDefaultRoundTripsThroughJSON(t *testing.T) {
	cfg := Default()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.System.RingBufferSize != cfg.System.RingBufferSize {
		t.Fatalf("ring_buffer_size mismatch after round trip: %d != %d", decoded.System.RingBufferSize, cfg.System.RingBufferSize)
	}
	if decoded.Bands.ForensicsBand != cfg.Bands.ForensicsBand {
		t.Fatalf("forensics_band mismatch after round trip: %q != %q", decoded.Bands.ForensicsBand, cfg.Bands.ForensicsBand)
	}
}

func TestSampleInterval(t *testing.T) {
	cfg := Default()
	cfg.System.SampleIntervalSec = 0.333
	got := cfg.SampleInterval()
	want := 333 * time.Millisecond
	if got < want-time.Millisecond || got > want+time.Millisecond {
		t.Fatalf("SampleInterval() = %v, want ~%v", got, want)
	}
}

func TestCollectorConfigWiresWeightsAndBands(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Weights.CPU = 2
	cfg.Bands.Critical = 90

	cc := cfg.CollectorConfig()
	if cc.Weights.CPU != 2 {
		t.Fatalf("expected CPU weight 2, got %v", cc.Weights.CPU)
	}
	if cc.Bands.Critical != 90 {
		t.Fatalf("expected critical threshold 90, got %v", cc.Bands.Critical)
	}
	if cc.TopN != cfg.RogueSelection.TopN {
		t.Fatalf("expected TopN to carry through, got %d", cc.TopN)
	}
}

func TestTrackerConfigResolvesTrackingBandToScore(t *testing.T) {
	cfg := Default()
	cfg.Bands.TrackingBand = model.BandElevated
	cfg.Bands.Elevated = 45

	tc := cfg.TrackerConfig(333 * time.Millisecond)
	if tc.TrackingThreshold != 45 {
		t.Fatalf("expected tracking threshold 45 for elevated band, got %d", tc.TrackingThreshold)
	}
	if tc.ForensicsBand != model.BandCritical {
		t.Fatalf("expected default forensics band critical, got %q", tc.ForensicsBand)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ring buffer", func(c *Config) { c.System.RingBufferSize = 0 }},
		{"zero sample interval", func(c *Config) { c.System.SampleIntervalSec = 0 }},
		{"negative debounce", func(c *Config) { c.System.ForensicsDebounce = -1 }},
		{"band over 100", func(c *Config) { c.Bands.Critical = 101 }},
		{"non-ascending bands", func(c *Config) { c.Bands.Elevated = c.Bands.Medium }},
		{"unknown tracking band", func(c *Config) { c.Bands.TrackingBand = "severe" }},
		{"zero exit stability", func(c *Config) { c.Bands.ExitStabilitySamples = 0 }},
		{"zero retention", func(c *Config) { c.Retention.EventsDays = 0 }},
		{"zero top n", func(c *Config) { c.RogueSelection.TopN = 0 }},
		{"negative weight", func(c *Config) { c.Scoring.Weights.Disk = -0.5 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error, got nil", tc.name)
		}
	}
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := Load()
	if cfg.System.RingBufferSize != Default().System.RingBufferSize {
		t.Fatalf("expected default ring_buffer_size when no config file exists")
	}
	if cfg.DatabasePath == "" || cfg.SocketPath == "" {
		t.Fatalf("expected Load to fill in default paths, got db=%q sock=%q", cfg.DatabasePath, cfg.SocketPath)
	}
}
