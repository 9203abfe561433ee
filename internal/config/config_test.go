package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/vconcat/internal/errs"
)

func twoSources() []SourceConfig {
	return []SourceConfig{{Path: "a.mp4"}, {Path: "b.mp4"}}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Concurrency != 4 {
		t.Errorf("Expected concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.FrameFormat != FrameRaw {
		t.Errorf("Expected raw frames, got %s", cfg.FrameFormat)
	}
	if !cfg.CleanupFrames {
		t.Error("Expected cleanup enabled by default")
	}
	if cfg.AudioFileName != "audioConcat.mp3" {
		t.Errorf("Unexpected audio file name %s", cfg.AudioFileName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"one source", func(c *Config) { c.Sources = c.Sources[:1] }, true},
		{"empty path", func(c *Config) { c.Sources[1].Path = " " }, true},
		{"no output", func(c *Config) { c.Output = "" }, true},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, false},
		{"bad format", func(c *Config) { c.FrameFormat = "tiff" }, true},
		{"pair out of range", func(c *Config) {
			c.Transitions = []TransitionOverride{{Pair: 1, TransitionSpec: TransitionSpec{Name: "fade"}}}
		}, true},
		{"negative transition", func(c *Config) { c.Transition = &TransitionSpec{Name: "fade", Duration: -1} }, true},
		{"odd width", func(c *Config) { c.Width, c.Height = 641, 480 }, true},
		{"replay without sources", func(c *Config) { c.Sources, c.Scenario = nil, "scenario.yaml" }, false},
		{"replay with overrides", func(c *Config) {
			c.Scenario = "scenario.yaml"
			c.Transitions = []TransitionOverride{{Pair: 0, TransitionSpec: TransitionSpec{Name: "fade"}}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Sources = twoSources()
			cfg.Output = "out.mp4"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, errs.ErrConfig) {
					t.Fatalf("Expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if cfg.Concurrency <= 0 {
				t.Errorf("Expected positive concurrency, got %d", cfg.Concurrency)
			}
			if cfg.Log == nil {
				t.Error("Expected a no-op log sink")
			}
		})
	}
}

func TestParseFrameFormat(t *testing.T) {
	for in, want := range map[string]FrameFormat{"": FrameRaw, "RAW": FrameRaw, "png": FramePNG, "jpeg": FrameJPG} {
		got, err := ParseFrameFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFrameFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if FrameRaw.Encoded() || !FramePNG.Encoded() {
		t.Error("Encoded() mismatch")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concat.yaml")
	data := `
sources:
  - path: a.mp4
  - path: b.mp4
    audio: b.wav
output: out.mp4
frame_format: png
transition:
  name: wipeleft
  duration: 0.75
transitions:
  - pair: 0
    name: circleopen
    duration: 1.5
    params:
      smoothness: 0.2
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[1].Audio != "b.wav" {
		t.Errorf("Unexpected sources: %+v", cfg.Sources)
	}
	if cfg.FrameFormat != FramePNG {
		t.Errorf("Expected png, got %s", cfg.FrameFormat)
	}
	if cfg.Concurrency != DefaultConcurrency || !cfg.CleanupFrames {
		t.Error("Defaults were not preserved")
	}
	if cfg.Transition == nil || cfg.Transition.Name != "wipeleft" {
		t.Fatalf("Unexpected default transition: %+v", cfg.Transition)
	}
	if len(cfg.Transitions) != 1 || cfg.Transitions[0].Name != "circleopen" || cfg.Transitions[0].Param("smoothness", 0) != 0.2 {
		t.Errorf("Unexpected overrides: %+v", cfg.Transitions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, errs.ErrConfig) {
		t.Errorf("Expected config error, got %v", err)
	}
}
