package config

import (
	"fmt"
	"strings"

	"github.com/ivlev/vconcat/internal/errs"
)

type FrameFormat string

const (
	FrameRaw FrameFormat = "raw"
	FramePNG FrameFormat = "png"
	FrameJPG FrameFormat = "jpg"
)

// Ext is the file extension frames of this format are written with.
func (f FrameFormat) Ext() string {
	return string(f)
}

// Encoded reports whether frames are stored as an encoded image rather than
// a packed RGBA dump.
func (f FrameFormat) Encoded() bool {
	return f == FramePNG || f == FrameJPG
}

func ParseFrameFormat(s string) (FrameFormat, error) {
	switch strings.ToLower(s) {
	case "raw", "":
		return FrameRaw, nil
	case "png":
		return FramePNG, nil
	case "jpg", "jpeg":
		return FrameJPG, nil
	}
	return "", fmt.Errorf("unknown frame format %q", s)
}

const (
	DefaultConcurrency   = 4
	DefaultAudioFileName = "audioConcat.mp3"
	DefaultBackground    = "#000000"
)

type SourceConfig struct {
	Path  string `yaml:"path"`
	Audio string `yaml:"audio,omitempty"` // sidecar audio track
}

type TransitionSpec struct {
	Name     string             `yaml:"name"`
	Duration float64            `yaml:"duration"` // seconds
	Easing   string             `yaml:"easing,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty"`
}

// Param returns the named parameter or def when it is not set.
func (s TransitionSpec) Param(name string, def float64) float64 {
	if v, ok := s.Params[name]; ok {
		return v
	}
	return def
}

// TransitionOverride scopes a spec to the junction between source Pair and
// source Pair+1.
type TransitionOverride struct {
	Pair           int `yaml:"pair"`
	TransitionSpec `yaml:",inline"`
}

type Config struct {
	Sources          []SourceConfig       `yaml:"sources"`
	Output           string               `yaml:"output"`
	Concurrency      int                  `yaml:"concurrency"`
	FrameFormat      FrameFormat          `yaml:"frame_format"`
	CleanupFrames    bool                 `yaml:"cleanup_frames"`
	Transition       *TransitionSpec      `yaml:"transition,omitempty"`
	Transitions      []TransitionOverride `yaml:"transitions,omitempty"`
	Audio            string               `yaml:"audio,omitempty"`
	TempDir          string               `yaml:"temp_dir,omitempty"`
	Verbose          bool                 `yaml:"verbose"`
	ExtraEncoderArgs []string             `yaml:"encoder_args,omitempty"`
	AudioFileName    string               `yaml:"audio_file_name,omitempty"`

	Width      int    `yaml:"width,omitempty"`
	Height     int    `yaml:"height,omitempty"`
	FPS        int    `yaml:"fps,omitempty"`
	Background string `yaml:"background,omitempty"`
	Debug      bool   `yaml:"debug"`

	VideoEncoder string `yaml:"video_encoder,omitempty"`
	Quality      int    `yaml:"quality,omitempty"`
	MetricsFile  string `yaml:"metrics_file,omitempty"`

	// Scenario replays a scenario.yaml dump instead of probing and planning
	// Sources; the dump carries its own paths, theme and transitions.
	Scenario string `yaml:"scenario,omitempty"`

	// Log receives human-readable progress and status lines.
	Log func(string) `yaml:"-"`
}

// Default returns the defaults table every run starts from.
func Default() *Config {
	return &Config{
		Concurrency:   DefaultConcurrency,
		FrameFormat:   FrameRaw,
		CleanupFrames: true,
		AudioFileName: DefaultAudioFileName,
		Background:    DefaultBackground,
	}
}

// Validate fills derived defaults and reports invalid input as a config error.
func (c *Config) Validate() error {
	if c.Scenario == "" && len(c.Sources) < 2 {
		return errs.Newf(errs.ErrConfig, "sources", "need at least 2 sources, got %d", len(c.Sources))
	}
	for i, s := range c.Sources {
		if strings.TrimSpace(s.Path) == "" {
			return errs.Newf(errs.ErrConfig, "sources", "source %d has no path", i)
		}
	}
	if c.Output == "" {
		return errs.New(errs.ErrConfig, "output path is required", nil)
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 0 {
		return errs.Newf(errs.ErrConfig, "concurrency", "must be positive, got %d", c.Concurrency)
	}
	ff, err := ParseFrameFormat(string(c.FrameFormat))
	if err != nil {
		return errs.New(errs.ErrConfig, "frame_format", err)
	}
	c.FrameFormat = ff
	if c.Transition != nil && c.Transition.Duration < 0 {
		return errs.Newf(errs.ErrConfig, "transition", "negative duration %.3f", c.Transition.Duration)
	}
	for _, o := range c.Transitions {
		if c.Scenario != "" {
			return errs.New(errs.ErrConfig, "transitions cannot override a replayed scenario", nil)
		}
		if o.Pair < 0 || o.Pair >= len(c.Sources)-1 {
			return errs.Newf(errs.ErrConfig, "transitions", "pair %d out of range [0,%d]", o.Pair, len(c.Sources)-2)
		}
		if o.Duration < 0 {
			return errs.Newf(errs.ErrConfig, "transitions", "pair %d has negative duration", o.Pair)
		}
	}
	if c.Width < 0 || c.Height < 0 || c.FPS < 0 {
		return errs.New(errs.ErrConfig, "width, height and fps must not be negative", nil)
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		return errs.Newf(errs.ErrConfig, "geometry", "%dx%d: width and height must be even", c.Width, c.Height)
	}
	if c.AudioFileName == "" {
		c.AudioFileName = DefaultAudioFileName
	}
	if c.Background == "" {
		c.Background = DefaultBackground
	}
	if c.Log == nil {
		c.Log = func(string) {}
	}
	return nil
}

// Logf formats a line for the Log sink.
func (c *Config) Logf(format string, args ...any) {
	if c.Log != nil {
		c.Log(fmt.Sprintf(format, args...))
	}
}
