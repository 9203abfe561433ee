package director

import "github.com/ivlev/vconcat/internal/config"

type SceneKind string

const (
	SceneClip       SceneKind = "clip"
	SceneTransition SceneKind = "transition"
)

// Scenario is the complete plan of one concat run
type Scenario struct {
	Version string  `yaml:"version"`
	Theme   Theme   `yaml:"theme"`
	Scenes  []Scene `yaml:"scenes"`
	Frames  []Frame `yaml:"-"` // derived from scenes, too large to dump
}

// Theme holds render parameters shared by every frame
type Theme struct {
	Width       int                `yaml:"width"`
	Height      int                `yaml:"height"`
	FPS         int                `yaml:"fps"`
	Background  string             `yaml:"background"`
	FrameFormat config.FrameFormat `yaml:"frame_format"`
	Duration    float64            `yaml:"duration"` // output timeline, seconds
	NumFrames   int                `yaml:"num_frames"`
	Debug       bool               `yaml:"debug,omitempty"`
}

// Scene is one contiguous range of the output timeline: either a plain clip
// or the blend between two adjacent clips
type Scene struct {
	Index int       `yaml:"index"`
	Kind  SceneKind `yaml:"kind"`
	From  int       `yaml:"from"`         // source index
	To    int       `yaml:"to,omitempty"` // next source, transitions only

	Transition config.TransitionSpec `yaml:"transition,omitempty"`

	Start float64 `yaml:"start"` // timeline seconds, inclusive
	End   float64 `yaml:"end"`   // timeline seconds, exclusive

	// Source-local time of From (and To) at Start
	FromOffset float64 `yaml:"from_offset"`
	ToOffset   float64 `yaml:"to_offset,omitempty"`

	FromPath string `yaml:"from_path"`
	ToPath   string `yaml:"to_path,omitempty"`

	SourceAudioPath string  `yaml:"source_audio,omitempty"`
	AudioOffset     float64 `yaml:"audio_offset,omitempty"`
}

func (s *Scene) Duration() float64 {
	return s.End - s.Start
}

func (s *Scene) IsTransition() bool {
	return s.Kind == SceneTransition
}

// Frame is one output image. Index defines the output order.
type Frame struct {
	Index int
	Scene int
	T     float64 // 0..1 within the scene
	Time  float64 // timeline seconds
}
