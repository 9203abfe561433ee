package director

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-hclog"

	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/effects"
	"github.com/ivlev/vconcat/internal/errs"
	"github.com/ivlev/vconcat/internal/source"
)

const (
	ScenarioVersion = "1.0"
	DefaultFPS      = 30
)

// BuiltinTransition is used for every junction without an explicit spec.
var BuiltinTransition = config.TransitionSpec{Name: "fade", Duration: 0.5, Easing: "linear"}

// Director turns probed sources and transition specs into a Scenario.
// Planning is pure computation; nothing touches the disk.
type Director struct {
	Theme  Theme
	Logger hclog.Logger
}

// NewDirector creates a Director. Zero width, height or fps in theme are
// taken from the first source at plan time; a single zero side follows the
// first source's aspect ratio.
func NewDirector(theme Theme, logger hclog.Logger) *Director {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Director{Theme: theme, Logger: logger}
}

// Plan lays the sources out on one timeline. Junction j overlaps the last
// T_j seconds of source j with the first T_j seconds of source j+1, so the
// output lasts ΣD − ΣT.
func (d *Director) Plan(sources []*source.Source, def *config.TransitionSpec, overrides []config.TransitionOverride) (*Scenario, error) {
	if len(sources) < 2 {
		return nil, errs.Newf(errs.ErrConfig, "plan", "need at least 2 sources, got %d", len(sources))
	}

	theme := d.resolveTheme(sources[0])
	specs := d.resolveTransitions(sources, def, overrides)
	for j, spec := range specs {
		if err := effects.Check(spec); err != nil {
			return nil, errs.New(errs.ErrConfig, fmt.Sprintf("transition %d", j), err)
		}
	}

	var scenes []Scene
	cursor := 0.0
	add := func(s Scene, length float64) {
		s.Index = len(scenes)
		s.Start = cursor
		s.End = cursor + length
		cursor = s.End
		scenes = append(scenes, s)
	}

	for i, src := range sources {
		lead := 0.0
		if i > 0 {
			lead = specs[i-1].Duration
		}
		trail := 0.0
		if i < len(specs) {
			trail = specs[i].Duration
		}

		// Короткий клип может целиком уйти в переходы
		if clip := src.Duration - lead - trail; clip > 1e-9 {
			add(Scene{
				Kind:            SceneClip,
				From:            i,
				FromPath:        src.Path,
				FromOffset:      lead,
				SourceAudioPath: src.AudioPath,
				AudioOffset:     lead,
			}, clip)
		}

		if trail > 0 {
			next := sources[i+1]
			add(Scene{
				Kind:            SceneTransition,
				From:            i,
				To:              i + 1,
				Transition:      specs[i],
				FromPath:        src.Path,
				ToPath:          next.Path,
				FromOffset:      src.Duration - trail,
				ToOffset:        0,
				SourceAudioPath: src.AudioPath,
				AudioOffset:     src.Duration - trail,
			}, trail)
		}
	}

	theme.Duration = cursor
	theme.NumFrames = int(math.Round(cursor * float64(theme.FPS)))
	if theme.NumFrames < 1 {
		theme.NumFrames = 1
	}

	sc := &Scenario{
		Version: ScenarioVersion,
		Theme:   theme,
		Scenes:  scenes,
		Frames:  buildFrames(scenes, theme),
	}

	d.Logger.Debug("scenario planned",
		"scenes", len(scenes), "frames", theme.NumFrames,
		"duration", theme.Duration, "size", []int{theme.Width, theme.Height}, "fps", theme.FPS)
	return sc, nil
}

func (d *Director) resolveTheme(first *source.Source) Theme {
	theme := d.Theme
	switch {
	case theme.Width == 0 && theme.Height == 0:
		theme.Width, theme.Height = first.Width, first.Height
	case theme.Height == 0 && first.Width > 0:
		// недостающая сторона по пропорциям первого клипа
		theme.Height = int(math.Round(float64(theme.Width) * float64(first.Height) / float64(first.Width)))
	case theme.Width == 0 && first.Height > 0:
		theme.Width = int(math.Round(float64(theme.Height) * float64(first.Width) / float64(first.Height)))
	}
	// yuv420p требует чётных размеров
	if theme.Width%2 != 0 {
		theme.Width++
	}
	if theme.Height%2 != 0 {
		theme.Height++
	}
	if theme.FPS == 0 {
		theme.FPS = int(math.Round(first.FPS))
		if theme.FPS <= 0 {
			theme.FPS = DefaultFPS
		}
	}
	if theme.FrameFormat == "" {
		theme.FrameFormat = config.FrameRaw
	}
	if theme.Background == "" {
		theme.Background = config.DefaultBackground
	}
	return theme
}

// resolveTransitions returns the effective spec for every junction: override,
// then global default, then the built-in fade. Durations are clamped so that
// no part of a clip belongs to two transitions.
func (d *Director) resolveTransitions(sources []*source.Source, def *config.TransitionSpec, overrides []config.TransitionOverride) []config.TransitionSpec {
	byPair := make(map[int]config.TransitionSpec, len(overrides))
	for _, o := range overrides {
		byPair[o.Pair] = o.TransitionSpec
	}

	specs := make([]config.TransitionSpec, len(sources)-1)
	for j := range specs {
		spec := BuiltinTransition
		if def != nil {
			spec = *def
		}
		if o, ok := byPair[j]; ok {
			spec = o
		}
		if spec.Name == "" {
			spec.Name = BuiltinTransition.Name
		}
		if spec.Easing == "" {
			spec.Easing = BuiltinTransition.Easing
		}

		if spec.Name == "none" || spec.Duration <= 0 {
			spec.Duration = 0
		}
		limit := math.Min(sources[j].Duration, sources[j+1].Duration) / 2
		if spec.Duration > limit {
			d.Logger.Warn("transition shortened to fit clips",
				"pair", j, "requested", spec.Duration, "used", limit)
			spec.Duration = limit
		}
		specs[j] = spec
	}
	return specs
}

func buildFrames(scenes []Scene, theme Theme) []Frame {
	frames := make([]Frame, theme.NumFrames)
	fps := float64(theme.FPS)

	j := 0
	for k := range frames {
		at := float64(k) / fps
		for j < len(scenes)-1 && at >= scenes[j].End {
			j++
		}
		s := &scenes[j]

		t := 0.0
		if dur := s.Duration(); dur > 0 {
			t = (at - s.Start) / dur
		}
		frames[k] = Frame{Index: k, Scene: j, T: clamp01(t), Time: at}
	}
	return frames
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
