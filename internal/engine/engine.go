// Package engine drives one concat run through its stages and owns the
// working directory for its whole lifetime.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/ivlev/vconcat/internal/audio"
	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/director"
	"github.com/ivlev/vconcat/internal/effects"
	"github.com/ivlev/vconcat/internal/errs"
	"github.com/ivlev/vconcat/internal/metrics"
	"github.com/ivlev/vconcat/internal/renderer"
	"github.com/ivlev/vconcat/internal/source"
	"github.com/ivlev/vconcat/internal/system"
	"github.com/ivlev/vconcat/internal/video"
)

const scenarioFile = "scenario.yaml"

type AudioConcatenator interface {
	Concatenate(ctx context.Context, scenes []director.Scene, outputDir, fileName string) (string, error)
}

// Components are the replaceable stage implementations.
type Components struct {
	Prober     source.Prober
	Compositor renderer.Compositor
	Audio      AudioConcatenator
	Transcoder video.Transcoder
}

// DefaultComponents wires every stage to ffmpeg/ffprobe through r.
func DefaultComponents(cfg *config.Config, r system.Runner, logger hclog.Logger) Components {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return Components{
		Prober:     &source.FFProbe{Runner: r},
		Compositor: renderer.NewFrameCompositor(r, cfg.Concurrency, logger.Named("compositor")),
		Audio:      audio.NewConcatenator(r, logger.Named("audio")),
		Transcoder: video.NewFFmpegTranscoder(r, cfg.VideoEncoder, cfg.Quality, logger.Named("video")),
	}
}

type Project struct {
	Config     *config.Config
	Components Components
	Logger     hclog.Logger
	Metrics    *metrics.Metrics

	// OnState receives every state transition, in order.
	OnState func(State)
	RunID   string

	mu       sync.Mutex
	state    State
	workDir  string
	scenario *director.Scenario
}

func NewProject(cfg *config.Config, comps Components, logger hclog.Logger) *Project {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Project{Config: cfg, Components: comps, Logger: logger}
}

func (p *Project) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// WorkDir is the working directory of the last run (possibly removed).
func (p *Project) WorkDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workDir
}

// Scenario is the plan of the last run, nil until planning succeeded.
func (p *Project) Scenario() *director.Scenario {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scenario
}

func (p *Project) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.OnState != nil {
		p.OnState(s)
	}
}

// Run executes the whole pipeline. On failure the state ends in
// StateFailed and the first stage error is returned after cleanup.
func (p *Project) Run(ctx context.Context) error {
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	log := p.Logger.With("run", p.RunID)
	cfg := p.Config

	if err := cfg.Validate(); err != nil {
		return p.finish(log, err)
	}
	if err := checkTransitions(cfg); err != nil {
		return p.finish(log, err)
	}
	var replay *director.Scenario
	if cfg.Scenario != "" {
		sc, err := loadScenario(cfg.Scenario)
		if err != nil {
			return p.finish(log, err)
		}
		replay = sc
	}

	p.setState(StateInit)
	short := p.RunID
	if len(short) > 8 {
		short = short[:8]
	}
	wd, err := system.CreateWorkDir(cfg.TempDir, "vconcat_"+short+"_")
	if err != nil {
		return p.finish(log, err)
	}
	p.mu.Lock()
	p.workDir = wd.Path
	p.mu.Unlock()

	wd.Track("frame_*")
	wd.Track(".part-*")
	wd.Track(renderer.SourcesDir)
	wd.Track(cfg.AudioFileName)
	wd.Track(scenarioFile)

	// кадры прошлого запуска продолжили бы диапазон индексов
	if !wd.Owned() {
		if err := wd.Purge(); err != nil {
			return p.finish(log, err)
		}
	}

	log.Debug("working directory", "path", wd.Path, "owned", wd.Owned())
	if cfg.Verbose {
		log.Debug("host", "resources", system.HostReport())
	}

	runErr := p.run(ctx, log, wd, replay)
	return p.finish(log, p.cleanup(log, wd, runErr))
}

func (p *Project) finish(log hclog.Logger, err error) error {
	if err != nil {
		log.Error("run failed", "state", p.State().String(), "error", err)
		p.setState(StateFailed)
	} else {
		p.setState(StateDone)
	}

	if p.Metrics != nil {
		p.Metrics.RunFinished(err)
		if path := p.Config.MetricsFile; path != "" {
			if werr := p.Metrics.WriteTextfile(path); werr != nil {
				log.Warn("metrics textfile not written", "path", path, "error", werr)
			}
		}
	}
	return err
}

func (p *Project) run(ctx context.Context, log hclog.Logger, wd *system.WorkDir, replay *director.Scenario) error {
	cfg := p.Config
	c := p.Components

	// 1. Planning
	p.setState(StatePlanning)
	done := p.stage(log, "planning")
	sc := replay
	if sc == nil {
		var err error
		if sc, err = p.plan(ctx, log); err != nil {
			return err
		}
	} else {
		sc.Theme.FrameFormat = cfg.FrameFormat
		sc.Theme.Debug = sc.Theme.Debug || cfg.Debug
		log.Info("replaying scenario", "path", cfg.Scenario, "scenes", len(sc.Scenes))
	}
	p.mu.Lock()
	p.scenario = sc
	p.mu.Unlock()

	if p.Metrics != nil {
		p.Metrics.OutputSeconds.Set(sc.Theme.Duration)
	}
	if cfg.Verbose {
		if err := director.WriteScenario(sc, wd.Join(scenarioFile)); err != nil {
			log.Warn("scenario dump failed", "error", err)
		}
	}
	if err := wd.EnsureSpace(estimateSpace(sc, cfg.FrameFormat)); err != nil {
		return err
	}
	cfg.Logf("plan: %d scenes, %d frames, %.2fs @ %dx%d %d fps",
		len(sc.Scenes), sc.Theme.NumFrames, sc.Theme.Duration, sc.Theme.Width, sc.Theme.Height, sc.Theme.FPS)
	done()

	// 2. Rendering
	p.setState(StateRendering)
	done = p.stage(log, "rendering")
	r := renderer.New(c.Compositor, log.Named("render"))
	if p.Metrics != nil {
		r.Observer = p.Metrics
	}
	pattern, err := r.Render(ctx, sc, wd.Path, cfg.FrameFormat, cfg.Concurrency, percentLog(cfg, "render"))
	if err != nil {
		return err
	}
	done()

	// 3. Audio: внешняя дорожка отключает склейку
	audioPath := cfg.Audio
	switch {
	case audioPath != "":
		log.Debug("using audio override", "path", audioPath)
	case c.Audio != nil && audio.AllScenesHaveAudio(sc.Scenes):
		p.setState(StateAudioConcat)
		done = p.stage(log, "audio")
		audioPath, err = c.Audio.Concatenate(ctx, sc.Scenes, wd.Path, cfg.AudioFileName)
		if err != nil {
			return err
		}
		done()
	default:
		log.Info("not every scene has audio, output will be silent")
	}

	// 4. Transcoding
	p.setState(StateTranscoding)
	done = p.stage(log, "transcoding")
	err = c.Transcoder.Transcode(ctx, pattern, cfg.FrameFormat, audioPath, sc.Theme,
		cfg.ExtraEncoderArgs, cfg.Output, percentLog(cfg, "transcode"))
	if err != nil {
		return err
	}
	done()
	return nil
}

func (p *Project) plan(ctx context.Context, log hclog.Logger) (*director.Scenario, error) {
	cfg := p.Config
	sources, err := source.LoadAll(ctx, p.Components.Prober, cfg.Sources, cfg.Concurrency)
	if err != nil {
		if errs.KindOf(err) == nil {
			err = errs.New(errs.ErrConfig, "probe sources", err)
		}
		return nil, err
	}

	theme := director.Theme{
		Width:       cfg.Width,
		Height:      cfg.Height,
		FPS:         cfg.FPS,
		Background:  cfg.Background,
		FrameFormat: cfg.FrameFormat,
		Debug:       cfg.Debug,
	}
	return director.NewDirector(theme, log.Named("director")).Plan(sources, cfg.Transition, cfg.Transitions)
}

// checkTransitions rejects unknown transition and easing names before any
// directory exists.
func checkTransitions(cfg *config.Config) error {
	if cfg.Transition != nil {
		if err := effects.Check(*cfg.Transition); err != nil {
			return errs.New(errs.ErrConfig, "transition", err)
		}
	}
	for _, o := range cfg.Transitions {
		if err := effects.Check(o.TransitionSpec); err != nil {
			return errs.New(errs.ErrConfig, fmt.Sprintf("transitions pair %d", o.Pair), err)
		}
	}
	return nil
}

// loadScenario reads a scenario dump for replay and checks it can be rendered.
func loadScenario(path string) (*director.Scenario, error) {
	sc, err := director.ReadScenario(path)
	if err != nil {
		return nil, errs.New(errs.ErrConfig, "read scenario "+path, err)
	}
	if len(sc.Scenes) == 0 || len(sc.Frames) == 0 {
		return nil, errs.Newf(errs.ErrConfig, "read scenario "+path, "no scenes or frames")
	}
	for _, s := range sc.Scenes {
		if !s.IsTransition() {
			continue
		}
		if err := effects.Check(s.Transition); err != nil {
			return nil, errs.New(errs.ErrConfig, fmt.Sprintf("scenario scene %d", s.Index), err)
		}
	}
	return sc, nil
}

// cleanup runs exactly once per run. Its own failures never replace runErr.
func (p *Project) cleanup(log hclog.Logger, wd *system.WorkDir, runErr error) error {
	if !p.Config.CleanupFrames {
		log.Info("keeping working directory", "path", wd.Path)
		return runErr
	}

	var err error
	switch {
	case wd.Owned():
		err = wd.Remove()
	case runErr != nil:
		err = wd.Purge()
	}
	if err == nil {
		return runErr
	}
	if runErr != nil {
		log.Error("cleanup failed", "path", wd.Path, "error", err)
		return runErr
	}
	if errs.KindOf(err) == nil {
		err = errs.New(errs.ErrFilesystem, "cleanup", err)
	}
	return err
}

// stage returns a func closing the timing bracket of one stage.
func (p *Project) stage(log hclog.Logger, name string) func() {
	start := time.Now()
	if p.Config.Verbose {
		log.Debug("stage started", "stage", name)
	}
	return func() {
		elapsed := time.Since(start)
		if p.Config.Verbose {
			log.Debug("stage finished", "stage", name, "elapsed", elapsed)
		}
		if p.Metrics != nil {
			p.Metrics.ObserveStage(name, elapsed)
		}
	}
}

// percentLog forwards progress to the config log sink once per integer percent.
func percentLog(cfg *config.Config, stage string) func(float64) {
	last := -1
	return func(v float64) {
		pct := int(v * 100)
		if pct <= last {
			return
		}
		last = pct
		cfg.Logf("%s %d%%", stage, pct)
	}
}

// estimateSpace is the disk needed for rendered and extracted frames.
func estimateSpace(sc *director.Scenario, format config.FrameFormat) uint64 {
	frame := uint64(sc.Theme.Width) * uint64(sc.Theme.Height) * 4
	n := uint64(sc.Theme.NumFrames)
	rendered := n * frame
	if format.Encoded() {
		// грубо: сжатие png/jpg не хуже 1:4
		rendered /= 4
	}
	return rendered + n*frame/4
}

// IsCanceled reports whether err comes from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
