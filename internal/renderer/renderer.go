// Package renderer turns a planned scenario into a numbered frame sequence
// on disk using a fixed pool of workers.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/director"
	"github.com/ivlev/vconcat/internal/errs"
)

// Job is everything a compositor needs to draw one frame.
type Job struct {
	Frame director.Frame
	Scene *director.Scene
	Theme director.Theme
}

// Compositor draws single frames. Compose must be safe for concurrent use
// and return the same image for the same job.
type Compositor interface {
	Prepare(ctx context.Context, sc *director.Scenario, workDir string) error
	Compose(ctx context.Context, job Job) (image.Image, error)
}

// Releaser is implemented by compositors that recycle the images they return.
type Releaser interface {
	Release(img image.Image)
}

// Observer is notified after every frame written; used for metrics.
type Observer interface {
	FrameRendered(elapsed time.Duration)
}

type Renderer struct {
	Compositor Compositor
	Logger     hclog.Logger
	Observer   Observer
}

func New(comp Compositor, logger hclog.Logger) *Renderer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Renderer{Compositor: comp, Logger: logger}
}

// Render writes every frame of sc into outputDir and returns the frame
// pattern. onProgress receives done/total after each frame; calls are
// serialized, so the sequence is non-decreasing and ends at 1.
func (r *Renderer) Render(ctx context.Context, sc *director.Scenario, outputDir string, format config.FrameFormat, concurrency int, onProgress func(float64)) (string, error) {
	total := len(sc.Frames)
	if total == 0 {
		return "", errs.New(errs.ErrRender, "scenario has no frames", nil)
	}
	if concurrency <= 0 {
		concurrency = config.DefaultConcurrency
	}
	workers := min(concurrency, total)

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errs.New(errs.ErrFilesystem, "create "+outputDir, err)
	}
	if err := r.Compositor.Prepare(ctx, sc, outputDir); err != nil {
		return "", asRenderError("prepare sources", err)
	}

	var (
		mu   sync.Mutex
		done int
	)
	finished := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if onProgress != nil {
			onProgress(float64(done) / float64(total))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan director.Frame)

	g.Go(func() error {
		defer close(jobs)
		for _, f := range sc.Frames {
			select {
			case jobs <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for f := range jobs {
				// после первой ошибки новые кадры не берём
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if err := r.renderFrame(gctx, sc, f, outputDir, format); err != nil {
					return errs.New(errs.ErrRender, fmt.Sprintf("frame %d", f.Index), err)
				}
				finished()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", asRenderError("render", err)
	}

	r.Logger.Debug("frames rendered", "frames", total, "workers", workers, "dir", outputDir)
	return FramePattern(outputDir, total, format), nil
}

func (r *Renderer) renderFrame(ctx context.Context, sc *director.Scenario, f director.Frame, dir string, format config.FrameFormat) error {
	start := time.Now()
	job := Job{Frame: f, Scene: &sc.Scenes[f.Scene], Theme: sc.Theme}

	img, err := r.Compositor.Compose(ctx, job)
	if err != nil {
		return err
	}
	if rel, ok := r.Compositor.(Releaser); ok {
		defer rel.Release(img)
	}

	if err := WriteFrame(FramePath(dir, f.Index, len(sc.Frames), format), img, format); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if r.Observer != nil {
		r.Observer.FrameRendered(time.Since(start))
	}
	return nil
}

func asRenderError(op string, err error) error {
	if errs.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.New(errs.ErrRender, op+" interrupted", err)
	}
	return errs.New(errs.ErrRender, op, err)
}
