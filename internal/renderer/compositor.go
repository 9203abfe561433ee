package renderer

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-hclog"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/vconcat/internal/director"
	"github.com/ivlev/vconcat/internal/effects"
	"github.com/ivlev/vconcat/internal/errs"
	"github.com/ivlev/vconcat/internal/system"
)

// SourcesDir is where extracted source frames live inside the work dir.
const SourcesDir = "sources"

// FrameCompositor is the default CPU compositor. Prepare decodes every
// source into resampled PNG frames with ffmpeg; Compose picks the frames a
// job needs and blends them with the scene's transition.
type FrameCompositor struct {
	Runner      system.Runner
	Concurrency int
	Logger      hclog.Logger

	dirs   map[int]string
	counts map[int]int
}

func NewFrameCompositor(r system.Runner, concurrency int, logger hclog.Logger) *FrameCompositor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FrameCompositor{Runner: r, Concurrency: concurrency, Logger: logger}
}

func (c *FrameCompositor) Prepare(ctx context.Context, sc *director.Scenario, workDir string) error {
	if _, err := ParseColor(sc.Theme.Background); err != nil {
		return err
	}

	paths := map[int]string{}
	for _, s := range sc.Scenes {
		paths[s.From] = s.FromPath
		if s.IsTransition() {
			paths[s.To] = s.ToPath
			if _, err := effects.Lookup(s.Transition.Name); err != nil {
				return fmt.Errorf("scene %d: %w", s.Index, err)
			}
			if _, err := effects.Easing(s.Transition.Easing); err != nil {
				return fmt.Errorf("scene %d: %w", s.Index, err)
			}
		}
	}

	c.dirs = make(map[int]string, len(paths))
	c.counts = make(map[int]int, len(paths))
	counts := make([]int, len(paths))
	indexes := make([]int, 0, len(paths))
	for idx := range paths {
		c.dirs[idx] = filepath.Join(workDir, SourcesDir, strconv.Itoa(idx))
		indexes = append(indexes, idx)
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for n, idx := range indexes {
		n, idx := n, idx
		g.Go(func() error {
			dir := c.dirs[idx]
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errs.New(errs.ErrFilesystem, "create "+dir, err)
			}
			args := extractArgs(paths[idx], filepath.Join(dir, "%06d.png"), sc.Theme)
			if err := c.Runner.Run(gctx, "ffmpeg", args, nil); err != nil {
				return fmt.Errorf("extract frames of %s: %w", paths[idx], err)
			}
			count, err := countFrames(dir)
			if err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("no frames extracted from %s", paths[idx])
			}
			counts[n] = count
			c.Logger.Debug("source frames extracted", "source", idx, "frames", count)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for n, idx := range indexes {
		c.counts[idx] = counts[n]
	}
	return nil
}

func countFrames(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			n++
		}
	}
	return n, nil
}

// sourceFrame maps a source-local time to the extracted frame file. Frames
// are numbered from 1; times past the end hold the last frame.
func (c *FrameCompositor) sourceFrame(src int, local float64, fps int) string {
	n := int(math.Floor(local*float64(fps)+1e-6)) + 1
	n = max(1, min(n, c.counts[src]))
	return filepath.Join(c.dirs[src], fmt.Sprintf("%06d.png", n))
}

func (c *FrameCompositor) load(path string, theme director.Theme) (*image.RGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() != theme.Width || b.Dy() != theme.Height {
		img = imaging.Resize(img, theme.Width, theme.Height, imaging.Lanczos)
	}
	canvas := system.GetImage(theme.Width, theme.Height)
	draw.Draw(canvas, canvas.Rect, img, img.Bounds().Min, draw.Src)
	return canvas, nil
}

func (c *FrameCompositor) Compose(ctx context.Context, job Job) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, theme := job.Scene, job.Theme
	elapsed := job.Frame.T * s.Duration()

	from, err := c.load(c.sourceFrame(s.From, s.FromOffset+elapsed, theme.FPS), theme)
	if err != nil {
		return nil, err
	}

	out := from
	if s.IsTransition() {
		to, err := c.load(c.sourceFrame(s.To, s.ToOffset+elapsed, theme.FPS), theme)
		if err != nil {
			system.PutImage(from)
			return nil, err
		}
		out = system.GetImage(theme.Width, theme.Height)
		err = effects.Render(out, from, to, job.Frame.T, s.Transition)
		system.PutImage(from)
		system.PutImage(to)
		if err != nil {
			system.PutImage(out)
			return nil, err
		}
	}

	if theme.Debug {
		if err := stampFrameCode(out, job); err != nil {
			c.Logger.Warn("debug overlay failed", "frame", job.Frame.Index, "error", err)
		}
	}
	return out, nil
}

func (c *FrameCompositor) Release(img image.Image) {
	if rgba, ok := img.(*image.RGBA); ok {
		system.PutImage(rgba)
	}
}

// stampFrameCode draws a QR code with "index/scene/t" into the top-left
// corner, so an encoded output can be checked for frame order.
func stampFrameCode(dst *image.RGBA, job Job) error {
	content := fmt.Sprintf("%d/%d/%.4f", job.Frame.Index, job.Frame.Scene, job.Frame.T)
	q, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return err
	}
	side := max(min(dst.Rect.Dx(), dst.Rect.Dy())/6, 48)
	code := q.Image(side)
	margin := image.Pt(8, 8)
	r := image.Rectangle{Min: margin, Max: margin.Add(code.Bounds().Size())}.Intersect(dst.Rect)
	draw.Draw(dst, r, code, code.Bounds().Min, draw.Src)
	return nil
}
