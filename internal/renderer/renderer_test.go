package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/director"
	"github.com/ivlev/vconcat/internal/errs"
	"github.com/ivlev/vconcat/internal/source"
)

func plan(t *testing.T, fps int, durations ...float64) *director.Scenario {
	t.Helper()
	srcs := make([]*source.Source, len(durations))
	for i, d := range durations {
		srcs[i] = &source.Source{Index: i, Path: fmt.Sprintf("clip%d.mp4", i), Duration: d, Width: 8, Height: 6, FPS: float64(fps)}
	}
	sc, err := director.NewDirector(director.Theme{}, nil).Plan(srcs, &config.TransitionSpec{Name: "fade", Duration: 0.5}, nil)
	require.NoError(t, err)
	return sc
}

// indexCompositor paints frame k with a colour derived from k and finishes
// frames in random order.
type indexCompositor struct {
	mu       sync.Mutex
	finished []int
	calls    atomic.Int32
	failAt   int
	failErr  error
}

func indexColor(k int) color.RGBA {
	return color.RGBA{R: uint8(k), G: uint8(k >> 8), B: 7, A: 255}
}

func (c *indexCompositor) Prepare(context.Context, *director.Scenario, string) error { return nil }

func (c *indexCompositor) Compose(_ context.Context, job Job) (image.Image, error) {
	c.calls.Add(1)
	if c.failErr != nil && job.Frame.Index == c.failAt {
		return nil, c.failErr
	}
	time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)

	img := image.NewRGBA(image.Rect(0, 0, job.Theme.Width, job.Theme.Height))
	col := indexColor(job.Frame.Index)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = col.R, col.G, col.B, col.A
	}

	c.mu.Lock()
	c.finished = append(c.finished, job.Frame.Index)
	c.mu.Unlock()
	return img, nil
}

func TestRenderOrderIndependentOfCompletion(t *testing.T) {
	sc := plan(t, 30, 2, 2, 2)
	dir := t.TempDir()
	comp := &indexCompositor{}

	var progress []float64
	pattern, err := New(comp, nil).Render(context.Background(), sc, dir, config.FrameRaw, 8, func(p float64) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "frame_%06d.raw"), pattern)

	// progress: non-decreasing, one call per frame, ends at exactly 1
	require.Len(t, progress, len(sc.Frames))
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])

	assert.Len(t, comp.finished, len(sc.Frames))

	frameBytes := sc.Theme.Width * sc.Theme.Height * 4
	for _, f := range sc.Frames {
		data, err := os.ReadFile(fmt.Sprintf(pattern, f.Index))
		require.NoError(t, err)
		require.Len(t, data, frameBytes)
		want := indexColor(f.Index)
		assert.Equal(t, []byte{want.R, want.G, want.B, want.A}, data[:4], "frame %d", f.Index)
	}
}

func TestRenderFirstFailureStopsPool(t *testing.T) {
	sc := plan(t, 60, 10, 10)
	boom := errors.New("compositor crashed")
	comp := &indexCompositor{failAt: 5, failErr: boom}

	_, err := New(comp, nil).Render(context.Background(), sc, t.TempDir(), config.FrameRaw, 2, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRender)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, int(comp.calls.Load()), len(sc.Frames), "dispatch should stop after the failure")
}

func TestRenderCanceled(t *testing.T) {
	sc := plan(t, 30, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&indexCompositor{}, nil).Render(ctx, sc, t.TempDir(), config.FrameRaw, 4, nil)
	assert.ErrorIs(t, err, errs.ErrRender)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFramePattern(t *testing.T) {
	assert.Equal(t, filepath.Join("w", "frame_%06d.png"), FramePattern("w", 390, config.FramePNG))
	assert.Equal(t, filepath.Join("w", "frame_%07d.raw"), FramePattern("w", 1_000_001, config.FrameRaw))
	assert.Equal(t, filepath.Join("w", "frame_000042.jpg"), FramePath("w", 42, 390, config.FrameJPG))
	assert.Equal(t, fmt.Sprintf(FramePattern("w", 10, config.FrameRaw), 3), FramePath("w", 3, 10, config.FrameRaw))
}

func TestWriteFrameFormats(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	dir := t.TempDir()

	raw := filepath.Join(dir, "frame_000000.raw")
	require.NoError(t, WriteFrame(raw, img, config.FrameRaw))
	data, err := os.ReadFile(raw)
	require.NoError(t, err)
	assert.Len(t, data, 4*2*4)

	for _, format := range []config.FrameFormat{config.FramePNG, config.FrameJPG} {
		path := filepath.Join(dir, "frame_000000."+format.Ext())
		require.NoError(t, WriteFrame(path, img, format))
		back, err := imaging.Open(path)
		require.NoError(t, err)
		assert.Equal(t, img.Bounds().Size(), back.Bounds().Size())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "part", "no temp files left behind")
	}
}

func TestGenerateExtractFilter(t *testing.T) {
	f := GenerateExtractFilter(director.Theme{Width: 1280, Height: 720, FPS: 25, Background: "#101010"})
	assert.True(t, strings.HasPrefix(f, "fps=25,"))
	assert.Contains(t, f, "scale=1280:720:force_original_aspect_ratio=decrease")
	assert.Contains(t, f, "pad=1280:720:(ow-iw)/2:(oh-ih)/2:color=0x101010")
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, A: 255}, c)
	c, err = ParseColor("00000080")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A)
	_, err = ParseColor("red")
	assert.Error(t, err)
}

// extractRunner stands in for ffmpeg: it writes a few solid PNG frames for
// the requested input. Frames are 4x3 to exercise resizing.
type extractRunner struct {
	colors map[string]color.NRGBA
	frames int
	fail   string
}

func (r *extractRunner) Run(_ context.Context, name string, args []string, _ io.Writer) error {
	if name != "ffmpeg" {
		return fmt.Errorf("unexpected %s", name)
	}
	input := args[indexOf(args, "-i")+1]
	if input == r.fail {
		return errors.New("moov atom not found")
	}
	pattern := args[len(args)-1]
	for n := 1; n <= r.frames; n++ {
		img := imaging.New(4, 3, r.colors[input])
		if err := imaging.Save(img, fmt.Sprintf(pattern, n)); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestFrameCompositor(t *testing.T) {
	sc := plan(t, 10, 2, 2)
	runner := &extractRunner{
		colors: map[string]color.NRGBA{
			"clip0.mp4": {R: 255, A: 255},
			"clip1.mp4": {B: 255, A: 255},
		},
		frames: 20,
	}
	dir := t.TempDir()
	comp := NewFrameCompositor(runner, 2, nil)
	require.NoError(t, comp.Prepare(context.Background(), sc, dir))
	assert.Equal(t, 20, comp.counts[0])

	compose := func(k int) color.RGBA {
		f := sc.Frames[k]
		img, err := comp.Compose(context.Background(), Job{Frame: f, Scene: &sc.Scenes[f.Scene], Theme: sc.Theme})
		require.NoError(t, err)
		defer comp.Release(img)
		require.Equal(t, image.Rect(0, 0, sc.Theme.Width, sc.Theme.Height), img.Bounds())
		return img.(*image.RGBA).RGBAAt(2, 2)
	}

	assertNear(t, color.RGBA{R: 255, A: 255}, compose(0))
	assertNear(t, color.RGBA{B: 255, A: 255}, compose(len(sc.Frames)-1))

	// 2s + 2s with a 0.5s fade covers frames 15..19; frame 17 is at t=0.4
	assertNear(t, color.RGBA{R: 153, B: 102, A: 255}, compose(17))

	// holds the last extracted frame when asked past the end
	assert.Equal(t, filepath.Join(dir, SourcesDir, "0", "000020.png"), comp.sourceFrame(0, 99, 10))
	assert.Equal(t, filepath.Join(dir, SourcesDir, "0", "000001.png"), comp.sourceFrame(0, 0, 10))
}

func TestFrameCompositorDebugOverlay(t *testing.T) {
	srcs := []*source.Source{
		{Index: 0, Path: "clip0.mp4", Duration: 1, Width: 320, Height: 240, FPS: 5},
		{Index: 1, Path: "clip1.mp4", Duration: 1, Width: 320, Height: 240, FPS: 5},
	}
	sc, err := director.NewDirector(director.Theme{Debug: true}, nil).Plan(srcs, nil, nil)
	require.NoError(t, err)

	runner := &extractRunner{colors: map[string]color.NRGBA{"clip0.mp4": {G: 255, A: 255}, "clip1.mp4": {G: 255, A: 255}}, frames: 5}
	comp := NewFrameCompositor(runner, 0, nil)
	require.NoError(t, comp.Prepare(context.Background(), sc, t.TempDir()))

	f := sc.Frames[0]
	img, err := comp.Compose(context.Background(), Job{Frame: f, Scene: &sc.Scenes[f.Scene], Theme: sc.Theme})
	require.NoError(t, err)
	rgba := img.(*image.RGBA)

	// QR quiet zone is white, the untouched frame is green
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgba.RGBAAt(9, 9))
	assertNear(t, color.RGBA{G: 255, A: 255}, rgba.RGBAAt(300, 200))
}

// assertNear allows for rounding in the resampling filter.
func assertNear(t *testing.T, want, got color.RGBA) {
	t.Helper()
	assert.InDelta(t, want.R, got.R, 2, "R")
	assert.InDelta(t, want.G, got.G, 2, "G")
	assert.InDelta(t, want.B, got.B, 2, "B")
	assert.InDelta(t, want.A, got.A, 2, "A")
}

func TestFrameCompositorPrepareErrors(t *testing.T) {
	sc := plan(t, 10, 2, 2)
	runner := &extractRunner{colors: map[string]color.NRGBA{}, frames: 1, fail: "clip1.mp4"}
	err := NewFrameCompositor(runner, 2, nil).Prepare(context.Background(), sc, t.TempDir())
	assert.ErrorContains(t, err, "moov atom")

	sc = plan(t, 10, 2, 2)
	sc.Scenes[1].Transition.Name = "cube"
	err = NewFrameCompositor(&extractRunner{frames: 1}, 2, nil).Prepare(context.Background(), sc, t.TempDir())
	assert.ErrorContains(t, err, "unknown transition")

	_, err = New(NewFrameCompositor(runner, 2, nil), nil).Render(context.Background(), plan(t, 10, 2, 2), t.TempDir(), config.FrameRaw, 2, nil)
	assert.ErrorIs(t, err, errs.ErrRender)
}

func TestWriteRawRGBAConvertsSubImages(t *testing.T) {
	full := image.NewRGBA(image.Rect(0, 0, 4, 4))
	full.SetRGBA(2, 2, color.RGBA{R: 9, A: 255})
	sub := full.SubImage(image.Rect(2, 2, 4, 4))

	var buf bytes.Buffer
	require.NoError(t, writeRawRGBA(&buf, sub))
	assert.Len(t, buf.Bytes(), 2*2*4)
	assert.Equal(t, byte(9), buf.Bytes()[0])
}
