// Package video hands the rendered frame sequence to ffmpeg for encoding.
package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/director"
	"github.com/ivlev/vconcat/internal/errs"
	"github.com/ivlev/vconcat/internal/system"
)

type Transcoder interface {
	Transcode(ctx context.Context, framePattern string, format config.FrameFormat, audioPath string,
		theme director.Theme, extraArgs []string, output string, onProgress func(float64)) error
}

// FFmpegTranscoder encodes in a single ffmpeg run. An empty Encoder is
// resolved to the best available H.264 encoder on every call.
type FFmpegTranscoder struct {
	Runner  system.Runner
	Encoder string
	Quality int
	Logger  hclog.Logger
}

func NewFFmpegTranscoder(r system.Runner, encoder string, quality int, logger hclog.Logger) *FFmpegTranscoder {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FFmpegTranscoder{Runner: r, Encoder: encoder, Quality: quality, Logger: logger}
}

func (e *FFmpegTranscoder) Transcode(
	ctx context.Context,
	framePattern string,
	format config.FrameFormat,
	audioPath string,
	theme director.Theme,
	extraArgs []string,
	output string,
	onProgress func(float64),
) error {
	encoder := e.Encoder
	if encoder == "" {
		encoder = system.GetBestH264Encoder(ctx, e.Runner)
		e.Logger.Info("encoder selected", "encoder", encoder)
	}
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.New(errs.ErrFilesystem, "create "+dir, err)
		}
	}

	args := e.buildFFmpegArgs(encoder, framePattern, format, audioPath, theme, extraArgs, output)
	e.Logger.Debug("ffmpeg transcode", "args", args)

	tracker := newProgressTracker(theme.Duration, theme.NumFrames, onProgress)
	pr, pw := io.Pipe()
	parsed := make(chan error, 1)
	go func() {
		err := tracker.consume(pr)
		// дочитываем, чтобы ffmpeg не встал на полной трубе
		io.Copy(io.Discard, pr)
		parsed <- err
	}()

	runErr := e.Runner.Run(ctx, "ffmpeg", args, pw)
	pw.Close()
	if err := <-parsed; err != nil {
		e.Logger.Warn("progress stream unreadable", "error", err)
	}
	if runErr != nil {
		return errs.New(errs.ErrTranscode, "ffmpeg", runErr)
	}

	info, err := os.Stat(output)
	if err != nil {
		return errs.New(errs.ErrTranscode, "stat "+output, err)
	}
	if info.Size() == 0 {
		return errs.Newf(errs.ErrTranscode, "check output", "%s is empty", output)
	}

	tracker.finish()
	return nil
}

func (e *FFmpegTranscoder) buildFFmpegArgs(
	encoder string,
	framePattern string,
	format config.FrameFormat,
	audioPath string,
	theme director.Theme,
	extraArgs []string,
	output string,
) []string {
	fps := strconv.Itoa(theme.FPS)
	args := []string{
		"-y", "-hide_banner", "-nostats", "-loglevel", "error",
		"-progress", "pipe:1",
		"-f", "image2",
	}
	if !format.Encoded() {
		args = append(args,
			"-c:v", "rawvideo",
			"-pixel_format", "rgba",
			"-video_size", fmt.Sprintf("%dx%d", theme.Width, theme.Height),
		)
	}
	args = append(args, "-framerate", fps, "-i", framePattern)

	if audioPath != "" {
		args = append(args, "-i", audioPath)
	}

	args = append(args, "-map", "0:v:0")
	if theme.NumFrames > 0 {
		// image2 читает всё, что продолжает нумерацию
		args = append(args, "-frames:v", strconv.Itoa(theme.NumFrames))
	}
	if audioPath != "" {
		args = append(args, "-map", "1:a:0", "-c:a", "aac", "-b:a", "192k", "-shortest")
	}

	quality := e.Quality
	if quality <= 0 {
		quality = system.DefaultQuality(encoder)
	}
	args = append(args, "-c:v", encoder, "-pix_fmt", "yuv420p", "-r", fps)
	args = append(args, system.QualityArgs(encoder, quality)...)
	args = append(args, extraArgs...)
	return append(args, output)
}
