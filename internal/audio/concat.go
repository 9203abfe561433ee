// Package audio builds the single audio track that follows the scene list.
package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/director"
	"github.com/ivlev/vconcat/internal/errs"
	"github.com/ivlev/vconcat/internal/system"
)

const DefaultCodec = "libmp3lame"

// Concatenator trims every scene's audio to the scene range and joins the
// pieces in scene order with one ffmpeg call.
type Concatenator struct {
	Runner  system.Runner
	Codec   string
	Bitrate string
	Logger  hclog.Logger
}

func NewConcatenator(r system.Runner, logger hclog.Logger) *Concatenator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Concatenator{Runner: r, Codec: DefaultCodec, Bitrate: "192k", Logger: logger}
}

// AllScenesHaveAudio reports whether a concatenated track can cover the whole
// timeline. A single scene without audio disables concatenation entirely.
func AllScenesHaveAudio(scenes []director.Scene) bool {
	if len(scenes) == 0 {
		return false
	}
	for _, s := range scenes {
		if s.SourceAudioPath == "" {
			return false
		}
	}
	return true
}

// Concatenate writes the joined track to outputDir/fileName and returns its path.
func (c *Concatenator) Concatenate(ctx context.Context, scenes []director.Scene, outputDir, fileName string) (string, error) {
	if fileName == "" {
		fileName = config.DefaultAudioFileName
	}
	output := filepath.Join(outputDir, fileName)

	args, err := c.buildArgs(scenes, output)
	if err != nil {
		return "", errs.New(errs.ErrAudio, "build audio graph", err)
	}

	c.Logger.Debug("concatenating audio", "scenes", len(scenes), "output", output)
	if err := c.Runner.Run(ctx, "ffmpeg", args, nil); err != nil {
		return "", errs.New(errs.ErrAudio, "ffmpeg concat", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return "", errs.New(errs.ErrAudio, "stat "+output, err)
	}
	if info.Size() == 0 {
		return "", errs.Newf(errs.ErrAudio, "check output", "%s is empty", output)
	}
	return output, nil
}

// buildArgs produces one input per scene:
//
//	[i:a]atrim=start=OFF:duration=DUR,asetpts=PTS-STARTPTS[ai] ... concat=n=N:v=0:a=1[aout]
func (c *Concatenator) buildArgs(scenes []director.Scene, output string) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	var graph, labels strings.Builder
	n := 0

	for _, s := range scenes {
		if s.SourceAudioPath == "" {
			return nil, fmt.Errorf("scene %d has no audio", s.Index)
		}
		dur := s.Duration()
		if dur <= 0 {
			continue
		}
		args = append(args, "-i", s.SourceAudioPath)
		fmt.Fprintf(&graph, "[%d:a]atrim=start=%.6f:duration=%.6f,asetpts=PTS-STARTPTS[a%d];", n, s.AudioOffset, dur, n)
		fmt.Fprintf(&labels, "[a%d]", n)
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("no scene with a positive duration")
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=0:a=1[aout]", labels.String(), n)

	args = append(args, "-filter_complex", graph.String(), "-map", "[aout]", "-c:a", c.Codec)
	if c.Bitrate != "" {
		args = append(args, "-b:a", c.Bitrate)
	}
	return append(args, output), nil
}
