package renderer

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/ivlev/vconcat/internal/director"
)

// GenerateExtractFilter creates the FFmpeg filter that resamples a source to
// the theme frame rate and letterboxes it into the theme size
func GenerateExtractFilter(theme director.Theme) string {
	bg := strings.TrimPrefix(theme.Background, "#")
	return fmt.Sprintf(
		"fps=%d,scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=0x%s,setsar=1",
		theme.FPS, theme.Width, theme.Height, theme.Width, theme.Height, bg,
	)
}

// extractArgs builds the ffmpeg command dumping every resampled frame of
// input as numbered PNGs (1-based, as image2 numbers them)
func extractArgs(input, pattern string, theme director.Theme) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-an", "-sn",
		"-vf", GenerateExtractFilter(theme),
		"-f", "image2",
		pattern,
	}
}

// ParseColor decodes "#rrggbb" or "#rrggbbaa"
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
