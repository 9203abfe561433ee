package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ivlev/vconcat/internal/system"
)

// FFProbe probes files with the ffprobe binary.
type FFProbe struct {
	Runner system.Runner
	Bin    string // defaults to "ffprobe"
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFProbe) Probe(ctx context.Context, path string) (*Info, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	args := []string{"-v", "error", "-print_format", "json", "-show_streams", "-show_format", path}

	var out bytes.Buffer
	if err := p.Runner.Run(ctx, bin, args, &out); err != nil {
		return nil, err
	}
	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (*Info, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := &Info{}
	streamDuration := 0.0
	for _, s := range po.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue // обложки и прочие вторичные видеопотоки
			}
			info.HasVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS <= 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
			streamDuration, _ = strconv.ParseFloat(s.Duration, 64)
		case "audio":
			info.HasAudio = true
		}
	}

	if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = d
	} else {
		info.Duration = streamDuration
	}
	return info, nil
}

// parseRate decodes ffprobe rationals like "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
