package video

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// progressTracker turns ffmpeg "-progress pipe:1" batches into a fraction of
// the expected output. Reported values never decrease.
type progressTracker struct {
	duration float64 // seconds
	frames   int
	report   func(float64)
	last     float64
}

func newProgressTracker(duration float64, frames int, report func(float64)) *progressTracker {
	return &progressTracker{duration: duration, frames: frames, report: report}
}

type progressBatch struct {
	outTimeUs  int64
	outTimeSet bool
	frame      int64
	frameSet   bool
}

func (p *progressTracker) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var batch progressBatch
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// progress=continue / progress=end закрывают пачку
		if strings.HasPrefix(line, "progress=") {
			p.apply(batch)
			batch = progressBatch{}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "frame":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil && n >= 0 {
				batch.frame, batch.frameSet = n, true
			}
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				batch.outTimeUs, batch.outTimeSet = us, true
			}
		case "out_time_ms":
			// несмотря на имя, ffmpeg пишет сюда микросекунды
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 && !batch.outTimeSet {
				batch.outTimeUs, batch.outTimeSet = us, true
			}
		case "out_time":
			if us := parseOutTime(value); us >= 0 && !batch.outTimeSet {
				batch.outTimeUs, batch.outTimeSet = us, true
			}
		}
	}
	if batch.outTimeSet || batch.frameSet {
		p.apply(batch)
	}
	return scanner.Err()
}

func (p *progressTracker) apply(b progressBatch) {
	var v float64
	switch {
	case b.outTimeSet && p.duration > 0:
		v = float64(b.outTimeUs) / 1e6 / p.duration
	case b.frameSet && p.frames > 0:
		v = float64(b.frame) / float64(p.frames)
	default:
		return
	}
	p.emit(v)
}

func (p *progressTracker) emit(v float64) {
	v = clampProgress(v)
	if v <= p.last {
		return
	}
	p.last = v
	if p.report != nil {
		p.report(v)
	}
}

// finish reports completion once ffmpeg has exited cleanly.
func (p *progressTracker) finish() {
	p.emit(1)
}

func clampProgress(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseOutTime parses "HH:MM:SS.micro" into microseconds, -1 when unusable.
func parseOutTime(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return -1
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return -1
	}
	hours, err1 := strconv.ParseInt(parts[0], 10, 64)
	mins, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil || hours < 0 || mins < 0 {
		return -1
	}

	secStr, fracStr, _ := strings.Cut(parts[2], ".")
	secs, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil || secs < 0 {
		return -1
	}
	var micros int64
	if fracStr != "" {
		fracStr = (fracStr + "000000")[:6]
		micros, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return -1
		}
	}
	return ((hours*60+mins)*60+secs)*1_000_000 + micros
}
