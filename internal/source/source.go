package source

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/vconcat/internal/config"
)

// Source is one probed input clip. It is never modified after loading.
type Source struct {
	Index    int
	Path     string
	Duration float64 // seconds
	Width    int
	Height   int
	FPS      float64

	// AudioPath is the track that carries this clip's sound: the container
	// itself, a sidecar file, or empty when the clip is silent.
	AudioPath string
}

func (s *Source) HasAudio() bool {
	return s.AudioPath != ""
}

// Prober reads stream metadata of a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// Info is what a Prober learns about a file.
type Info struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	HasVideo bool
	HasAudio bool
}

// Load probes a single configured source.
func Load(ctx context.Context, p Prober, index int, sc config.SourceConfig) (*Source, error) {
	info, err := p.Probe(ctx, sc.Path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", sc.Path, err)
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("%s has no video stream", sc.Path)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("%s has unknown duration", sc.Path)
	}

	src := &Source{
		Index:    index,
		Path:     sc.Path,
		Duration: info.Duration,
		Width:    info.Width,
		Height:   info.Height,
		FPS:      info.FPS,
	}
	switch {
	case sc.Audio != "":
		src.AudioPath = sc.Audio
	case info.HasAudio:
		src.AudioPath = sc.Path
	}
	return src, nil
}

// LoadAll probes every source, at most limit at a time, and returns them in
// input order.
func LoadAll(ctx context.Context, p Prober, sources []config.SourceConfig, limit int) ([]*Source, error) {
	out := make([]*Source, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, sc := range sources {
		i, sc := i, sc
		g.Go(func() error {
			src, err := Load(gctx, p, i, sc)
			if err != nil {
				return err
			}
			out[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
