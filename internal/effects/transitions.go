package effects

import (
	"image"
	"math"

	"github.com/ivlev/vconcat/internal/config"
)

// All effects expect dst, from and to to share one size, anchored at the
// origin (pooled canvases always are).

type axis int

const (
	axisX axis = iota
	axisY
)

func size(img *image.RGBA) (int, int) {
	return img.Rect.Dx(), img.Rect.Dy()
}

func copyPixel(dst *image.RGBA, di int, src *image.RGBA, si int) {
	copy(dst.Pix[di:di+4], src.Pix[si:si+4])
}

func mixPixel(dst *image.RGBA, di int, a *image.RGBA, ai int, b *image.RGBA, bi int, p float64) {
	for c := 0; c < 4; c++ {
		dst.Pix[di+c] = uint8(lerp(float64(a.Pix[ai+c]), float64(b.Pix[bi+c]), p) + 0.5)
	}
}

func cut(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
	if p < 0.5 {
		copy(dst.Pix, from.Pix)
		return
	}
	copy(dst.Pix, to.Pix)
}

func fade(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
	for i := range dst.Pix {
		dst.Pix[i] = uint8(lerp(float64(from.Pix[i]), float64(to.Pix[i]), p) + 0.5)
	}
}

// fadeThrough dips to a flat grey level at the midpoint.
func fadeThrough(level uint8) Func {
	return func(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
		src, k := from, p*2
		if p >= 0.5 {
			src, k = to, (1-p)*2
		}
		for i := range dst.Pix {
			if i%4 == 3 {
				dst.Pix[i] = src.Pix[i]
				continue
			}
			dst.Pix[i] = uint8(lerp(float64(src.Pix[i]), float64(level), k) + 0.5)
		}
	}
}

// wipe moves a straight edge across the frame. With reverse the edge travels
// towards the origin (wipeleft, wipeup). Param "smoothness" softens the edge
// over that fraction of the frame.
func wipe(ax axis, reverse bool) Func {
	return func(dst, from, to *image.RGBA, p float64, spec config.TransitionSpec) {
		w, h := size(dst)
		span := w
		if ax == axisY {
			span = h
		}
		soft := spec.Param("smoothness", 0) * float64(span)
		edge := p * (float64(span) + soft)

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pos := float64(x)
				if ax == axisY {
					pos = float64(y)
				}
				if reverse {
					pos = float64(span-1) - pos
				}
				// k = 1 where "to" is fully revealed
				k := 0.0
				switch {
				case soft <= 0 && pos < edge:
					k = 1
				case soft > 0:
					k = clamp01((edge - pos) / soft)
				}
				mixPixel(dst, dst.PixOffset(x, y), from, from.PixOffset(x, y), to, to.PixOffset(x, y), k)
			}
		}
	}
}

// slide pushes from out of the frame while to follows it in.
func slide(ax axis, reverse bool) Func {
	return func(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
		w, h := size(dst)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sx, sy := x, y
				var n, pos int
				if ax == axisX {
					n, pos = w, x
				} else {
					n, pos = h, y
				}
				off := int(math.Round(p * float64(n)))

				src := from
				if reverse {
					pos += off
					if pos >= n {
						src, pos = to, pos-n
					}
				} else {
					pos -= off
					if pos < 0 {
						src, pos = to, pos+n
					}
				}
				if ax == axisX {
					sx = pos
				} else {
					sy = pos
				}
				copyPixel(dst, dst.PixOffset(x, y), src, src.PixOffset(sx, sy))
			}
		}
	}
}

// circle reveals to through a growing disc (open) or hides from behind a
// shrinking one (close).
func circle(open bool) Func {
	return func(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
		w, h := size(dst)
		cx, cy := float64(w)/2, float64(h)/2
		maxR := math.Hypot(cx, cy)
		r := p * maxR
		if !open {
			r = (1 - p) * maxR
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				inside := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) < r
				src := from
				if inside == open {
					src = to
				}
				copyPixel(dst, dst.PixOffset(x, y), src, src.PixOffset(x, y))
			}
		}
	}
}

// dissolve switches pixels in a fixed pseudo-random order, so the same
// (frame, t) always renders the same image.
func dissolve(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
	w, h := size(dst)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := from
			if p >= 1 || noise(x, y) < p {
				src = to
			}
			copyPixel(dst, dst.PixOffset(x, y), src, src.PixOffset(x, y))
		}
	}
}

func noise(x, y int) float64 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return float64(h) / float64(math.MaxUint32)
}

// pixelize coarsens the cross-fade into blocks that peak at the midpoint.
// Param "blocks" is the largest block edge in pixels.
func pixelize(dst, from, to *image.RGBA, p float64, spec config.TransitionSpec) {
	w, h := size(dst)
	maxBlock := spec.Param("blocks", 48)
	block := 1 + int(math.Round(maxBlock*(1-math.Abs(2*p-1))))
	for y := 0; y < h; y++ {
		by := y / block * block
		for x := 0; x < w; x++ {
			bx := x / block * block
			mixPixel(dst, dst.PixOffset(x, y), from, from.PixOffset(bx, by), to, to.PixOffset(bx, by), p)
		}
	}
}

// squeeze folds from towards the left edge while to unfolds from the right,
// a flat take on a cube rotation.
func squeeze(dst, from, to *image.RGBA, p float64, _ config.TransitionSpec) {
	w, h := size(dst)
	split := int(math.Round((1 - p) * float64(w)))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var src *image.RGBA
			var sx int
			if x < split {
				src, sx = from, x*w/split
			} else {
				src, sx = to, (x-split)*w/(w-split)
			}
			if sx >= w {
				sx = w - 1
			}
			copyPixel(dst, dst.PixOffset(x, y), src, src.PixOffset(sx, y))
		}
	}
}
