package renderer

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/ivlev/vconcat/internal/config"
)

const minIndexDigits = 6

// indexDigits is the zero-padding width for n frames.
func indexDigits(n int) int {
	d := len(strconv.Itoa(max(n-1, 0)))
	return max(d, minIndexDigits)
}

// FramePattern is the printf-style address of the rendered sequence, usable
// directly as an ffmpeg image2 input.
func FramePattern(dir string, numFrames int, format config.FrameFormat) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%%0%dd.%s", indexDigits(numFrames), format.Ext()))
}

// FramePath is the file of frame index in a sequence of numFrames.
func FramePath(dir string, index, numFrames int, format config.FrameFormat) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%0*d.%s", indexDigits(numFrames), index, format.Ext()))
}

// WriteFrame stores img in the given format. The file is written under a
// temporary name and renamed, so a frame path never holds a partial image.
func WriteFrame(path string, img image.Image, format config.FrameFormat) error {
	tmp := path + ".part"
	if format.Encoded() {
		// imaging выбирает кодек по расширению, поэтому ".part" не подходит
		tmp = filepath.Join(filepath.Dir(path), ".part-"+filepath.Base(path))
		if err := imaging.Save(img, tmp); err != nil {
			os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, path)
	}

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := writeRawRGBA(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	// Проверяем, является ли изображение уже RGBA и имеет ли стандартный шаг (stride)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
