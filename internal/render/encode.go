package render

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"math"
	"os"

	"golang.org/x/image/draw"
)

const (
	// minFrameDelay is the smallest delay, in hundredths of a second, that
	// browsers honour; smaller values are played back at 10.
	minFrameDelay     = 2
	defaultFrameDelay = 10
)

// Encoder writes frame sequences as infinitely looping animated GIFs.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode writes seq to path, overwriting any existing file. Failures are
// wrapped in ErrEncode and a partially written file is removed.
func (e *Encoder) Encode(seq FrameSequence, path string) error {
	if seq.Len() == 0 {
		return fmt.Errorf("%w: %s: sequence has no frames", ErrEncode, path)
	}

	delay := FrameDelay(seq.FPS)
	anim := &gif.GIF{
		Image:     make([]*image.Paletted, seq.Len()),
		Delay:     make([]int, seq.Len()),
		LoopCount: 0,
	}
	for i, frame := range seq.Frames {
		anim.Image[i] = quantize(frame)
		anim.Delay[i] = delay
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: %s: %v", ErrEncode, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %s: %v", ErrEncode, path, err)
	}
	return nil
}

// FrameDelay converts a frame rate into a GIF frame delay in hundredths of
// a second.
func FrameDelay(fps float64) int {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return defaultFrameDelay
	}
	d := int(math.Round(100 / fps))
	if d < minFrameDelay {
		return minFrameDelay
	}
	return d
}

func quantize(src *image.RGBA) *image.Paletted {
	b := src.Bounds()
	dst := image.NewPaletted(b, palette.Plan9)
	draw.FloydSteinberg.Draw(dst, b, src, b.Min)
	return dst
}
