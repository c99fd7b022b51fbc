package render

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultFontSize = 30
	// BottomMargin is the gap in pixels between the caption box and the
	// bottom edge of the frame.
	BottomMargin = 10
)

// Compositor burns a caption into every frame of a sequence: white text on
// an opaque black box, centered horizontally near the bottom of the frame.
type Compositor struct {
	fontPath string
	size     float64
	logger   *slog.Logger

	// guards face; font.Face implementations are not safe for concurrent use
	mu   sync.Mutex
	face font.Face
}

func NewCompositor(fontPath string, size float64, logger *slog.Logger) *Compositor {
	if size <= 0 {
		size = DefaultFontSize
	}
	return &Compositor{fontPath: fontPath, size: size, logger: logger}
}

// FontPath returns the path of the TrueType font file.
func (c *Compositor) FontPath() string {
	return c.fontPath
}

// Invalidate drops the cached face so the next Apply reloads the font file.
func (c *Compositor) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.face != nil {
		c.face.Close()
		c.face = nil
	}
	if c.logger != nil {
		c.logger.Info("caption font cache invalidated", "font", c.fontPath)
	}
}

// Apply returns a new sequence with text drawn into every frame. The input
// frames are not modified. Every frame gets the same box placement, and
// empty text still produces a (zero-width) box.
func (c *Compositor) Apply(seq FrameSequence, text string) (FrameSequence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	face, err := c.loadFace()
	if err != nil {
		return FrameSequence{}, err
	}

	out := FrameSequence{FPS: seq.FPS, Frames: make([]*image.RGBA, len(seq.Frames))}
	if len(seq.Frames) == 0 {
		return out, nil
	}

	box, baseline := captionLayout(face, seq.Bounds(), text)
	for i, src := range seq.Frames {
		dst := image.NewRGBA(src.Bounds())
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
		draw.Draw(dst, box, image.NewUniform(color.Black), image.Point{}, draw.Src)

		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  baseline,
		}
		d.DrawString(text)
		out.Frames[i] = dst
	}
	return out, nil
}

// captionLayout computes the caption box and the text baseline origin for a
// frame. The box is the measured text extent, centered horizontally with its
// bottom edge BottomMargin pixels above the frame bottom.
func captionLayout(face font.Face, frame image.Rectangle, text string) (image.Rectangle, fixed.Point26_6) {
	metrics := face.Metrics()
	w := font.MeasureString(face, text).Ceil()
	h := (metrics.Ascent + metrics.Descent).Ceil()

	x := frame.Min.X + (frame.Dx()-w)/2
	y := frame.Max.Y - h - BottomMargin

	box := image.Rect(x, y, x+w, y+h)
	baseline := fixed.Point26_6{
		X: fixed.I(x),
		Y: fixed.I(y) + metrics.Ascent,
	}
	return box, baseline
}

func (c *Compositor) loadFace() (font.Face, error) {
	if c.face != nil {
		return c.face, nil
	}

	data, err := os.ReadFile(c.fontPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFont, err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrFont, c.fontPath, err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    c.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFont, err)
	}

	c.face = face
	return face, nil
}
