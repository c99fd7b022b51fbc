package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

var red = color.RGBA{R: 200, A: 255}

func solidSequence(n, w, h int, fps float64) FrameSequence {
	seq := FrameSequence{FPS: fps}
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, red)
			}
		}
		seq.Frames = append(seq.Frames, img)
	}
	return seq
}

func writeTestFont(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "font.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	return path
}

type fakeSource struct {
	seq   FrameSequence
	err   error
	calls []Span
}

func (f *fakeSource) Frames(_ context.Context, _ string, span Span) (FrameSequence, error) {
	f.calls = append(f.calls, span)
	return f.seq, f.err
}

func TestSegmentRenderer_PassesSpanThrough(t *testing.T) {
	src := &fakeSource{seq: solidSequence(3, 8, 8, 24)}
	r := NewSegmentRenderer(src, nil)

	span := Span{Start: -5, Duration: 0}
	seq, err := r.Render(context.Background(), "video.mp4", span)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if seq.Len() != 3 || seq.FPS != 24 {
		t.Errorf("Render() = %d frames @ %v fps", seq.Len(), seq.FPS)
	}
	if len(src.calls) != 1 || src.calls[0] != span {
		t.Errorf("source calls = %v, want [%v]", src.calls, span)
	}
}

func TestSegmentRenderer_WrapsDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("ffmpeg exited 1")},
		{"already wrapped", ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSegmentRenderer(&fakeSource{err: tt.err}, nil)
			_, err := r.Render(context.Background(), "video.mp4", WholeVideo())
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Render() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestCompositor_Apply(t *testing.T) {
	c := NewCompositor(writeTestFont(t), 30, nil)
	in := solidSequence(4, 200, 100, 25)

	out, err := c.Apply(in, "Hello")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Len() != in.Len() {
		t.Fatalf("Apply() len = %d, want %d", out.Len(), in.Len())
	}
	if out.FPS != in.FPS {
		t.Errorf("FPS = %v, want %v", out.FPS, in.FPS)
	}

	for i, f := range out.Frames {
		if f.Bounds() != in.Frames[i].Bounds() {
			t.Errorf("frame %d bounds = %v, want %v", i, f.Bounds(), in.Frames[i].Bounds())
		}
		if f == in.Frames[i] {
			t.Errorf("frame %d was modified in place", i)
		}
	}

	// Input frames stay untouched.
	if got := in.Frames[0].RGBAAt(100, 85); got != red {
		t.Errorf("input pixel changed to %v", got)
	}

	frame := out.Frames[0]
	// Top-left corner is outside the caption box.
	if got := frame.RGBAAt(0, 0); got != red {
		t.Errorf("pixel (0,0) = %v, want unchanged", got)
	}
	// Rows inside the bottom margin are untouched.
	if got := frame.RGBAAt(100, 95); got != red {
		t.Errorf("pixel in bottom margin = %v, want unchanged", got)
	}
	// The last row of the box is part of the black/white caption.
	if got := frame.RGBAAt(100, 89); got.R != got.G || got.G != got.B {
		t.Errorf("pixel inside caption box = %v, want grayscale", got)
	}

	// Every frame carries the identical caption placement.
	for i := 1; i < out.Len(); i++ {
		if string(out.Frames[i].Pix) != string(frame.Pix) {
			t.Errorf("frame %d differs from frame 0", i)
		}
	}
}

func TestCaptionLayout_CenteredAboveMargin(t *testing.T) {
	c := NewCompositor(writeTestFont(t), 30, nil)
	face, err := c.loadFace()
	if err != nil {
		t.Fatalf("loadFace() error = %v", err)
	}

	frame := image.Rect(0, 0, 320, 240)
	box, _ := captionLayout(face, frame, "centered caption")
	if box.Max.Y != 240-BottomMargin {
		t.Errorf("box bottom = %d, want %d", box.Max.Y, 240-BottomMargin)
	}
	left, right := box.Min.X, frame.Max.X-box.Max.X
	if d := left - right; d < -1 || d > 1 {
		t.Errorf("box not centered: left margin %d, right margin %d", left, right)
	}
	if box.Dx() <= 0 || box.Dy() <= 0 {
		t.Errorf("box = %v, want non-empty", box)
	}
}

func TestCompositor_EmptyText(t *testing.T) {
	c := NewCompositor(writeTestFont(t), 30, nil)
	in := solidSequence(2, 50, 60, 10)

	out, err := c.Apply(in, "")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("Apply() len = %d, want 2", out.Len())
	}
	if string(out.Frames[0].Pix) != string(in.Frames[0].Pix) {
		t.Error("empty caption should leave the frame unchanged")
	}
}

func TestCompositor_FontErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.ttf")
	if err := os.WriteFile(garbage, []byte("not a font"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "missing.ttf")},
		{"unparsable", garbage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompositor(tt.path, 30, nil)
			_, err := c.Apply(solidSequence(1, 10, 10, 1), "x")
			if !errors.Is(err, ErrFont) {
				t.Errorf("Apply() error = %v, want ErrFont", err)
			}
		})
	}
}

func TestCompositor_InvalidateReloadsFont(t *testing.T) {
	path := writeTestFont(t)
	c := NewCompositor(path, 30, nil)

	if _, err := c.Apply(solidSequence(1, 100, 60, 1), "a"); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Apply(solidSequence(1, 100, 60, 1), "a"); err != nil {
		t.Fatalf("cached face should survive file removal: %v", err)
	}

	c.Invalidate()
	if _, err := c.Apply(solidSequence(1, 100, 60, 1), "a"); !errors.Is(err, ErrFont) {
		t.Errorf("Apply() after Invalidate error = %v, want ErrFont", err)
	}
}

func TestEncoder_Encode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output_gif_0.gif")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	seq := solidSequence(3, 16, 12, 25)
	if err := NewEncoder().Encode(seq, path); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	anim, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("DecodeAll() error = %v", err)
	}
	if len(anim.Image) != 3 {
		t.Errorf("frames = %d, want 3", len(anim.Image))
	}
	if anim.LoopCount != 0 {
		t.Errorf("LoopCount = %d, want 0 (infinite)", anim.LoopCount)
	}
	for i, d := range anim.Delay {
		if d != 4 {
			t.Errorf("delay[%d] = %d, want 4", i, d)
		}
	}
	if anim.Config.Width != 16 || anim.Config.Height != 12 {
		t.Errorf("size = %dx%d, want 16x12", anim.Config.Width, anim.Config.Height)
	}
}

func TestEncoder_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		seq  FrameSequence
		path string
	}{
		{"no frames", FrameSequence{FPS: 10}, filepath.Join(dir, "empty.gif")},
		{"missing directory", solidSequence(1, 4, 4, 10), filepath.Join(dir, "nope", "x.gif")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEncoder().Encode(tt.seq, tt.path)
			if !errors.Is(err, ErrEncode) {
				t.Errorf("Encode() error = %v, want ErrEncode", err)
			}
		})
	}
}

func TestFrameDelay(t *testing.T) {
	tests := []struct {
		fps  float64
		want int
	}{
		{25, 4},
		{30, 3},
		{29.97, 3},
		{12, 8},
		{10, 10},
		{100, 2},
		{0, 10},
		{-1, 10},
	}
	for _, tt := range tests {
		if got := FrameDelay(tt.fps); got != tt.want {
			t.Errorf("FrameDelay(%v) = %d, want %d", tt.fps, got, tt.want)
		}
	}
}
