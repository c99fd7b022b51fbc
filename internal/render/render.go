// Package render turns decoded video spans into captioned, looping GIFs.
//
// A render is three steps: SegmentRenderer extracts the frames of a span,
// Compositor burns a caption into every frame, and Encoder writes the
// frames as an animated GIF.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var (
	// ErrDecode is returned when the source video cannot be decoded.
	ErrDecode = errors.New("decode failed")
	// ErrFont is returned when the caption font is missing or unparsable.
	ErrFont = errors.New("font unavailable")
	// ErrEncode is returned when a GIF cannot be written.
	ErrEncode = errors.New("encode failed")
)

// Span is the half-open time interval [Start, Start+Duration) in seconds.
// Whole selects the entire video and ignores Start and Duration.
type Span struct {
	Start    float64
	Duration float64
	Whole    bool
}

// WholeVideo returns the span covering the entire video.
func WholeVideo() Span {
	return Span{Whole: true}
}

func (s Span) String() string {
	if s.Whole {
		return "whole"
	}
	return fmt.Sprintf("[%.3fs,+%.3fs)", s.Start, s.Duration)
}

// FrameSequence is an ordered list of frames sharing the same bounds,
// played back at FPS frames per second.
type FrameSequence struct {
	Frames []*image.RGBA
	FPS    float64
}

// Len returns the number of frames.
func (s FrameSequence) Len() int {
	return len(s.Frames)
}

// Bounds returns the bounds shared by every frame, or the empty rectangle
// for an empty sequence.
func (s FrameSequence) Bounds() image.Rectangle {
	if len(s.Frames) == 0 {
		return image.Rectangle{}
	}
	return s.Frames[0].Bounds()
}

// FrameSource decodes the frames of a span of a video file.
type FrameSource interface {
	Frames(ctx context.Context, videoPath string, span Span) (FrameSequence, error)
}
