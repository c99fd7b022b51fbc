package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SegmentRenderer extracts the frames of one span of a video. Spans are not
// validated; an out-of-range start or non-positive duration is handed to the
// decoder as-is.
type SegmentRenderer struct {
	source FrameSource
	logger *slog.Logger
}

func NewSegmentRenderer(source FrameSource, logger *slog.Logger) *SegmentRenderer {
	return &SegmentRenderer{source: source, logger: logger}
}

// Render returns every decoded frame in span at the source resolution and
// frame rate. Failures are wrapped in ErrDecode.
func (r *SegmentRenderer) Render(ctx context.Context, videoPath string, span Span) (FrameSequence, error) {
	seq, err := r.source.Frames(ctx, videoPath, span)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return FrameSequence{}, err
		}
		return FrameSequence{}, fmt.Errorf("%w: span %s: %v", ErrDecode, span, err)
	}

	if r.logger != nil {
		r.logger.Debug("segment decoded",
			"span", span.String(),
			"frames", seq.Len(),
			"fps", seq.FPS,
		)
	}
	return seq, nil
}
