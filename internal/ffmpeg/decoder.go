package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/gifscribe/gifscribe-agent/internal/render"
)

// Decoder extracts RGBA frames from a video by piping ffmpeg's rawvideo
// output. It implements render.FrameSource.
type Decoder struct {
	prober *Prober
	bin    string
	logger *slog.Logger
}

func NewDecoder(prober *Prober, ffmpegPath string, logger *slog.Logger) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Decoder{prober: prober, bin: ffmpegPath, logger: logger}
}

// Frames decodes every frame in span at the source resolution. The frame
// rate reported is the stream's average rate.
func (d *Decoder) Frames(ctx context.Context, videoPath string, span render.Span) (render.FrameSequence, error) {
	info, err := d.prober.Probe(ctx, videoPath)
	if err != nil {
		return render.FrameSequence{}, fmt.Errorf("%w: %v", render.ErrDecode, err)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, d.bin, decodeArgs(videoPath, span)...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return render.FrameSequence{}, fmt.Errorf("%w: %v", render.ErrDecode, err)
	}
	if err := cmd.Start(); err != nil {
		return render.FrameSequence{}, fmt.Errorf("%w: start ffmpeg: %v", render.ErrDecode, err)
	}

	frames, readErr := readFrames(stdout, info.Width, info.Height)
	if readErr != nil {
		// unblock ffmpeg so Wait can return
		io.Copy(io.Discard, stdout)
	}
	result := finish(cmd.Wait(), stderrBuf.String(), time.Since(start))

	if !result.IsSuccess() {
		return render.FrameSequence{}, fmt.Errorf("%w: ffmpeg: %s", render.ErrDecode, result.Error())
	}
	if readErr != nil {
		return render.FrameSequence{}, fmt.Errorf("%w: span %s: %v", render.ErrDecode, span, readErr)
	}

	if d.logger != nil {
		d.logger.Debug("decoded span",
			"span", span.String(),
			"frames", len(frames),
			"width", info.Width,
			"height", info.Height,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return render.FrameSequence{Frames: frames, FPS: info.FrameRate}, nil
}

func decodeArgs(videoPath string, span render.Span) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-noautorotate"}
	if !span.Whole {
		args = append(args, "-ss", formatSeconds(span.Start))
	}
	args = append(args, "-i", videoPath)
	if !span.Whole {
		args = append(args, "-t", formatSeconds(span.Duration))
	}
	return append(args, "-an", "-sn", "-f", "rawvideo", "-pix_fmt", "rgba", "pipe:1")
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// readFrames reads consecutive width*height RGBA frames until EOF.
func readFrames(r io.Reader, width, height int) ([]*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	var frames []*image.RGBA
	for {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		_, err := io.ReadFull(r, img.Pix)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return frames, fmt.Errorf("truncated frame %d", len(frames))
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, img)
	}
}
