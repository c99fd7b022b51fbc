// Package pipeline orchestrates a render request: download the video, fetch
// its transcript, and render one captioned GIF per transcript entry (or a
// single uncaptioned GIF of the whole video when there is no transcript).
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/gifscribe/gifscribe-agent/internal/render"
	"github.com/gifscribe/gifscribe-agent/internal/youtube"
)

// ErrAcquire is returned when the source video cannot be downloaded.
var ErrAcquire = errors.New("video acquisition failed")

const (
	// WholeVideoName is the artifact written when no transcript exists.
	WholeVideoName = "output_gif.gif"
	entryNameFmt   = "output_gif_%d.gif"
)

type VideoFetcher interface {
	FetchVideo(ctx context.Context, videoURL, dest string) error
}

// TranscriptFetcher returns caption entries; an error or an empty slice both
// mean the video has no transcript.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoURL string) ([]youtube.TranscriptEntry, error)
}

type Segmenter interface {
	Render(ctx context.Context, videoPath string, span render.Span) (render.FrameSequence, error)
}

type Overlayer interface {
	Apply(seq render.FrameSequence, text string) (render.FrameSequence, error)
}

type SequenceEncoder interface {
	Encode(seq render.FrameSequence, path string) error
}

// Config holds the filesystem layout and failure policy of the orchestrator.
type Config struct {
	OutputDir    string // directory holding the current artifacts
	ArchivePath  string // fixed path of the bundle archive
	DownloadPath string // fixed path the source video is downloaded to

	// SkipFailedEntries makes decode and overlay failures skip the entry
	// instead of failing the whole render. Encode failures always skip.
	SkipFailedEntries bool

	// Timeout bounds a single render; zero means no limit.
	Timeout time.Duration
}

// Result is what a caller sees of a render: the public artifact paths, or
// Failed with an empty path list.
type Result struct {
	RenderID string   `json:"render_id,omitempty"`
	Paths    []string `json:"gif_paths"`
	Failed   bool     `json:"error"`
}

// Summary is the full outcome of a render, delivered to completion hooks.
type Summary struct {
	Result
	SourceURL string        `json:"source_url"`
	VideoID   string        `json:"video_id,omitempty"`
	Mode      string        `json:"mode,omitempty"`
	Entries   int           `json:"entries"`
	Error     string        `json:"error_message,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Finished  time.Time     `json:"finished_at"`
}
