package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gifscribe/gifscribe-agent/internal/bundle"
	"github.com/gifscribe/gifscribe-agent/internal/history"
	"github.com/gifscribe/gifscribe-agent/internal/logging"
	"github.com/gifscribe/gifscribe-agent/internal/render"
	"github.com/gifscribe/gifscribe-agent/internal/youtube"
)

// Deps are the collaborators of an Orchestrator. History may be nil.
type Deps struct {
	Videos      VideoFetcher
	Transcripts TranscriptFetcher
	Segments    Segmenter
	Overlay     Overlayer
	Encoder     SequenceEncoder
	History     history.Repository
	Logger      *slog.Logger
}

// Orchestrator runs render and bundle requests one at a time; both share
// the output directory, the archive and the download path.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []func(Summary)
	last    *Summary
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Videos == nil || deps.Transcripts == nil || deps.Segments == nil ||
		deps.Overlay == nil || deps.Encoder == nil {
		return nil, errors.New("pipeline: missing dependency")
	}
	if cfg.OutputDir == "" || cfg.ArchivePath == "" || cfg.DownloadPath == "" {
		return nil, errors.New("pipeline: output dir, archive path and download path are required")
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := bundle.ValidateOutputDir(cfg.OutputDir); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logging.WithComponent(deps.Logger, "pipeline"),
	}, nil
}

// OutputDir returns the directory holding the current artifacts.
func (o *Orchestrator) OutputDir() string {
	return o.cfg.OutputDir
}

// PublicPrefix is the first element of every public artifact path: the
// base name of the output directory.
func (o *Orchestrator) PublicPrefix() string {
	return filepath.Base(o.cfg.OutputDir)
}

// OnComplete registers a hook called after every render that had input.
func (o *Orchestrator) OnComplete(fn func(Summary)) {
	o.hooksMu.Lock()
	o.hooks = append(o.hooks, fn)
	o.hooksMu.Unlock()
}

// Last returns the summary of the most recent render, or nil.
func (o *Orchestrator) Last() *Summary {
	o.hooksMu.RLock()
	defer o.hooksMu.RUnlock()
	return o.last
}

// Render clears the previous artifacts and renders videoURL. An empty URL
// only clears. Failures are reported through Result.Failed with an empty
// path list; artifacts written before a failure stay on disk until the next
// request clears them.
func (o *Orchestrator) Render(ctx context.Context, videoURL string) Result {
	o.mu.Lock()
	summary, hadInput := o.render(ctx, strings.TrimSpace(videoURL))
	o.mu.Unlock()

	if hadInput {
		o.complete(summary)
	}
	return summary.Result
}

func (o *Orchestrator) render(ctx context.Context, videoURL string) (Summary, bool) {
	start := time.Now()
	summary := Summary{SourceURL: videoURL, Result: Result{Paths: []string{}}}

	if err := o.reset(); err != nil {
		o.logger.Error("failed to clear previous artifacts", "error", err)
		if videoURL == "" {
			summary.Failed = true
			return summary, false
		}
		return o.fail(ctx, summary, nil, start, err), true
	}

	if videoURL == "" {
		return summary, false
	}

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	summary.RenderID = history.NewID()
	summary.VideoID, _ = youtube.ExtractVideoID(videoURL)
	logger := logging.WithRenderID(o.logger, summary.RenderID)
	logger.Info("render started", "video_id", summary.VideoID)

	rec := &history.Render{
		ID:        summary.RenderID,
		SourceURL: videoURL,
		VideoID:   summary.VideoID,
		Status:    history.StatusRunning,
		CreatedAt: start,
		UpdatedAt: start,
	}
	if o.deps.History != nil {
		if err := o.deps.History.CreateRender(ctx, rec); err != nil {
			logger.Warn("failed to record render", "error", err)
			rec = nil
		}
	} else {
		rec = nil
	}

	if err := o.deps.Videos.FetchVideo(ctx, videoURL, o.cfg.DownloadPath); err != nil {
		logger.Error("video download failed", "error", err)
		return o.fail(ctx, summary, rec, start, fmt.Errorf("%w: %v", ErrAcquire, err)), true
	}

	entries, err := o.deps.Transcripts.FetchTranscript(ctx, videoURL)
	if err != nil {
		logger.Warn("transcript unavailable, rendering whole video", "error", err)
		entries = nil
	}
	summary.Entries = len(entries)

	var artifacts []history.Artifact
	if len(entries) > 0 {
		summary.Mode = history.ModeTranscript
		artifacts, err = o.renderEntries(ctx, logger, entries)
	} else {
		summary.Mode = history.ModeWholeVideo
		artifacts, err = o.renderWhole(ctx, logger)
	}
	if err != nil {
		return o.fail(ctx, summary, rec, start, err), true
	}

	if err := os.Remove(o.cfg.DownloadPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove downloaded video", "error", err)
	}

	for _, a := range artifacts {
		summary.Paths = append(summary.Paths, a.Path)
	}
	summary.Elapsed = time.Since(start)
	summary.Finished = time.Now()

	if rec != nil {
		rec.Status = history.StatusSucceeded
		rec.Mode = summary.Mode
		rec.EntryCount = summary.Entries
		rec.Artifacts = artifacts
		rec.UpdatedAt = summary.Finished
		if err := o.deps.History.CompleteRender(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("failed to record render result", "error", err)
		}
	}

	logger.Info("render finished",
		"mode", summary.Mode,
		"entries", summary.Entries,
		"artifacts", len(summary.Paths),
		"duration_ms", summary.Elapsed.Milliseconds(),
	)
	return summary, true
}

// renderEntries renders one captioned GIF per entry, in order. Encode
// failures skip the entry; decode and overlay failures abort unless
// SkipFailedEntries is set.
func (o *Orchestrator) renderEntries(ctx context.Context, logger *slog.Logger, entries []youtube.TranscriptEntry) ([]history.Artifact, error) {
	var artifacts []history.Artifact
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		span := render.Span{Start: entry.Start, Duration: entry.Duration}
		seq, err := o.deps.Segments.Render(ctx, o.cfg.DownloadPath, span)
		if err != nil {
			if o.cfg.SkipFailedEntries {
				logger.Warn("skipping entry: decode failed", "index", i, "error", err)
				continue
			}
			return artifacts, fmt.Errorf("entry %d: %w", i, err)
		}

		captioned, err := o.deps.Overlay.Apply(seq, entry.Text)
		if err != nil {
			if o.cfg.SkipFailedEntries {
				logger.Warn("skipping entry: overlay failed", "index", i, "error", err)
				continue
			}
			return artifacts, fmt.Errorf("entry %d: %w", i, err)
		}

		name := fmt.Sprintf(entryNameFmt, i)
		if err := o.deps.Encoder.Encode(captioned, filepath.Join(o.cfg.OutputDir, name)); err != nil {
			logger.Error("skipping entry: encode failed", "index", i, "error", err)
			continue
		}

		artifacts = append(artifacts, history.Artifact{
			Index:    i,
			Path:     o.publicPath(name),
			Text:     entry.Text,
			Start:    entry.Start,
			Duration: entry.Duration,
		})
	}
	return artifacts, nil
}

// renderWhole renders the entire video without a caption.
func (o *Orchestrator) renderWhole(ctx context.Context, logger *slog.Logger) ([]history.Artifact, error) {
	seq, err := o.deps.Segments.Render(ctx, o.cfg.DownloadPath, render.WholeVideo())
	if err != nil {
		return nil, fmt.Errorf("whole video: %w", err)
	}

	if err := o.deps.Encoder.Encode(seq, filepath.Join(o.cfg.OutputDir, WholeVideoName)); err != nil {
		logger.Error("whole video encode failed", "error", err)
		return nil, nil
	}
	return []history.Artifact{{
		Path:     o.publicPath(WholeVideoName),
		Duration: float64(seq.Len()) / nonZero(seq.FPS),
	}}, nil
}

func (o *Orchestrator) fail(ctx context.Context, summary Summary, rec *history.Render, start time.Time, err error) Summary {
	summary.Failed = true
	summary.Paths = []string{}
	summary.Error = err.Error()
	summary.Elapsed = time.Since(start)
	summary.Finished = time.Now()

	o.logger.Error("render failed",
		"render_id", summary.RenderID,
		"error", err,
		"duration_ms", summary.Elapsed.Milliseconds(),
	)

	if rec != nil {
		rec.Status = history.StatusFailed
		rec.Mode = summary.Mode
		rec.EntryCount = summary.Entries
		rec.Error = summary.Error
		rec.Artifacts = nil
		rec.UpdatedAt = summary.Finished
		if herr := o.deps.History.CompleteRender(context.WithoutCancel(ctx), rec); herr != nil {
			o.logger.Warn("failed to record render failure", "render_id", rec.ID, "error", herr)
		}
	}
	return summary
}

// reset removes every artifact of the previous request and its archive.
func (o *Orchestrator) reset() error {
	if err := bundle.ClearDir(o.cfg.OutputDir); err != nil {
		return fmt.Errorf("clear output dir: %w", err)
	}
	if err := os.Remove(o.cfg.ArchivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

func (o *Orchestrator) complete(s Summary) {
	o.hooksMu.Lock()
	o.last = &s
	hooks := append([]func(Summary){}, o.hooks...)
	o.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
}

// Bundle packs the current artifacts into the archive and returns its path.
func (o *Orchestrator) Bundle(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res, err := bundle.Build(ctx, o.cfg.OutputDir, o.cfg.ArchivePath)
	if err != nil {
		o.logger.Error("bundle failed", "error", err)
		return "", fmt.Errorf("bundle: %w", err)
	}
	o.logger.Info("bundle written",
		"path", logging.SanitizePath(res.Path),
		"files", len(res.Files),
		"size", humanize.Bytes(uint64(res.Bytes)),
	)
	return res.Path, nil
}

func (o *Orchestrator) publicPath(name string) string {
	return path.Join(o.PublicPrefix(), name)
}

func nonZero(fps float64) float64 {
	if fps <= 0 {
		return 1
	}
	return fps
}
