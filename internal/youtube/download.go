package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"

	"github.com/gifscribe/gifscribe-agent/internal/logging"
)

// DefaultFormat selects a single progressive mp4 file so no muxing step is
// needed after download.
const DefaultFormat = "best[ext=mp4]/mp4/best"

// Downloader saves videos to disk with yt-dlp.
type Downloader struct {
	executable string
	format     string
	logger     *slog.Logger
}

func NewDownloader(executable, format string, logger *slog.Logger) *Downloader {
	if format == "" {
		format = DefaultFormat
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Downloader{executable: executable, format: format, logger: logger}
}

// FetchVideo downloads the video at videoURL to dest, replacing any file
// already there.
func (d *Downloader) FetchVideo(ctx context.Context, videoURL, dest string) error {
	if _, err := ExtractVideoID(videoURL); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	cmd := ytdlp.New().
		Format(d.format).
		NoPlaylist().
		NoProgress().
		ForceOverwrites().
		Output(dest)
	if d.executable != "" {
		cmd.SetExecutable(d.executable)
	}

	start := time.Now()
	if _, err := cmd.Run(ctx, videoURL); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("downloaded file missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("downloaded file is empty")
	}

	d.logger.Info("video downloaded",
		"dest", logging.SanitizePath(dest),
		"size", humanize.Bytes(uint64(info.Size())),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
