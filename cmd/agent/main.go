package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gifscribe/gifscribe-agent/internal/api"
	"github.com/gifscribe/gifscribe-agent/internal/config"
	"github.com/gifscribe/gifscribe-agent/internal/db"
	"github.com/gifscribe/gifscribe-agent/internal/doctor"
	"github.com/gifscribe/gifscribe-agent/internal/ffmpeg"
	"github.com/gifscribe/gifscribe-agent/internal/history"
	"github.com/gifscribe/gifscribe-agent/internal/logging"
	"github.com/gifscribe/gifscribe-agent/internal/notify"
	"github.com/gifscribe/gifscribe-agent/internal/pipeline"
	"github.com/gifscribe/gifscribe-agent/internal/playback"
	"github.com/gifscribe/gifscribe-agent/internal/render"
	"github.com/gifscribe/gifscribe-agent/internal/ui"
	"github.com/gifscribe/gifscribe-agent/internal/watcher"
	"github.com/gifscribe/gifscribe-agent/internal/youtube"
)

const apiTokenKey = "api_token"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting gifscribe agent",
		"version", config.Version,
		"commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := history.NewRepository(database.Conn())

	apiToken, err := ensureAPIToken(repo, cfg)
	if err != nil {
		return fmt.Errorf("failed to ensure API token: %w", err)
	}

	runner := ffmpeg.NewRunner(logger)
	prober := ffmpeg.NewProber(runner, cfg.FFprobePath())
	decoder := ffmpeg.NewDecoder(prober, cfg.FFmpegPath(), logger)
	compositor := render.NewCompositor(cfg.FontPath(), cfg.FontSize(), logger)

	orch, err := pipeline.New(pipeline.Config{
		OutputDir:         cfg.OutputDir(),
		ArchivePath:       cfg.ArchivePath(),
		DownloadPath:      cfg.DownloadPath(),
		SkipFailedEntries: cfg.SkipFailedEntries(),
		Timeout:           cfg.RenderTimeout(),
	}, pipeline.Deps{
		Videos: youtube.NewDownloader(cfg.YtDlpPath(), cfg.VideoFormat(), logger),
		Transcripts: youtube.NewTranscriptClient(youtube.TranscriptOptions{
			Languages:         cfg.TranscriptLangs(),
			RequestsPerSecond: 2,
			Logger:            logger,
		}),
		Segments: render.NewSegmentRenderer(decoder, logger),
		Overlay:  compositor,
		Encoder:  render.NewEncoder(),
		History:  repo,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	toolDoctor := doctor.NewCachedDoctor(doctor.NewExecProber(doctor.ToolPaths{
		FFmpeg:  cfg.FFmpegPath(),
		FFprobe: cfg.FFprobePath(),
		YtDlp:   cfg.YtDlpPath(),
		Font:    cfg.FontPath(),
	}, runner), logger)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if caps, err := toolDoctor.Refresh(initCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else {
		logger.Info("render dependencies detected",
			"can_download", caps.CanDownload,
			"can_decode", caps.CanDecode,
			"can_caption", caps.CanCaption,
		)
	}
	initCancel()

	var webhook *notify.WebhookClient
	if cfg.WebhookURL() != "" {
		webhook = notify.NewWebhookClient(cfg.WebhookURL(), cfg.WebhookToken(), logger)
		orch.OnComplete(webhook.Hook())
		logger.Info("webhook notifications enabled", "url", logging.SanitizeURL(cfg.WebhookURL()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fontWatcher := watcher.NewFileWatcher(logger)
	fontWatcher.OnChange(func(path string, event watcher.EventType) {
		logger.Info("caption font changed, reloading", "event", event.String())
		compositor.Invalidate()
		toolDoctor.Invalidate()
	})
	if err := fontWatcher.Watch(ctx, cfg.FontPath()); err != nil {
		logger.Warn("font watcher unavailable", "error", err)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Host:         cfg.Host(),
		Port:         cfg.Port(),
		Renderer:     orch,
		Playback:     playback.NewServer(orch.OutputDir(), logger),
		History:      repo,
		Doctor:       toolDoctor,
		APIToken:     apiToken,
		CORSOrigins:  cfg.CORSOrigins(),
		MaxBodyBytes: cfg.MaxBodyBytes(),
		Version:      config.Version,
		Logger:       logger,
		StartTime:    startTime,
	})

	fmt.Println()
	fmt.Printf("  gifscribe %s\n", config.Version)
	fmt.Printf("  Page:      http://%s/\n", apiServer.Addr())
	if apiToken != "" {
		fmt.Printf("  API token: %s\n", apiToken)
	}
	fmt.Println()

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Addr:   apiServer.Addr(),
			Logger: logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		orch.OnComplete(tray.Update)
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := fontWatcher.Stop(); err != nil {
		logger.Error("failed to stop font watcher", "error", err)
	}
	if webhook != nil {
		webhook.Wait()
	}

	logger.Info("shutdown complete")
	return nil
}

// ensureAPIToken returns the configured token. When none is configured and
// the agent listens beyond loopback, a token is generated once and kept in
// the database so remote clients are never served unauthenticated.
func ensureAPIToken(repo history.Repository, cfg config.Config) (string, error) {
	if cfg.APIToken() != "" {
		return cfg.APIToken(), nil
	}
	if isLoopbackHost(cfg.Host()) {
		return "", nil
	}

	ctx := context.Background()
	existing, err := repo.GetConfig(ctx, apiTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, apiTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
