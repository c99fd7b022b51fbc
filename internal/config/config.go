// Package config provides configuration management for the gifscribe agent.
// Configuration is loaded from an optional YAML file, then environment
// variables, on top of sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultHost     = "127.0.0.1"
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".gifscribe"

	// Environment variable names
	EnvConfigFile        = "GIFSCRIBE_CONFIG"
	EnvHost              = "GIFSCRIBE_HOST"
	EnvPort              = "GIFSCRIBE_PORT"
	EnvLogLevel          = "GIFSCRIBE_LOG_LEVEL"
	EnvDataDir           = "GIFSCRIBE_DATA_DIR"
	EnvOutputDir         = "GIFSCRIBE_OUTPUT_DIR"
	EnvArchivePath       = "GIFSCRIBE_ARCHIVE_PATH"
	EnvDownloadPath      = "GIFSCRIBE_DOWNLOAD_PATH"
	EnvFontPath          = "GIFSCRIBE_FONT_PATH"
	EnvFontSize          = "GIFSCRIBE_FONT_SIZE"
	EnvMaxBodyBytes      = "GIFSCRIBE_MAX_BODY_BYTES"
	EnvTranscriptLangs   = "GIFSCRIBE_TRANSCRIPT_LANGS"
	EnvFFmpegPath        = "GIFSCRIBE_FFMPEG_PATH"
	EnvFFprobePath       = "GIFSCRIBE_FFPROBE_PATH"
	EnvYtDlpPath         = "GIFSCRIBE_YTDLP_PATH"
	EnvVideoFormat       = "GIFSCRIBE_VIDEO_FORMAT"
	EnvRenderTimeout     = "GIFSCRIBE_RENDER_TIMEOUT"
	EnvSkipFailedEntries = "GIFSCRIBE_SKIP_FAILED_ENTRIES"
	EnvHeadless          = "GIFSCRIBE_HEADLESS"
	EnvCORSOrigins       = "GIFSCRIBE_CORS_ORIGINS"
	EnvAPIToken          = "GIFSCRIBE_API_TOKEN"
	EnvWebhookURL        = "GIFSCRIBE_WEBHOOK_URL"
	EnvWebhookToken      = "GIFSCRIBE_WEBHOOK_TOKEN"

	// Database filename
	DBFilename = "gifscribe.db"

	// Artifact layout, relative to the data directory
	DefaultOutputSubdir    = "static/gifs"
	DefaultArchiveName     = "gifs.zip"
	DefaultDownloadName    = "downloaded_video.mp4"
	DefaultFontPath        = "font.ttf"
	DefaultFontSize        = 30.0
	DefaultMaxBodyBytes    = 16 * 1024 * 1024 // 16MB
	DefaultVideoFormat     = "best[ext=mp4]/mp4/best"
	DefaultTranscriptLangs = "en"
	DefaultRenderTimeout   = 30 * time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	OutputDir() string
	ArchivePath() string
	DownloadPath() string
	FontPath() string
	FontSize() float64
	MaxBodyBytes() int64
	TranscriptLangs() []string
	FFmpegPath() string
	FFprobePath() string
	YtDlpPath() string
	VideoFormat() string
	RenderTimeout() time.Duration
	SkipFailedEntries() bool
	Headless() bool
	CORSOrigins() []string
	APIToken() string
	WebhookURL() string
	WebhookToken() string
}

// EnvConfig reads configuration from a YAML file and environment variables
type EnvConfig struct {
	host         string
	port         int
	logLevel     string
	dataDir      string
	outputDir    string
	archivePath  string
	downloadPath string

	fontPath     string
	fontSize     float64
	maxBodyBytes int64
	langs        []string

	ffmpegPath  string
	ffprobePath string
	ytdlpPath   string
	videoFormat string

	renderTimeout     time.Duration
	skipFailedEntries bool
	headless          bool
	corsOrigins       []string
	apiToken          string
	webhookURL        string
	webhookToken      string
}

// fileConfig mirrors the YAML document accepted via GIFSCRIBE_CONFIG.
type fileConfig struct {
	Server struct {
		Host         string   `yaml:"host"`
		Port         int      `yaml:"port"`
		MaxBodyBytes int64    `yaml:"max_body_bytes"`
		CORSOrigins  []string `yaml:"cors_origins"`
		APIToken     string   `yaml:"api_token"`
		Headless     *bool    `yaml:"headless"`
	} `yaml:"server"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Paths struct {
		Data     string `yaml:"data"`
		Output   string `yaml:"output"`
		Archive  string `yaml:"archive"`
		Download string `yaml:"download"`
	} `yaml:"paths"`
	Render struct {
		FontPath          string  `yaml:"font_path"`
		FontSize          float64 `yaml:"font_size"`
		Timeout           string  `yaml:"timeout"`
		SkipFailedEntries *bool   `yaml:"skip_failed_entries"`
	} `yaml:"render"`
	Media struct {
		FFmpeg          string   `yaml:"ffmpeg"`
		FFprobe         string   `yaml:"ffprobe"`
		YtDlp           string   `yaml:"yt_dlp"`
		VideoFormat     string   `yaml:"video_format"`
		TranscriptLangs []string `yaml:"transcript_langs"`
	} `yaml:"media"`
	Webhook struct {
		URL   string `yaml:"url"`
		Token string `yaml:"token"`
	} `yaml:"webhook"`
}

// New creates a new EnvConfig with defaults, file values and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		host:         DefaultHost,
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		fontPath:     DefaultFontPath,
		fontSize:     DefaultFontSize,
		maxBodyBytes: DefaultMaxBodyBytes,
		langs:        splitList(DefaultTranscriptLangs),
		ffmpegPath:   "ffmpeg",
		ffprobePath:  "ffprobe",
		ytdlpPath:    "yt-dlp",
		videoFormat:  DefaultVideoFormat,
		headless:     true,
		corsOrigins:  []string{"http://localhost:3000", "http://127.0.0.1:3000"},

		renderTimeout: DefaultRenderTimeout,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.host, fc.Server.Host)
	if fc.Server.Port != 0 {
		c.port = fc.Server.Port
	}
	if fc.Server.MaxBodyBytes != 0 {
		c.maxBodyBytes = fc.Server.MaxBodyBytes
	}
	if len(fc.Server.CORSOrigins) > 0 {
		c.corsOrigins = fc.Server.CORSOrigins
	}
	setString(&c.apiToken, fc.Server.APIToken)
	if fc.Server.Headless != nil {
		c.headless = *fc.Server.Headless
	}

	setString(&c.logLevel, fc.Logging.Level)

	setString(&c.dataDir, fc.Paths.Data)
	setString(&c.outputDir, fc.Paths.Output)
	setString(&c.archivePath, fc.Paths.Archive)
	setString(&c.downloadPath, fc.Paths.Download)

	setString(&c.fontPath, fc.Render.FontPath)
	if fc.Render.FontSize != 0 {
		c.fontSize = fc.Render.FontSize
	}
	if fc.Render.Timeout != "" {
		d, err := time.ParseDuration(fc.Render.Timeout)
		if err != nil {
			return fmt.Errorf("parse config file: render.timeout: %w", err)
		}
		c.renderTimeout = d
	}
	if fc.Render.SkipFailedEntries != nil {
		c.skipFailedEntries = *fc.Render.SkipFailedEntries
	}

	setString(&c.ffmpegPath, fc.Media.FFmpeg)
	setString(&c.ffprobePath, fc.Media.FFprobe)
	setString(&c.ytdlpPath, fc.Media.YtDlp)
	setString(&c.videoFormat, fc.Media.VideoFormat)
	if len(fc.Media.TranscriptLangs) > 0 {
		c.langs = fc.Media.TranscriptLangs
	}

	setString(&c.webhookURL, fc.Webhook.URL)
	setString(&c.webhookToken, fc.Webhook.Token)
	return nil
}

func (c *EnvConfig) loadEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if v := os.Getenv(EnvFontSize); v != "" {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvFontSize, err)
		}
		c.fontSize = size
	}

	if v := os.Getenv(EnvMaxBodyBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxBodyBytes, err)
		}
		c.maxBodyBytes = n
	}

	if v := os.Getenv(EnvRenderTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRenderTimeout, err)
		}
		c.renderTimeout = d
	}

	for _, b := range []struct {
		env string
		dst *bool
	}{
		{EnvSkipFailedEntries, &c.skipFailedEntries},
		{EnvHeadless, &c.headless},
	} {
		if v := os.Getenv(b.env); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", b.env, err)
			}
			*b.dst = parsed
		}
	}

	if v := os.Getenv(EnvTranscriptLangs); v != "" {
		c.langs = splitList(v)
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		c.corsOrigins = splitList(v)
	}

	setString(&c.host, os.Getenv(EnvHost))
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.outputDir, os.Getenv(EnvOutputDir))
	setString(&c.archivePath, os.Getenv(EnvArchivePath))
	setString(&c.downloadPath, os.Getenv(EnvDownloadPath))
	setString(&c.fontPath, os.Getenv(EnvFontPath))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.ffprobePath, os.Getenv(EnvFFprobePath))
	setString(&c.ytdlpPath, os.Getenv(EnvYtDlpPath))
	setString(&c.videoFormat, os.Getenv(EnvVideoFormat))
	setString(&c.apiToken, os.Getenv(EnvAPIToken))
	setString(&c.webhookURL, os.Getenv(EnvWebhookURL))
	setString(&c.webhookToken, os.Getenv(EnvWebhookToken))
	return nil
}

// Validate checks ranges that would otherwise fail deep inside the pipeline.
func (c *EnvConfig) Validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	if c.fontSize <= 0 {
		return fmt.Errorf("invalid %s: font size must be positive", EnvFontSize)
	}
	if c.maxBodyBytes <= 0 {
		return fmt.Errorf("invalid %s: limit must be positive", EnvMaxBodyBytes)
	}
	if c.renderTimeout <= 0 {
		return fmt.Errorf("invalid %s: timeout must be positive", EnvRenderTimeout)
	}
	if c.dataDir == "" {
		return fmt.Errorf("%s is required", EnvDataDir)
	}
	return nil
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// OutputDir returns the directory holding the current set of GIF artifacts
func (c *EnvConfig) OutputDir() string {
	if c.outputDir != "" {
		return c.outputDir
	}
	return filepath.Join(c.dataDir, filepath.FromSlash(DefaultOutputSubdir))
}

// ArchivePath returns the fixed path of the bundle archive
func (c *EnvConfig) ArchivePath() string {
	if c.archivePath != "" {
		return c.archivePath
	}
	return filepath.Join(c.dataDir, DefaultArchiveName)
}

// DownloadPath returns the fixed path the source video is downloaded to
func (c *EnvConfig) DownloadPath() string {
	if c.downloadPath != "" {
		return c.downloadPath
	}
	return filepath.Join(c.dataDir, DefaultDownloadName)
}

func (c *EnvConfig) FontPath() string {
	return c.fontPath
}

func (c *EnvConfig) FontSize() float64 {
	return c.fontSize
}

// MaxBodyBytes returns the maximum accepted inbound request body size
func (c *EnvConfig) MaxBodyBytes() int64 {
	return c.maxBodyBytes
}

// TranscriptLangs returns caption languages in order of preference
func (c *EnvConfig) TranscriptLangs() []string {
	return c.langs
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) YtDlpPath() string {
	return c.ytdlpPath
}

// VideoFormat returns the yt-dlp format selector used for downloads
func (c *EnvConfig) VideoFormat() string {
	return c.videoFormat
}

// RenderTimeout bounds a single render request end to end
func (c *EnvConfig) RenderTimeout() time.Duration {
	return c.renderTimeout
}

// SkipFailedEntries reports whether per-entry decode and overlay failures
// skip the entry instead of failing the whole render.
func (c *EnvConfig) SkipFailedEntries() bool {
	return c.skipFailedEntries
}

// Headless reports whether the system tray is disabled
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) CORSOrigins() []string {
	return c.corsOrigins
}

// APIToken returns the bearer token required on /api routes; empty disables auth
func (c *EnvConfig) APIToken() string {
	return c.apiToken
}

func (c *EnvConfig) WebhookURL() string {
	return c.webhookURL
}

func (c *EnvConfig) WebhookToken() string {
	return c.webhookToken
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
