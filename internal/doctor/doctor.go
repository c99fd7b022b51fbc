// Package doctor probes the external tools and files a render depends on and
// caches the result.
package doctor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font/opentype"

	"github.com/gifscribe/gifscribe-agent/internal/ffmpeg"
)

const defaultCacheTTL = 5 * time.Minute

// ToolInfo represents the availability of a single dependency.
type ToolInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities reports what the agent can currently do.
type Capabilities struct {
	Tools map[string]ToolInfo `json:"tools"`
	Font  ToolInfo            `json:"font"`

	CanDownload bool      `json:"can_download"`
	CanDecode   bool      `json:"can_decode"`
	CanCaption  bool      `json:"can_caption"`
	ProbedAt    time.Time `json:"probed_at"`
}

// AllOK reports whether every dependency is available.
func (c *Capabilities) AllOK() bool {
	return c.CanDownload && c.CanDecode && c.CanCaption
}

// Prober performs one full probe.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// ToolPaths names the binaries and font to probe.
type ToolPaths struct {
	FFmpeg  string
	FFprobe string
	YtDlp   string
	Font    string
}

// ExecProber checks tools by running their version commands.
type ExecProber struct {
	paths   ToolPaths
	runner  *ffmpeg.Runner
	timeout time.Duration
}

func NewExecProber(paths ToolPaths, runner *ffmpeg.Runner) *ExecProber {
	return &ExecProber{paths: paths, runner: runner, timeout: 10 * time.Second}
}

func (p *ExecProber) Probe(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	caps := &Capabilities{
		Tools: map[string]ToolInfo{
			"ffmpeg":  p.tool(ctx, p.paths.FFmpeg, "-version"),
			"ffprobe": p.tool(ctx, p.paths.FFprobe, "-version"),
			"yt-dlp":  p.tool(ctx, p.paths.YtDlp, "--version"),
		},
		Font:     checkFont(p.paths.Font),
		ProbedAt: time.Now(),
	}
	caps.CanDownload = caps.Tools["yt-dlp"].Available
	caps.CanDecode = caps.Tools["ffmpeg"].Available && caps.Tools["ffprobe"].Available
	caps.CanCaption = caps.Font.Available
	return caps, nil
}

func (p *ExecProber) tool(ctx context.Context, bin string, versionFlag string) ToolInfo {
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolInfo{Error: fmt.Sprintf("%s not found", bin)}
	}

	var out bytes.Buffer
	res := p.runner.Run(ctx, &out, path, versionFlag)
	if !res.IsSuccess() {
		return ToolInfo{Path: path, Error: res.Error()}
	}
	return ToolInfo{Available: true, Path: path, Version: firstLine(out.String())}
}

func checkFont(path string) ToolInfo {
	data, err := os.ReadFile(path)
	if err != nil {
		return ToolInfo{Path: path, Error: err.Error()}
	}
	if _, err := opentype.Parse(data); err != nil {
		return ToolInfo{Path: path, Error: fmt.Sprintf("unparsable font: %v", err)}
	}
	return ToolInfo{Available: true, Path: path}
}

func firstLine(s string) string {
	sc := bufio.NewScanner(strings.NewReader(s))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}

// CachedDoctor caches probe results with a TTL so status requests do not
// spawn subprocesses every time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness. A failed probe
// falls back to the stale cache when there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.warn("doctor probe failed", "error", err)
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}

	if !caps.AllOK() {
		d.warn("missing render dependencies",
			"can_download", caps.CanDownload,
			"can_decode", caps.CanDecode,
			"can_caption", caps.CanCaption,
		)
	}
	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}

func (d *CachedDoctor) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
