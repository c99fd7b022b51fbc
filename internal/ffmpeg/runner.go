// Package ffmpeg runs the ffmpeg and ffprobe binaries as subprocesses and
// decodes video spans into raw RGBA frames.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// RunResult is the structured outcome of executing a media subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 && r.Err == nil }

// Error describes a failed run, including the stderr tail.
func (r RunResult) Error() string {
	msg := fmt.Sprintf("exit %d", r.ExitCode)
	if r.Err != nil {
		msg = r.Err.Error()
	}
	if tail := strings.TrimSpace(r.StderrTail); tail != "" {
		msg += ": " + truncate(tail, 512)
	}
	return msg
}

// Runner executes external media tools with bounded stderr capture.
type Runner struct {
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run executes bin with args, streaming stdout to the given writer (or
// discarding it when nil).
func (r *Runner) Run(ctx context.Context, stdout io.Writer, bin string, args ...string) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout == nil {
		stdout = io.Discard
	}
	cmd.Stdout = stdout

	err := cmd.Run()
	result := finish(err, stderrBuf.String(), time.Since(start))
	r.log(bin, result)
	return result
}

func (r *Runner) log(bin string, result RunResult) {
	if r.logger == nil {
		return
	}
	if !result.IsSuccess() {
		r.logger.Warn("media command failed",
			"bin", bin,
			"exit_code", result.ExitCode,
			"duration_ms", result.Duration.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		return
	}
	r.logger.Debug("media command succeeded",
		"bin", bin,
		"duration_ms", result.Duration.Milliseconds(),
	)
}

func finish(err error, stderrTail string, elapsed time.Duration) RunResult {
	result := RunResult{StderrTail: stderrTail, Duration: elapsed}
	if err == nil {
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode == -1 {
			// killed by a signal, usually context cancellation
			result.Err = err
		}
	} else {
		result.ExitCode = -1
		result.Err = err
	}
	return result
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
