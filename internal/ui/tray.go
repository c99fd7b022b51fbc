// Package ui runs the optional system tray menu.
package ui

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/gifscribe/gifscribe-agent/internal/pipeline"
)

type Tray struct {
	addr   string
	logger *slog.Logger

	mu         sync.Mutex
	ready      bool
	statusItem *systray.MenuItem
	lastItem   *systray.MenuItem
	pending    *pipeline.Summary

	onQuit func()
}

type TrayConfig struct {
	// Addr is shown in the menu so users know where the page lives.
	Addr   string
	Logger *slog.Logger
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		addr:   cfg.Addr,
		logger: cfg.Logger,
		onQuit: cfg.OnQuit,
	}
}

// Run blocks until the tray exits. Must be called from the main goroutine
// on macOS.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("gifscribe")
	systray.SetTooltip("gifscribe agent on " + t.addr)

	addrItem := systray.AddMenuItem("http://"+t.addr, "Agent address")
	addrItem.Disable()

	systray.AddSeparator()

	statusItem := systray.AddMenuItem("Status: Idle", "Last render status")
	statusItem.Disable()
	lastItem := systray.AddMenuItem("No renders yet", "Last rendered video")
	lastItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit gifscribe")

	t.mu.Lock()
	t.statusItem, t.lastItem = statusItem, lastItem
	t.ready = true
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	if pending != nil {
		t.Update(*pending)
	}

	go func() {
		<-quitItem.ClickedCh
		t.logger.Info("quit requested from tray")
		if t.onQuit != nil {
			t.onQuit()
		}
		systray.Quit()
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// Update shows the outcome of a finished render. It is safe to call before
// the tray is ready; the latest summary is applied once it is.
func (t *Tray) Update(s pipeline.Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ready {
		t.pending = &s
		return
	}
	t.statusItem.SetTitle(statusTitle(s))
	t.lastItem.SetTitle(lastTitle(s))
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(s pipeline.Summary) string {
	if s.Failed {
		return "Status: Last render failed"
	}
	switch n := len(s.Paths); n {
	case 0:
		return "Status: Idle"
	case 1:
		return "Status: 1 GIF ready"
	default:
		return fmt.Sprintf("Status: %d GIFs ready", n)
	}
}

func lastTitle(s pipeline.Summary) string {
	label := s.VideoID
	if label == "" {
		label = s.SourceURL
	}
	if len(label) > 40 {
		label = label[:37] + "..."
	}
	return fmt.Sprintf("%s (%s)", label, s.Elapsed.Round(time.Second))
}
