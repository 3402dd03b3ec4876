package browser

import (
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

// Session owns one browser process for the duration of a run.
// Close is safe to call more than once and from a signal handler.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig

	mu     sync.Mutex
	tabs   []*rodTab
	closed bool
}

// Launch starts a browser configured by cfg and connects to it.
func Launch(cfg config.BrowserConfig) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewPipelineError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &Session{browser: b, launcher: l, cfg: cfg}, nil
}

// NewTab opens a tab with stealth evasions and request blocking installed.
// Both take effect only for navigations issued after this call returns.
func (s *Session) NewTab() (Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, models.NewPipelineError(models.ErrCodeBrowserCrash, "browser session is closed", nil)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeBrowserCrash,
			"failed to open tab",
			err,
		)
	}

	if s.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	t := &rodTab{
		rodSurface: rodSurface{page: page},
		router:     setupHijack(page, s.cfg.BlockedResourceTypes, s.cfg.BlockTrackers),
	}
	s.tabs = append(s.tabs, t)
	return t, nil
}

// Close stops every tab's request router and kills the browser process.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	slog.Info("browser shutting down", "tabs", len(s.tabs))
	for _, t := range s.tabs {
		if t.router != nil {
			_ = t.router.Stop()
		}
	}
	if err := s.browser.Close(); err != nil {
		slog.Warn("browser close failed, killing process", "error", err)
	}
	s.launcher.Kill()
	if s.cfg.UserDataDir == "" {
		s.launcher.Cleanup()
	}
	slog.Info("browser shutdown complete")
}
