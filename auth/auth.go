// Package auth drives the target site's login form and classifies the
// outcome from the URL the browser lands on.
package auth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

// dismissJS clicks the first visible button whose text contains one of the
// given words, trying words in order. Buttons inside an open dialog are
// preferred over the rest of the page. Returns the clicked text or "".
const dismissJS = `(words) => {
	const visible = (el) => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
	const dialogs = Array.from(document.querySelectorAll('[role="dialog"], [aria-modal="true"], .modal'))
		.filter(visible);
	const scope = dialogs.length ? dialogs : [document];
	const buttons = scope
		.flatMap((root) => Array.from(root.querySelectorAll('button, [role="button"]')))
		.filter(visible);
	for (const word of words) {
		const w = word.toLowerCase();
		const hit = buttons.find((b) => (b.textContent || '').trim().toLowerCase().includes(w));
		if (hit) {
			const text = (hit.textContent || '').trim();
			hit.click();
			return text;
		}
	}
	return '';
}`

// Authenticator logs a tab into the target site.
type Authenticator struct {
	site      config.SiteConfig
	timeouts  config.TimeoutConfig
	keystroke time.Duration
}

// New creates an Authenticator.
func New(site config.SiteConfig, timeouts config.TimeoutConfig, pacing config.PacingConfig) *Authenticator {
	return &Authenticator{site: site, timeouts: timeouts, keystroke: pacing.KeystrokeDelay}
}

// Login fills and submits the login form on tab.
//
// Steps:
//
//  1. Navigate        – load the login URL; a timeout is tolerated
//  2. Form wait       – bounded wait for the email input to be visible
//  3. Type            – email and password, one character at a time
//  4. Submit          – arm the navigation listener, then click submit
//  5. Classify        – decide from the resulting URL alone
//  6. Interstitial    – best-effort dismissal of a post-login modal
func (a *Authenticator) Login(ctx context.Context, tab browser.Tab, creds models.Credentials) error {
	if creds.Email == "" || creds.Password == "" {
		return models.NewPipelineError(models.ErrCodeInvalidInput, "email and password are required", nil)
	}

	// ── 1. Navigate ───────────────────────────────────────────────────
	navCtx, cancel := context.WithTimeout(ctx, a.timeouts.Navigation)
	err := tab.Navigate(navCtx, a.site.LoginURL())
	cancel()
	if err != nil {
		if !models.HasCode(err, models.ErrCodeTimeout) {
			return err
		}
		slog.Warn("login page navigation timed out, checking form anyway", "error", err)
	}

	// ── 2. Form wait ──────────────────────────────────────────────────
	formCtx, cancel := context.WithTimeout(ctx, a.timeouts.LoginForm)
	err = tab.WaitVisible(formCtx, a.site.EmailSelector)
	cancel()
	if err != nil {
		return models.NewPipelineError(models.ErrCodeNavigation, "login form did not render", err)
	}

	// ── 3. Type ───────────────────────────────────────────────────────
	if err := tab.Type(ctx, a.site.EmailSelector, creds.Email, a.keystroke); err != nil {
		return models.NewPipelineError(models.ErrCodeNavigation, "cannot type email", err)
	}
	if err := tab.Type(ctx, a.site.PasswordSelector, creds.Password, a.keystroke); err != nil {
		return models.NewPipelineError(models.ErrCodeNavigation, "cannot type password", err)
	}

	// ── 4. Submit ─────────────────────────────────────────────────────
	waitNav := tab.ExpectNavigation(ctx, a.timeouts.PostSubmit)
	if err := tab.Click(ctx, a.site.SubmitSelector); err != nil {
		slog.Debug("submit button click failed, pressing Enter", "error", err)
		if err := tab.Press(ctx, input.Enter); err != nil {
			return models.NewPipelineError(models.ErrCodeNavigation, "cannot submit login form", err)
		}
	}
	if err := waitNav(); err != nil {
		// Client-side routing may land on the dashboard without a load event.
		slog.Debug("no navigation after login submit, re-checking URL", "error", err)
	}

	// ── 5. Classify ───────────────────────────────────────────────────
	current, err := tab.URL(ctx)
	if err != nil {
		return models.NewPipelineError(models.ErrCodeNavigation, "cannot read URL after login", err)
	}
	if err := a.classify(current); err != nil {
		return err
	}
	slog.Info("login succeeded", "url", current)

	// ── 6. Interstitial ───────────────────────────────────────────────
	a.dismissInterstitial(ctx, tab)
	return nil
}

// IsLoggedIn reports whether tab currently sits on a post-login page.
// It only inspects the URL.
func (a *Authenticator) IsLoggedIn(ctx context.Context, tab browser.Tab) bool {
	current, err := tab.URL(ctx)
	if err != nil {
		return false
	}
	return a.classify(current) == nil
}

// classify maps the landing URL to the login outcome.
func (a *Authenticator) classify(raw string) error {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	if path == "" {
		path = "/"
	}

	if a.site.LoginPath != "" && strings.HasPrefix(path, a.site.LoginPath) {
		return models.NewPipelineError(models.ErrCodeInvalidCredentials, "still on the login page after submit", nil)
	}
	for _, prefix := range a.site.PostLoginPrefixes {
		if strings.HasPrefix(path, prefix) {
			return nil
		}
	}
	return models.NewPipelineError(models.ErrCodeUnexpectedRedirect, "landed on unexpected page "+raw, nil)
}

// dismissInterstitial closes an optional survey or onboarding dialog.
// Failure is logged only; later steps tolerate a lingering modal.
func (a *Authenticator) dismissInterstitial(ctx context.Context, tab browser.Tab) {
	evalCtx, cancel := context.WithTimeout(ctx, a.timeouts.Selector)
	defer cancel()

	res, err := tab.Eval(evalCtx, dismissJS, a.site.DismissWords)
	if err == nil {
		if text, _ := res.Val().(string); text != "" {
			slog.Info("dismissed interstitial", "button", text)
			return
		}
	} else {
		slog.Debug("interstitial lookup failed", "error", err)
	}

	if err := tab.Press(evalCtx, input.Escape); err != nil {
		slog.Warn("interstitial dismissal failed", "error", err)
		return
	}
	slog.Debug("no dismiss button matched, sent Escape")
}
