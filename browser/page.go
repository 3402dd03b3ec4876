package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/provas/models"
	"github.com/ysmood/gson"
)

// rodSurface implements Surface over a rod page or an iframe clone of one.
type rodSurface struct {
	page *rod.Page
}

func (s rodSurface) WaitExists(ctx context.Context, selector string) error {
	if _, err := s.page.Context(ctx).Element(selector); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (s rodSurface) WaitVisible(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait for %q to be visible: %w", selector, err)
	}
	return nil
}

func (s rodSurface) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (s rodSurface) Click(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s rodSurface) Hover(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Hover()
}

func (s rodSurface) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	p := s.page.Context(ctx)
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus %q: %w", selector, err)
	}
	for _, r := range text {
		if err := p.InsertText(string(r)); err != nil {
			return fmt.Errorf("type into %q: %w", selector, err)
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// Press dispatches key down and up on the ctx-bound page. rod's Keyboard is
// tied to the page it was created with and would not observe ctx.
func (s rodSurface) Press(ctx context.Context, key input.Key) error {
	return pressKey(s.page.Context(ctx), key)
}

func pressKey(c proto.Client, key input.Key) error {
	if err := key.Encode(proto.InputDispatchKeyEventTypeKeyDown, 0).Call(c); err != nil {
		return fmt.Errorf("press %s: %w", key.Info().Key, err)
	}
	if err := key.Encode(proto.InputDispatchKeyEventTypeKeyUp, 0).Call(c); err != nil {
		return fmt.Errorf("release %s: %w", key.Info().Key, err)
	}
	return nil
}

// rodTab is the top-level page. It embeds the surface methods.
type rodTab struct {
	rodSurface
	router *rod.HijackRouter
}

func (t *rodTab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return categorizeError(err, "navigation to "+url+" failed")
	}
	if err := p.WaitLoad(); err != nil {
		return categorizeError(err, "page load of "+url+" did not complete")
	}
	return nil
}

func (t *rodTab) URL(ctx context.Context) (string, error) {
	info, err := t.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (t *rodTab) ExpectNavigation(ctx context.Context, timeout time.Duration) func() error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	wait := t.page.Context(navCtx).WaitNavigation(proto.PageLifecycleEventNameLoad)
	return func() error {
		defer cancel()
		wait()
		if err := navCtx.Err(); err != nil {
			return categorizeError(err, "no navigation observed")
		}
		return nil
	}
}

func (t *rodTab) Frame(ctx context.Context, selector string) (Surface, error) {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeIframeNotFound,
			fmt.Sprintf("no iframe matches %q", selector),
			err,
		)
	}
	frame, err := el.Frame()
	if err == nil && frame.FrameID == "" {
		err = errors.New("iframe has no frame id")
	}
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeIframeUnavailable,
			fmt.Sprintf("iframe %q has no content", selector),
			err,
		)
	}
	return rodSurface{page: frame}, nil
}

func (t *rodTab) Screenshot(ctx context.Context) ([]byte, error) {
	return t.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (t *rodTab) HTML(ctx context.Context) (string, error) {
	return t.page.Context(ctx).HTML()
}

// Sleep pauses for d or until ctx ends. It is the settle delay used when
// the UI offers no better completion signal.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// categorizeError wraps raw errors into PipelineErrors so callers can tell
// a timeout from a navigation failure.
func categorizeError(err error, msg string) *models.PipelineError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewPipelineError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewPipelineError(models.ErrCodeTimeout, "operation canceled", err)
	default:
		return models.NewPipelineError(models.ErrCodeNavigation, msg, err)
	}
}
