// Package browsertest provides scripted in-memory implementations of
// browser.Surface and browser.Tab for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/models"
	"github.com/ysmood/gson"
)

// ScriptFunc answers one Eval call.
type ScriptFunc func(args []any) (any, error)

// Surface is a fake document. Selectors listed in Present exist; those in
// Visible also count as visible. Eval dispatches on the exact JS source.
// Waits never block: a missing selector fails immediately with
// context.DeadlineExceeded.
type Surface struct {
	mu sync.Mutex

	Present map[string]bool
	Visible map[string]bool
	Scripts map[string]ScriptFunc

	OnClick func(selector string) error
	OnHover func(selector string) error
	OnPress func(key input.Key) error

	calls []string
	typed map[string]string
}

// NewSurface returns an empty Surface.
func NewSurface() *Surface {
	return &Surface{
		Present: map[string]bool{},
		Visible: map[string]bool{},
		Scripts: map[string]ScriptFunc{},
		typed:   map[string]string{},
	}
}

func (s *Surface) record(format string, a ...any) {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf(format, a...))
	s.mu.Unlock()
}

// Calls returns the recorded interactions in order, e.g. "click:#submit".
func (s *Surface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Typed returns the text typed into selector.
func (s *Surface) Typed(selector string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed[selector]
}

// Set marks selector as present and visible.
func (s *Surface) Set(selector string) {
	s.mu.Lock()
	s.Present[selector] = true
	s.Visible[selector] = true
	s.mu.Unlock()
}

// Script registers fn for the given JS source.
func (s *Surface) Script(js string, fn ScriptFunc) {
	s.mu.Lock()
	s.Scripts[js] = fn
	s.mu.Unlock()
}

func (s *Surface) missing(selector string) error {
	return fmt.Errorf("wait for %q: %w", selector, context.DeadlineExceeded)
}

func (s *Surface) WaitExists(ctx context.Context, selector string) error {
	s.record("exists:%s", selector)
	s.mu.Lock()
	ok := s.Present[selector] || s.Visible[selector]
	s.mu.Unlock()
	if !ok {
		return s.missing(selector)
	}
	return ctx.Err()
}

func (s *Surface) WaitVisible(ctx context.Context, selector string) error {
	s.record("visible:%s", selector)
	s.mu.Lock()
	ok := s.Visible[selector]
	s.mu.Unlock()
	if !ok {
		return s.missing(selector)
	}
	return ctx.Err()
}

func (s *Surface) Eval(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.JSON{}, err
	}
	s.mu.Lock()
	fn, ok := s.Scripts[js]
	s.mu.Unlock()
	if !ok {
		return gson.JSON{}, fmt.Errorf("browsertest: no script registered for %q", js)
	}
	v, err := fn(args)
	if err != nil {
		return gson.JSON{}, err
	}
	return gson.New(v), nil
}

func (s *Surface) Click(ctx context.Context, selector string) error {
	s.record("click:%s", selector)
	if s.OnClick != nil {
		return s.OnClick(selector)
	}
	s.mu.Lock()
	ok := s.Present[selector] || s.Visible[selector]
	s.mu.Unlock()
	if !ok {
		return s.missing(selector)
	}
	return nil
}

func (s *Surface) Hover(ctx context.Context, selector string) error {
	s.record("hover:%s", selector)
	if s.OnHover != nil {
		return s.OnHover(selector)
	}
	return nil
}

func (s *Surface) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	s.record("type:%s", selector)
	s.mu.Lock()
	ok := s.Present[selector] || s.Visible[selector]
	if ok {
		s.typed[selector] += text
	}
	s.mu.Unlock()
	if !ok {
		return s.missing(selector)
	}
	return nil
}

func (s *Surface) Press(ctx context.Context, key input.Key) error {
	s.record("press:%s", key.Info().Key)
	if s.OnPress != nil {
		return s.OnPress(key)
	}
	return nil
}

// Tab is a fake top-level tab.
type Tab struct {
	*Surface

	// CurrentURL is returned by URL and replaced by Navigate.
	CurrentURL string

	// OnNavigate, when set, runs instead of the default URL replacement.
	OnNavigate func(url string) error

	// NavigationErr is returned by the func ExpectNavigation hands out.
	NavigationErr error

	// Frames maps iframe selectors to their content.
	Frames map[string]*Surface

	// FrameErrs maps iframe selectors to a forced Frame failure.
	FrameErrs map[string]error

	Shot []byte
	Doc  string

	mu      sync.Mutex
	console chan browser.ConsoleMessage
}

// NewTab returns a Tab at about:blank.
func NewTab() *Tab {
	return &Tab{
		Surface:    NewSurface(),
		CurrentURL: "about:blank",
		Frames:     map[string]*Surface{},
		FrameErrs:  map[string]error{},
	}
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	t.record("navigate:%s", url)
	if t.OnNavigate != nil {
		return t.OnNavigate(url)
	}
	t.mu.Lock()
	t.CurrentURL = url
	t.mu.Unlock()
	return nil
}

func (t *Tab) URL(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CurrentURL, nil
}

// SetURL replaces the current URL, as a redirect would.
func (t *Tab) SetURL(url string) {
	t.mu.Lock()
	t.CurrentURL = url
	t.mu.Unlock()
}

func (t *Tab) ExpectNavigation(ctx context.Context, timeout time.Duration) func() error {
	return func() error { return t.NavigationErr }
}

func (t *Tab) Frame(ctx context.Context, selector string) (browser.Surface, error) {
	t.record("frame:%s", selector)
	if err, ok := t.FrameErrs[selector]; ok {
		return nil, err
	}
	f, ok := t.Frames[selector]
	if !ok {
		return nil, models.NewPipelineError(models.ErrCodeIframeNotFound, "no iframe matches "+selector, nil)
	}
	return f, nil
}

func (t *Tab) Console(ctx context.Context, sentinel string, buffer int) (<-chan browser.ConsoleMessage, error) {
	ch := make(chan browser.ConsoleMessage, buffer)
	t.mu.Lock()
	t.console = ch
	t.mu.Unlock()
	go func() {
		<-ctx.Done()
		t.mu.Lock()
		close(ch)
		t.console = nil
		t.mu.Unlock()
	}()
	return ch, nil
}

// Emit delivers msg to the current console subscriber, dropping it when
// there is none or its buffer is full. It reports whether msg was delivered.
func (t *Tab) Emit(msg browser.ConsoleMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.console == nil {
		return false
	}
	select {
	case t.console <- msg:
		return true
	default:
		return false
	}
}

func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	return t.Shot, nil
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	return t.Doc, nil
}

var (
	_ browser.Surface = (*Surface)(nil)
	_ browser.Tab     = (*Tab)(nil)
)
