// Package navigator drives the question bank UI: the embedded iframe, the
// exam picker widget and the in-exam question menu.
package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
	"github.com/ysmood/gson"
)

// State is the Navigator's position in the UI flow.
type State int

const (
	Unauthenticated State = iota
	OnBancoPage
	IframeLocated
	PickerOpen
	ExamSelected
	ExamOpen
	QuestionAt
)

var stateNames = [...]string{
	Unauthenticated: "Unauthenticated",
	OnBancoPage:     "OnBancoPage",
	IframeLocated:   "IframeLocated",
	PickerOpen:      "PickerOpen",
	ExamSelected:    "ExamSelected",
	ExamOpen:        "ExamOpen",
	QuestionAt:      "QuestionAt",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// ordinalPrefix matches the "N - " prefix of an exam label.
var ordinalPrefix = regexp.MustCompile(`^\s*(\d+)\s*-\s*`)

// Navigator is bound to one tab and is not safe for concurrent use.
type Navigator struct {
	tab           browser.Tab
	site          config.SiteConfig
	timeouts      config.TimeoutConfig
	pacing        config.PacingConfig
	fallbackTotal int
	pollEvery     time.Duration

	state State
	frame browser.Surface
}

// New creates a Navigator in the Unauthenticated state.
func New(tab browser.Tab, cfg *config.Config) *Navigator {
	return &Navigator{
		tab:           tab,
		site:          cfg.Site,
		timeouts:      cfg.Timeouts,
		pacing:        cfg.Pacing,
		fallbackTotal: cfg.Extraction.FallbackTotal,
		pollEvery:     150 * time.Millisecond,
	}
}

// State returns the current state.
func (n *Navigator) State() State { return n.state }

func (n *Navigator) transition(to State) {
	if to == n.state {
		return
	}
	slog.Debug("navigator transition", "from", n.state, "to", to)
	n.state = to
}

// require fails when an operation is attempted before the flow reached min.
func (n *Navigator) require(min State, op string) error {
	if n.state < min {
		return models.NewPipelineError(
			models.ErrCodeNavigation,
			fmt.Sprintf("%s requires state %s, navigator is in %s", op, min, n.state),
			nil,
		)
	}
	return nil
}

// NavigateToBanco loads the question bank page directly by URL and verifies
// arrival. A navigation timeout is tolerated when the URL still matches.
func (n *Navigator) NavigateToBanco(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, n.timeouts.Navigation)
	err := n.tab.Navigate(navCtx, n.site.BancoURL())
	cancel()
	if err != nil {
		if !models.HasCode(err, models.ErrCodeTimeout) {
			return err
		}
		slog.Warn("banco navigation timed out, checking URL", "error", err)
	}

	current, err := n.tab.URL(ctx)
	if err != nil {
		return models.NewPipelineError(models.ErrCodeNavigation, "cannot read URL", err)
	}
	if !strings.Contains(current, n.site.BancoPath) {
		return models.NewPipelineError(
			models.ErrCodeNavigation,
			fmt.Sprintf("expected %s, landed on %s", n.site.BancoPath, current),
			nil,
		)
	}

	n.frame = nil
	n.state = OnBancoPage
	slog.Info("on question bank page", "url", current)
	return nil
}

// ListProvas returns the exams offered by the picker inside the iframe.
//
// Steps:
//
//  1. Locate iframe   – distinct errors for "absent" and "no content"
//  2. Zoom out        – virtualized lists render more rows
//  3. Scroll          – bounded progressive steps trigger lazy loading
//  4. Open picker     – synthetic pointer events on the widget
//  5. Read options    – DOM order, 0-based index
func (n *Navigator) ListProvas(ctx context.Context) ([]models.ExamOption, error) {
	if err := n.require(OnBancoPage, "list exams"); err != nil {
		return nil, err
	}

	// ── 1. Locate iframe ──────────────────────────────────────────────
	frame, err := n.locateFrame(ctx)
	if err != nil {
		return nil, err
	}

	// ── 2. Zoom out ───────────────────────────────────────────────────
	if _, err := frame.Eval(ctx, zoomJS, n.pacing.FrameZoom); err != nil {
		slog.Debug("frame zoom failed, continuing at 100%", "error", err)
	}

	// ── 3. Scroll ─────────────────────────────────────────────────────
	steps := n.pacing.ScrollSteps
	for i := 1; i <= steps; i++ {
		if _, err := frame.Eval(ctx, scrollStepJS, i, steps); err != nil {
			slog.Debug("frame scroll step failed", "step", i, "error", err)
		}
		if err := browser.Sleep(ctx, n.pacing.ScrollStepDelay); err != nil {
			return nil, err
		}
	}

	// ── 4. Open picker ────────────────────────────────────────────────
	if err := n.openPicker(ctx, frame); err != nil {
		return nil, err
	}

	// ── 5. Read options ───────────────────────────────────────────────
	raw, err := frame.Eval(ctx, listOptionsJS, optionSelector)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeOptionsNotFound, "cannot read picker options", err)
	}
	options := parseOptions(raw)
	if len(options) == 0 {
		return nil, models.NewPipelineError(models.ErrCodeNoExamsFound, "picker lists no exams", nil)
	}

	n.transition(PickerOpen)
	slog.Info("exam picker listed", "count", len(options))
	return options, nil
}

// SelectProva picks an exam by 0-based index, or by the "N - " ordinal in
// label when index is negative. The selection is verified by reading back
// the picker value; an unconfirmed selection is retried once through the
// keyboard-highlighted option before failing. Returns the confirmed value.
func (n *Navigator) SelectProva(ctx context.Context, label string, index int) (string, error) {
	if err := n.require(PickerOpen, "select exam"); err != nil {
		return "", err
	}
	ordinal, err := resolveOrdinal(label, index)
	if err != nil {
		return "", err
	}

	// The handle from ListProvas may be stale.
	frame, err := n.locateFrame(ctx)
	if err != nil {
		return "", err
	}
	if n.count(ctx, frame, optionSelector) == 0 {
		if err := n.openPicker(ctx, frame); err != nil {
			return "", err
		}
	}

	strategy := n.clickOption(ctx, frame, ordinal)
	slog.Debug("exam option click", "ordinal", ordinal, "strategy", strategy)

	value, ok := n.selectedValue(ctx, frame)
	if !ok {
		slog.Warn("exam selection not confirmed, retrying via highlighted option", "ordinal", ordinal)
		if err := n.openPicker(ctx, frame); err == nil {
			if err := n.highlight(ctx, frame, ordinal); err != nil {
				slog.Debug("highlight failed", "error", err)
			}
			n.evalTruthy(ctx, frame, clickFirstJS, focusedOptionSelector)
		}
		value, ok = n.selectedValue(ctx, frame)
	}
	if !ok {
		return "", models.NewPipelineError(
			models.ErrCodeSelectionFailed,
			fmt.Sprintf("exam %d could not be selected", ordinal),
			nil,
		)
	}

	if name := ordinalPrefix.ReplaceAllString(label, ""); name != "" && !strings.Contains(value, name) {
		slog.Warn("selected exam differs from requested label", "requested", label, "selected", value)
	}
	n.transition(ExamSelected)
	slog.Info("exam selected", "ordinal", ordinal, "value", value)
	return value, nil
}

// OpenProva clicks the open-exam button inside the iframe and waits for the
// question menu to appear. The exam opens in place; the outer page does not
// reload.
func (n *Navigator) OpenProva(ctx context.Context) error {
	if err := n.require(ExamSelected, "open exam"); err != nil {
		return err
	}
	frame, err := n.locateFrame(ctx)
	if err != nil {
		return err
	}

	if _, err := n.poll(ctx, frame, n.timeouts.Selector, clickButtonByTextJS, n.site.OpenExamText); err != nil {
		return models.NewPipelineError(
			models.ErrCodeOpenExamFailed,
			fmt.Sprintf("no %q button", n.site.OpenExamText),
			err,
		)
	}

	settleCtx, cancel := context.WithTimeout(ctx, n.pacing.OpenExamSettle)
	err = frame.WaitExists(settleCtx, questionTriggerSelector)
	cancel()
	if err != nil {
		slog.Warn("question menu not detected after opening exam", "error", err)
	}

	n.transition(ExamOpen)
	return nil
}

// TotalQuestions counts the entries of the question menu. It never fails:
// when the count cannot be read it returns the configured upper bound and
// leaves the stopping decision to the extractor.
func (n *Navigator) TotalQuestions(ctx context.Context) int {
	if err := n.require(ExamOpen, "count questions"); err != nil {
		slog.Warn("question count unavailable", "error", err)
		return n.fallbackTotal
	}

	var total int
	err := n.inFrame(ctx, func(frame browser.Surface) error {
		if err := n.revealMenu(ctx, frame); err != nil {
			return err
		}
		res, err := n.poll(ctx, frame, n.pacing.QuestionSettle, countJS, questionButtonSelector)
		if err != nil {
			return err
		}
		if res.Int() <= 0 {
			return fmt.Errorf("question menu is empty")
		}
		total = res.Int()
		return nil
	})
	if err != nil {
		slog.Warn("question count unreadable, using fallback total", "fallback", n.fallbackTotal, "error", err)
		return n.fallbackTotal
	}
	slog.Info("question count read", "total", total)
	return total
}

// NavigateToQuestion reveals the question menu by hovering and clicks the
// entry labelled q (zero-padded to two digits, or plain).
func (n *Navigator) NavigateToQuestion(ctx context.Context, q int) error {
	if err := n.require(ExamOpen, "navigate to question"); err != nil {
		return err
	}
	if q < 1 {
		return models.NewPipelineError(models.ErrCodeInvalidInput, fmt.Sprintf("question %d out of range", q), nil)
	}

	padded := fmt.Sprintf("%02d", q)
	err := n.inFrame(ctx, func(frame browser.Surface) error {
		if err := n.revealMenu(ctx, frame); err != nil {
			return models.NewPipelineError(models.ErrCodeNavigation, "question menu trigger not found", err)
		}
		if _, err := n.poll(ctx, frame, n.pacing.QuestionSettle, clickQuestionJS, questionButtonSelector, padded, strconv.Itoa(q)); err != nil {
			return models.NewPipelineError(models.ErrCodeNavigation, "question "+padded+" not in menu", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	n.transition(QuestionAt)
	return nil
}

// inFrame runs fn against the recorded iframe. The embed can be torn down
// and reattached while an exam is open, so on failure the iframe is
// resolved again and fn retried once.
func (n *Navigator) inFrame(ctx context.Context, fn func(frame browser.Surface) error) error {
	if n.frame != nil {
		err := fn(n.frame)
		if err == nil || ctx.Err() != nil {
			return err
		}
		slog.Debug("iframe operation failed, re-acquiring iframe", "error", err)
	}
	frame, err := n.locateFrame(ctx)
	if err != nil {
		return err
	}
	return fn(frame)
}

// revealMenu hovers the trigger that expands the question menu.
func (n *Navigator) revealMenu(ctx context.Context, frame browser.Surface) error {
	hoverCtx, cancel := context.WithTimeout(ctx, n.timeouts.Selector)
	defer cancel()
	return frame.Hover(hoverCtx, questionTriggerSelector)
}

// locateFrame resolves the iframe afresh and records the handle.
func (n *Navigator) locateFrame(ctx context.Context) (browser.Surface, error) {
	frameCtx, cancel := context.WithTimeout(ctx, n.timeouts.Selector)
	defer cancel()

	frame, err := n.tab.Frame(frameCtx, n.site.IframeSelector)
	if err != nil {
		return nil, err
	}
	n.frame = frame
	if n.state < IframeLocated {
		n.transition(IframeLocated)
	}
	return frame, nil
}

// openPicker waits for the widget's hidden input (existence, not
// visibility), dispatches the opening pointer sequence and waits for options.
func (n *Navigator) openPicker(ctx context.Context, frame browser.Surface) error {
	waitCtx, cancel := context.WithTimeout(ctx, n.timeouts.Selector)
	defer cancel()

	if err := frame.WaitExists(waitCtx, dropdownInputSelector); err != nil {
		return models.NewPipelineError(models.ErrCodeDropdownNotFound, "exam picker input not found", err)
	}

	res, err := frame.Eval(waitCtx, openDropdownJS, dropdownInputSelector, controlSelector, indicatorSelector)
	target, _ := res.Val().(string)
	if err != nil || target == "" {
		return models.NewPipelineError(models.ErrCodeDropdownNotFound, "exam picker control not found", err)
	}
	slog.Debug("exam picker opened", "via", target)

	if err := frame.WaitExists(waitCtx, optionSelector); err != nil {
		return models.NewPipelineError(models.ErrCodeOptionsNotFound, "exam picker rendered no options", err)
	}
	return nil
}

// clickOption tries the option id, then its DOM position, then the
// keyboard. It returns the strategy that reported success, or "".
func (n *Navigator) clickOption(ctx context.Context, frame browser.Surface, ordinal int) string {
	idx := ordinal - 1
	if n.evalTruthy(ctx, frame, clickOptionByIDJS, optionSelector, idx) {
		return "id"
	}
	if n.evalTruthy(ctx, frame, clickOptionAtJS, optionSelector, idx) {
		return "position"
	}
	if err := n.highlight(ctx, frame, ordinal); err != nil {
		slog.Debug("keyboard selection failed", "error", err)
		return ""
	}
	if err := frame.Press(ctx, input.Enter); err != nil {
		slog.Debug("keyboard selection failed", "error", err)
		return ""
	}
	return "keyboard"
}

// highlight focuses the picker input and moves the keyboard highlight from
// the first option down to ordinal.
func (n *Navigator) highlight(ctx context.Context, frame browser.Surface, ordinal int) error {
	if !n.evalTruthy(ctx, frame, focusJS, dropdownInputSelector) {
		return fmt.Errorf("picker input cannot be focused")
	}
	for i := 1; i < ordinal; i++ {
		if err := frame.Press(ctx, input.ArrowDown); err != nil {
			return err
		}
	}
	return nil
}

// selectedValue polls the picker value for up to one question-settle period.
func (n *Navigator) selectedValue(ctx context.Context, frame browser.Surface) (string, bool) {
	res, err := n.poll(ctx, frame, n.pacing.QuestionSettle, selectedValueJS, singleValueSelector, placeholderSelector)
	if err != nil {
		return "", false
	}
	v, _ := res.Val().(string)
	return v, v != ""
}

func (n *Navigator) count(ctx context.Context, frame browser.Surface, selector string) int {
	res, err := frame.Eval(ctx, countJS, selector)
	if err != nil {
		return 0
	}
	return res.Int()
}

func (n *Navigator) evalTruthy(ctx context.Context, frame browser.Surface, js string, args ...any) bool {
	res, err := frame.Eval(ctx, js, args...)
	return err == nil && truthy(res)
}

// poll evaluates js until it returns a truthy value or timeout elapses.
// It replaces fixed settle sleeps wherever the UI exposes a condition.
func (n *Navigator) poll(ctx context.Context, s browser.Surface, timeout time.Duration, js string, args ...any) (gson.JSON, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		res, err := s.Eval(pollCtx, js, args...)
		if err == nil && truthy(res) {
			return res, nil
		}
		if err != nil {
			lastErr = err
		}
		if err := browser.Sleep(pollCtx, n.pollEvery); err != nil {
			if lastErr != nil {
				return gson.JSON{}, lastErr
			}
			return gson.JSON{}, err
		}
	}
}

// truthy follows JS truthiness for the values the scripts return.
func truthy(j gson.JSON) bool {
	switch v := j.Val().(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(j.Val())
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return j.Num() != 0
	}
	return true
}

// resolveOrdinal returns the 1-based exam ordinal.
func resolveOrdinal(label string, index int) (int, error) {
	if index >= 0 {
		return index + 1, nil
	}
	if m := ordinalPrefix.FindStringSubmatch(label); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return v, nil
		}
	}
	return 0, models.NewPipelineError(
		models.ErrCodeInvalidInput,
		fmt.Sprintf("no index given and label %q has no \"N - \" prefix", label),
		nil,
	)
}

func parseOptions(raw gson.JSON) []models.ExamOption {
	items := raw.Arr()
	options := make([]models.ExamOption, 0, len(items))
	for i, item := range items {
		label, _ := item.Get("label").Val().(string)
		options = append(options, models.ExamOption{Index: i, Label: label})
	}
	return options
}
