// Package extractor captures question payloads from the target page's
// console output while the navigator pages through an exam.
package extractor

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
)

// Reasons the per-question loop ended.
const (
	StopRangeExhausted = "range_exhausted"
	StopCircuitBreaker = "circuit_breaker"
	StopCanceled       = "canceled"
)

// Pager moves the UI to a question. navigator.Navigator implements it.
type Pager interface {
	TotalQuestions(ctx context.Context) int
	NavigateToQuestion(ctx context.Context, q int) error
}

// Listener is the consumer side of a console subscription. Obtaining one
// is the only way to call ExtractProva, so the subscription necessarily
// exists before the first question is shown.
type Listener struct {
	feed     <-chan browser.ConsoleMessage
	sentinel string
	closed   bool
}

// Listen subscribes to tab's console. Call it before any navigation whose
// console output matters: messages logged earlier are lost.
func Listen(ctx context.Context, tab browser.Tab, cfg config.ExtractionConfig) (*Listener, error) {
	feed, err := tab.Console(ctx, cfg.Sentinel, cfg.ConsoleBuffer)
	if err != nil {
		return nil, err
	}
	slog.Debug("console listener attached", "sentinel", cfg.Sentinel, "buffer", cfg.ConsoleBuffer)
	return Attach(feed, cfg.Sentinel), nil
}

// Attach wraps an existing message feed.
func Attach(feed <-chan browser.ConsoleMessage, sentinel string) *Listener {
	return &Listener{feed: feed, sentinel: sentinel}
}

// Extractor runs the per-question capture loop.
type Extractor struct {
	threshold   int
	settle      time.Duration
	retrySettle time.Duration
}

// New creates an Extractor.
func New(ext config.ExtractionConfig, pacing config.PacingConfig) *Extractor {
	threshold := ext.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}
	return &Extractor{
		threshold:   threshold,
		settle:      pacing.QuestionSettle,
		retrySettle: pacing.RetrySettle,
	}
}

// ExtractProva pages through questions 1..min(limit, total) and returns
// every distinct question captured. limit <= 0 means no limit.
//
// Each ordinal is navigated to and awaited; a miss is retried once with the
// longer settle. After threshold consecutive misses the loop stops, which
// is how the real end of the exam is detected when the total is a fallback
// upper bound. Per-ordinal errors count as misses. Capturing nothing is an
// error.
func (e *Extractor) ExtractProva(ctx context.Context, l *Listener, pager Pager, limit int) (*models.ExtractionResult, error) {
	start := time.Now()
	set := newCaptureSet()

	// Payloads logged while the exam opened are kept.
	l.drain(set)

	planned := pager.TotalQuestions(ctx)
	if limit > 0 && limit < planned {
		planned = limit
	}
	slog.Info("extraction started", "planned", planned, "limit", limit, "threshold", e.threshold)

	stop := StopRangeExhausted
	failures := 0
	for i := 1; i <= planned; i++ {
		if ctx.Err() != nil {
			stop = StopCanceled
			break
		}
		if e.probe(ctx, l, set, pager, i) {
			failures = 0
			continue
		}
		failures++
		slog.Warn("question not captured", "ordinal", i, "consecutiveFailures", failures)
		if failures >= e.threshold {
			stop = StopCircuitBreaker
			slog.Info("circuit breaker tripped, ending extraction", "ordinal", i, "threshold", e.threshold)
			break
		}
	}

	if set.len() == 0 {
		return nil, models.NewPipelineError(models.ErrCodeNoQuestions, "no questions were captured", nil)
	}

	questions := set.questions()
	result := &models.ExtractionResult{
		Exam:       questions[0].Exam,
		Questions:  questions,
		Stats:      computeStats(questions),
		StopReason: stop,
		Duration:   time.Since(start),
	}
	slog.Info("extraction finished",
		"total", result.Stats.TotalExtracted,
		"withExplanation", result.Stats.WithExplanation,
		"withImage", result.Stats.WithImage,
		"annulled", result.Stats.Annulled,
		"stopReason", stop,
		"duration", result.Duration,
	)
	return result, nil
}

// probe navigates to ordinal i and waits for its payload, retrying once.
func (e *Extractor) probe(ctx context.Context, l *Listener, set *captureSet, pager Pager, i int) bool {
	for attempt, settle := range []time.Duration{e.settle, e.retrySettle} {
		if err := pager.NavigateToQuestion(ctx, i); err != nil {
			slog.Warn("navigation to question failed", "ordinal", i, "attempt", attempt+1, "error", err)
			l.drain(set)
			if set.hasOrdinal(i) {
				return true
			}
			continue
		}
		if l.await(ctx, set, i, settle) {
			return true
		}
		slog.Debug("question payload not seen", "ordinal", i, "attempt", attempt+1, "settle", settle)
	}
	return false
}

// await consumes the feed until ordinal i is captured or settle elapses.
func (l *Listener) await(ctx context.Context, set *captureSet, i int, settle time.Duration) bool {
	if set.hasOrdinal(i) {
		return true
	}
	if l.closed {
		return false
	}

	timer := time.NewTimer(settle)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-l.feed:
			if !ok {
				l.markClosed()
				return set.hasOrdinal(i)
			}
			l.accept(set, msg)
			if set.hasOrdinal(i) {
				return true
			}
		case <-timer.C:
			l.drain(set)
			return set.hasOrdinal(i)
		case <-ctx.Done():
			return set.hasOrdinal(i)
		}
	}
}

// drain consumes every message already buffered without blocking.
func (l *Listener) drain(set *captureSet) {
	if l.closed {
		return
	}
	for {
		select {
		case msg, ok := <-l.feed:
			if !ok {
				l.markClosed()
				return
			}
			l.accept(set, msg)
		default:
			return
		}
	}
}

func (l *Listener) accept(set *captureSet, msg browser.ConsoleMessage) {
	q, err := decodeMessage(msg, l.sentinel)
	if err != nil {
		slog.Debug("dropping console payload", "error", err)
		return
	}
	if set.add(q) {
		slog.Info("question captured", "id", q.ID, "code", q.Code)
		return
	}
	slog.Debug("duplicate payload ignored", "id", q.ID)
}

func (l *Listener) markClosed() {
	l.closed = true
	slog.Warn("console feed closed, no further payloads will arrive")
}

func computeStats(questions []models.CapturedQuestion) models.ExtractionStats {
	s := models.ExtractionStats{TotalExtracted: len(questions)}
	for i := range questions {
		q := &questions[i]
		if q.HasExplanation() {
			s.WithExplanation++
		}
		if q.HasImage() {
			s.WithImage++
		}
		if q.Annulled {
			s.Annulled++
		}
	}
	return s
}
