package extractor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/models"
	"github.com/ysmood/gson"
)

const sentinel = "rawles"

func payload(id int64, code string) map[string]any {
	return map[string]any{
		"id":   id,
		"code": code,
		"exam": map[string]any{
			"id": 77, "code": "UNICAMP-2019", "institution": "UNICAMP",
			"state": "SP", "group": "R1", "year": 2019,
		},
		"statement": "<p>Enunciado</p>",
		"alternatives": []any{
			map[string]any{"id": id*10 + 1, "letter": "A", "text": "um", "correct": false},
			map[string]any{"id": id*10 + 2, "letter": "B", "text": "dois", "correct": true},
		},
	}
}

func objMsg(v any) browser.ConsoleMessage {
	return browser.ConsoleMessage{Text: sentinel + " Object", Payload: gson.New(v), HasPayload: true}
}

// fakeSource emits console messages when a question is navigated to.
type fakeSource struct {
	feed   chan browser.ConsoleMessage
	total  int
	emit   func(q int) []browser.ConsoleMessage
	fail   func(q int) error
	visits []int
}

func newFakeSource(total int, emit func(q int) []browser.ConsoleMessage) *fakeSource {
	return &fakeSource{feed: make(chan browser.ConsoleMessage, 64), total: total, emit: emit}
}

func (f *fakeSource) TotalQuestions(ctx context.Context) int { return f.total }

func (f *fakeSource) NavigateToQuestion(ctx context.Context, q int) error {
	f.visits = append(f.visits, q)
	if f.fail != nil {
		if err := f.fail(q); err != nil {
			return err
		}
	}
	for _, m := range f.emit(q) {
		f.feed <- m
	}
	return nil
}

func (f *fakeSource) distinctVisits() int {
	seen := map[int]bool{}
	for _, v := range f.visits {
		seen[v] = true
	}
	return len(seen)
}

func (f *fakeSource) maxVisit() int {
	m := 0
	for _, v := range f.visits {
		if v > m {
			m = v
		}
	}
	return m
}

// yieldsUpTo emits one payload per ordinal 1..k, twice, as the site does.
func yieldsUpTo(k int) func(q int) []browser.ConsoleMessage {
	return func(q int) []browser.ConsoleMessage {
		if q > k {
			return nil
		}
		m := objMsg(payload(int64(1000+q), fmt.Sprintf("UNICAMP-2019-%02d", q)))
		return []browser.ConsoleMessage{m, m}
	}
}

func newExtractor() *Extractor {
	cfg := config.Defaults()
	cfg.Pacing.QuestionSettle = 5 * time.Millisecond
	cfg.Pacing.RetrySettle = 10 * time.Millisecond
	return New(cfg.Extraction, cfg.Pacing)
}

func TestCaptureSetDedup(t *testing.T) {
	set := newCaptureSet()
	l := Attach(nil, sentinel)
	msg := objMsg(payload(1005, "Q-05"))

	l.accept(set, msg)
	l.accept(set, msg)

	assert.Equal(t, 1, set.len())
	assert.Equal(t, int64(1005), set.questions()[0].ID)
}

func TestMalformedPayloadsAreDropped(t *testing.T) {
	noID := payload(0, "Q-01")
	noCode := payload(1, "")
	noAlts := payload(2, "Q-02")
	noAlts["alternatives"] = []any{}

	set := newCaptureSet()
	l := Attach(nil, sentinel)
	for _, m := range []browser.ConsoleMessage{
		objMsg(noID),
		objMsg(noCode),
		objMsg(noAlts),
		objMsg("not an object"),
		{Text: sentinel + " loaded"},
		{Text: sentinel + ` {"id": broken`},
	} {
		assert.NotPanics(t, func() { l.accept(set, m) })
	}
	assert.Equal(t, 0, set.len())
}

func TestDecodeMessageShapes(t *testing.T) {
	q, err := decodeMessage(objMsg(payload(1005, "UNICAMP-2019-05")), sentinel)
	require.NoError(t, err)
	assert.Equal(t, int64(1005), q.ID)
	assert.Equal(t, "UNICAMP", q.Exam.Institution)
	assert.Equal(t, 2019, q.Exam.Year)
	require.Len(t, q.Alternatives, 2)
	assert.True(t, q.Alternatives[1].IsCorrect)
	assert.Nil(t, q.Explanation)

	text := sentinel + ` {"id":"42","code":"X-3","alternatives":[{"id":1,"letter":"A","isCorrect":true}],` +
		`"explanation":{"text":"porque sim"},"annulled":true}`
	q, err = decodeMessage(browser.ConsoleMessage{Text: text}, sentinel)
	require.NoError(t, err)
	assert.Equal(t, int64(42), q.ID)
	assert.True(t, q.Alternatives[0].IsCorrect)
	assert.True(t, q.Annulled)
	require.NotNil(t, q.Explanation)
	assert.Equal(t, "porque sim", q.Explanation.Text)

	// JSON.stringify output logged as the second argument.
	q, err = decodeMessage(objMsg(`{"id":7,"code":"Y-07","alternatives":[{"id":1}]}`), sentinel)
	require.NoError(t, err)
	assert.Equal(t, "Y-07", q.Code)
}

func TestHasOrdinalSuffixForms(t *testing.T) {
	set := newCaptureSet()
	set.add(models.CapturedQuestion{ID: 1, Code: "ENEM-07"})
	assert.True(t, set.hasOrdinal(7))

	set = newCaptureSet()
	set.add(models.CapturedQuestion{ID: 1, Code: "ENEM-7"})
	assert.True(t, set.hasOrdinal(7))

	set = newCaptureSet()
	set.add(models.CapturedQuestion{ID: 1, Code: "ENEM-17"})
	set.add(models.CapturedQuestion{ID: 2, Code: "ENEM-107"})
	assert.False(t, set.hasOrdinal(7))
	assert.True(t, set.hasOrdinal(17))
	assert.True(t, set.hasOrdinal(107))
}

func TestCircuitBreakerHaltsAtKPlusThreshold(t *testing.T) {
	for _, k := range []int{0, 1, 2, 5, 9} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			src := newFakeSource(200, yieldsUpTo(k))
			res, err := newExtractor().ExtractProva(context.Background(), Attach(src.feed, sentinel), src, 0)

			assert.Equal(t, k+3, src.distinctVisits())
			assert.Equal(t, k+3, src.maxVisit())
			if k == 0 {
				require.Error(t, err)
				assert.True(t, models.HasCode(err, models.ErrCodeNoQuestions))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, k, res.Stats.TotalExtracted)
			assert.Equal(t, StopCircuitBreaker, res.StopReason)
		})
	}
}

func TestMissedOrdinalIsRetriedOnce(t *testing.T) {
	src := newFakeSource(200, yieldsUpTo(1))
	_, err := newExtractor().ExtractProva(context.Background(), Attach(src.feed, sentinel), src, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2, 3, 3, 4, 4}, src.visits)
}

func TestLimitBoundsTheRange(t *testing.T) {
	src := newFakeSource(200, yieldsUpTo(2))
	res, err := newExtractor().ExtractProva(context.Background(), Attach(src.feed, sentinel), src, 2)
	require.NoError(t, err)

	assert.Len(t, res.Questions, 2)
	assert.Equal(t, 2, res.Stats.TotalExtracted)
	assert.Equal(t, StopRangeExhausted, res.StopReason)
	assert.Equal(t, 2, src.maxVisit())
	assert.Equal(t, "UNICAMP", res.Exam.Institution)
	assert.Equal(t, int64(77), res.Exam.ID)
}

func TestDuplicateEmissionYieldsOneCapture(t *testing.T) {
	src := newFakeSource(200, func(q int) []browser.ConsoleMessage {
		m := objMsg(payload(1005, "UNICAMP-2019-05"))
		return []browser.ConsoleMessage{m, m}
	})
	l := Attach(src.feed, sentinel)
	set := newCaptureSet()

	assert.True(t, newExtractor().probe(context.Background(), l, set, src, 5))
	l.drain(set)
	assert.Equal(t, 1, set.len())
	assert.Equal(t, []int{5}, src.visits)
}

func TestNavigationErrorCountsAsMiss(t *testing.T) {
	src := newFakeSource(3, yieldsUpTo(3))
	src.fail = func(q int) error {
		if q == 2 {
			return errors.New("menu did not open")
		}
		return nil
	}

	res, err := newExtractor().ExtractProva(context.Background(), Attach(src.feed, sentinel), src, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.TotalExtracted)
	assert.Equal(t, "UNICAMP-2019-03", res.Questions[1].Code)
	assert.Equal(t, StopRangeExhausted, res.StopReason)
}

func TestPayloadsBeforeFirstNavigationAreKept(t *testing.T) {
	src := newFakeSource(1, func(int) []browser.ConsoleMessage { return nil })
	src.feed <- objMsg(payload(1001, "UNICAMP-2019-01"))

	res, err := newExtractor().ExtractProva(context.Background(), Attach(src.feed, sentinel), src, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.TotalExtracted)
}

func TestStats(t *testing.T) {
	qs := []models.CapturedQuestion{
		{ID: 1, Image: "https://cdn/x.png", Explanation: &models.Explanation{Text: "t"}},
		{ID: 2, Annulled: true},
		{ID: 3, Explanation: &models.Explanation{}},
	}
	s := computeStats(qs)
	assert.Equal(t, models.ExtractionStats{TotalExtracted: 3, WithExplanation: 1, WithImage: 1, Annulled: 1}, s)
}

func TestClosedFeedEndsWithoutHanging(t *testing.T) {
	src := newFakeSource(200, func(int) []browser.ConsoleMessage { return nil })
	l := Attach(src.feed, sentinel)
	close(src.feed)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := newExtractor().ExtractProva(context.Background(), l, src, 0)
		assert.True(t, models.HasCode(err, models.ErrCodeNoQuestions))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("extraction did not terminate")
	}
}
