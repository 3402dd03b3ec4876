// Package transform maps captured source questions onto the destination
// schema. Everything here is a pure function of its input.
package transform

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/provas/models"
)

// ReasonNoCorrectFlag is recorded in metadata when no alternative was
// flagged correct and the first one was assumed.
const ReasonNoCorrectFlag = "no alternative flagged correct; defaulted to first"

// Options carry the run-level values stamped on every record.
type Options struct {
	Source          string
	PipelineVersion string
	ScrapedAt       time.Time
}

// QuestionID returns the destination id of a source question.
func QuestionID(source string, sourceID int64) string {
	return source + "-" + strconv.FormatInt(sourceID, 10)
}

// AlternativeID returns the destination id of the alternative at pos.
func AlternativeID(questionID, letter string, pos int) string {
	letter = strings.ToLower(strings.TrimSpace(letter))
	if letter == "" {
		return fmt.Sprintf("%s-alt%d", questionID, pos+1)
	}
	return questionID + "-" + letter
}

// ResolveCorrect returns the position of the alternative flagged correct.
// When none is flagged it returns 0 and fallback=true; the caller must
// surface that. It returns -1 only when there are no alternatives.
func ResolveCorrect(alts []models.Alternative) (pos int, fallback bool) {
	if len(alts) == 0 {
		return -1, true
	}
	for i, a := range alts {
		if a.IsCorrect {
			return i, false
		}
	}
	return 0, true
}

// Transform converts one captured question.
func Transform(q models.CapturedQuestion, opts Options) models.TransformedQuestion {
	id := QuestionID(opts.Source, q.ID)

	out := models.TransformedQuestion{
		ID:           id,
		Statement:    q.Statement,
		Alternatives: make([]models.TransformedAlternative, 0, len(q.Alternatives)),
		Institution:  q.Exam.Institution,
		Year:         q.Exam.Year,
		ExamCode:     q.Exam.Code,
		Tags:         Tags(q),
		Annulled:     q.Annulled,
		Metadata: models.QuestionMetadata{
			Source:          opts.Source,
			SourceID:        q.ID,
			SourceCode:      q.Code,
			SourceExamID:    q.Exam.ID,
			SourceAltIDs:    make([]int64, 0, len(q.Alternatives)),
			ScrapedAt:       opts.ScrapedAt,
			PipelineVersion: opts.PipelineVersion,
		},
	}

	for i, a := range q.Alternatives {
		out.Alternatives = append(out.Alternatives, models.TransformedAlternative{
			ID:     AlternativeID(id, a.Letter, i),
			Letter: strings.ToUpper(strings.TrimSpace(a.Letter)),
			Text:   a.Text,
		})
		out.Metadata.SourceAltIDs = append(out.Metadata.SourceAltIDs, a.ID)
	}

	// The pointer is the new id of the flagged alternative itself.
	pos, fallback := ResolveCorrect(q.Alternatives)
	if pos >= 0 {
		out.CorrectAlternative = out.Alternatives[pos].ID
	}
	if fallback {
		out.Metadata.NeedsReview = true
		out.Metadata.ReviewReason = ReasonNoCorrectFlag
	}

	if q.Explanation != nil {
		out.Explanation = q.Explanation.Text
		out.ExplanationImage = q.Explanation.Image
	}
	return out
}

// TransformAll converts qs in order and returns how many records needed
// the correct-alternative fallback. Each fallback is logged at Warn.
func TransformAll(qs []models.CapturedQuestion, opts Options) ([]models.TransformedQuestion, int) {
	out := make([]models.TransformedQuestion, 0, len(qs))
	fallbacks := 0
	for _, q := range qs {
		t := Transform(q, opts)
		if t.Metadata.NeedsReview {
			fallbacks++
			slog.Warn("no correct alternative flagged, defaulting to first",
				"id", q.ID,
				"code", q.Code,
				"alternatives", len(q.Alternatives),
				"assumed", t.CorrectAlternative,
			)
		}
		out = append(out, t)
	}
	return out, fallbacks
}

// Tags derives the fixed tag set of a question. Empty fields are skipped
// and the order is stable.
func Tags(q models.CapturedQuestion) []string {
	tags := make([]string, 0, 6)
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}
	add(q.Exam.Code)
	add(q.Exam.Institution)
	add(q.Exam.Group)
	add(q.Exam.State)
	if q.Exam.Year > 0 {
		add(strconv.Itoa(q.Exam.Year))
	}
	if q.Annulled {
		add("annulled")
	}
	return tags
}
