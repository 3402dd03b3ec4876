// Package output writes the run artifacts: the transformed question array
// and the companion run report.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/use-agent/provas/models"
)

// Slug lowercases s, strips diacritics and collapses every run of
// non-alphanumerics into a single "-".
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// DefaultOutputPath returns <dir>/<institution>-<year>-<unix-ms>.json.
func DefaultOutputPath(dir, institution string, year int, now time.Time) string {
	name := Slug(institution)
	if name == "" {
		name = "prova"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%d-%d.json", name, year, now.UnixMilli()))
}

// WriteQuestions writes qs as an indented JSON array at path, creating the
// parent directory when needed.
func WriteQuestions(path string, qs []models.TransformedQuestion) error {
	if qs == nil {
		qs = []models.TransformedQuestion{}
	}
	return writeJSON(path, qs)
}

// NewReport starts a run report with a fresh execution id.
func NewReport(startedAt time.Time) *models.RunReport {
	return &models.RunReport{
		ExecutionID: uuid.NewString(),
		StartedAt:   startedAt,
	}
}

// Finish stamps the end time, duration and error (if any) on r.
func Finish(r *models.RunReport, finishedAt time.Time, err error) {
	r.FinishedAt = finishedAt
	r.DurationMs = finishedAt.Sub(r.StartedAt).Milliseconds()
	if err != nil {
		r.Error = err.Error()
	}
}

// ReportPath returns <logsDir>/run-<executionId>.json.
func ReportPath(logsDir string, r *models.RunReport) string {
	return filepath.Join(logsDir, "run-"+r.ExecutionID+".json")
}

// WriteReport writes r under logsDir and returns the file path.
func WriteReport(logsDir string, r *models.RunReport) (string, error) {
	path := ReportPath(logsDir, r)
	if err := writeJSON(path, r); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.NewPipelineError(models.ErrCodeInternal, "encode "+filepath.Base(path), err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.NewPipelineError(models.ErrCodeInternal, "create "+dir, err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return models.NewPipelineError(models.ErrCodeInternal, "write "+path, err)
	}
	return nil
}
