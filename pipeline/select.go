package pipeline

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/provas/models"
	"github.com/use-agent/provas/output"
)

var labelOrdinal = regexp.MustCompile(`^\s*(\d+)\s*-`)

// Selection says which exam to extract. At most one field should be set;
// when several are, ID wins over Index, which wins over Name.
type Selection struct {
	// ID is the number in the label's "N - " prefix.
	ID int

	// Index is the 1-based position in the picker.
	Index int

	// Name is matched case- and accent-insensitively against labels.
	Name string
}

// Empty reports whether no selection criterion is set.
func (s Selection) Empty() bool {
	return s.ID <= 0 && s.Index <= 0 && strings.TrimSpace(s.Name) == ""
}

// PromptFunc asks the user to choose among options and returns the chosen
// 0-based position.
type PromptFunc func(options []models.ExamOption) (int, error)

// ChooseExam resolves sel against the listed options.
func ChooseExam(options []models.ExamOption, sel Selection) (models.ExamOption, error) {
	switch {
	case sel.ID > 0:
		for _, o := range options {
			if n, ok := labelNumber(o.Label); ok && n == sel.ID {
				return o, nil
			}
		}
		return models.ExamOption{}, invalidSelection("no exam with id %d", sel.ID)

	case sel.Index > 0:
		if sel.Index > len(options) {
			return models.ExamOption{}, invalidSelection("exam index %d out of range 1..%d", sel.Index, len(options))
		}
		return options[sel.Index-1], nil

	case strings.TrimSpace(sel.Name) != "":
		want := output.Slug(sel.Name)
		var matches []models.ExamOption
		for _, o := range options {
			if want != "" && strings.Contains(output.Slug(o.Label), want) {
				matches = append(matches, o)
			}
		}
		if len(matches) == 0 {
			return models.ExamOption{}, invalidSelection("no exam matches %q", sel.Name)
		}
		if len(matches) > 1 {
			slog.Warn("exam name matches several exams, using the first",
				"name", sel.Name, "matches", len(matches), "chosen", matches[0].Label)
		}
		return matches[0], nil
	}
	return models.ExamOption{}, invalidSelection("no exam selected")
}

func labelNumber(label string) (int, bool) {
	m := labelOrdinal.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

func invalidSelection(format string, a ...any) error {
	return models.NewPipelineError(models.ErrCodeInvalidInput, fmt.Sprintf(format, a...), nil)
}
