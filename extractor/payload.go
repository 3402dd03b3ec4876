package extractor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/models"
)

var (
	errNoJSON        = errors.New("no JSON object after sentinel")
	errMissingFields = errors.New("payload lacks id, code or alternatives")
)

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexInt(v)
	return nil
}

type wireExam struct {
	ID          flexInt `json:"id"`
	Code        string  `json:"code"`
	Institution string  `json:"institution"`
	State       string  `json:"state"`
	Group       string  `json:"group"`
	Year        flexInt `json:"year"`
}

type wireAlternative struct {
	ID        flexInt `json:"id"`
	Letter    string  `json:"letter"`
	Text      string  `json:"text"`
	Correct   bool    `json:"correct"`
	IsCorrect bool    `json:"isCorrect"`
}

type wireExplanation struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// wireQuestion is the object the target page logs after the sentinel.
type wireQuestion struct {
	ID           flexInt           `json:"id"`
	Code         string            `json:"code"`
	Exam         wireExam          `json:"exam"`
	Statement    string            `json:"statement"`
	Image        string            `json:"image"`
	Alternatives []wireAlternative `json:"alternatives"`
	Explanation  *wireExplanation  `json:"explanation"`
	Annulled     bool              `json:"annulled"`
}

// decodeMessage turns one filtered console message into a CapturedQuestion.
// A resolved object payload is preferred; otherwise the JSON text following
// the sentinel is parsed. Any error means the message is page noise.
func decodeMessage(msg browser.ConsoleMessage, sentinel string) (models.CapturedQuestion, error) {
	raw, err := payloadBytes(msg, sentinel)
	if err != nil {
		return models.CapturedQuestion{}, err
	}

	var w wireQuestion
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.CapturedQuestion{}, fmt.Errorf("decode payload: %w", err)
	}
	if w.ID == 0 || strings.TrimSpace(w.Code) == "" || len(w.Alternatives) == 0 {
		return models.CapturedQuestion{}, errMissingFields
	}
	return w.toModel(), nil
}

func payloadBytes(msg browser.ConsoleMessage, sentinel string) ([]byte, error) {
	if msg.HasPayload {
		// The page may log the object itself or its JSON.stringify output.
		if s, ok := msg.Payload.Val().(string); ok {
			return jsonAfter(s)
		}
		return json.Marshal(msg.Payload)
	}
	return jsonAfter(strings.TrimPrefix(msg.Text, sentinel))
}

func jsonAfter(s string) ([]byte, error) {
	i := strings.IndexByte(s, '{')
	if i < 0 {
		return nil, errNoJSON
	}
	return []byte(strings.TrimSpace(s[i:])), nil
}

func (w wireQuestion) toModel() models.CapturedQuestion {
	q := models.CapturedQuestion{
		ID:   int64(w.ID),
		Code: strings.TrimSpace(w.Code),
		Exam: models.ExamInfo{
			ID:          int64(w.Exam.ID),
			Code:        w.Exam.Code,
			Institution: w.Exam.Institution,
			State:       w.Exam.State,
			Group:       w.Exam.Group,
			Year:        int(w.Exam.Year),
		},
		Statement:    w.Statement,
		Image:        strings.TrimSpace(w.Image),
		Alternatives: make([]models.Alternative, 0, len(w.Alternatives)),
		Annulled:     w.Annulled,
	}
	for _, a := range w.Alternatives {
		q.Alternatives = append(q.Alternatives, models.Alternative{
			ID:        int64(a.ID),
			Letter:    a.Letter,
			Text:      a.Text,
			IsCorrect: a.Correct || a.IsCorrect,
		})
	}
	if w.Explanation != nil && (w.Explanation.Text != "" || w.Explanation.Image != "") {
		q.Explanation = &models.Explanation{
			Text:  w.Explanation.Text,
			Image: strings.TrimSpace(w.Explanation.Image),
		}
	}
	return q
}
