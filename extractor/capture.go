package extractor

import (
	"strconv"
	"strings"

	"github.com/use-agent/provas/models"
)

// captureSet holds the questions captured during one ExtractProva call.
// It is created per call and never shared between calls.
type captureSet struct {
	byID  map[int64]int
	items []models.CapturedQuestion
}

func newCaptureSet() *captureSet {
	return &captureSet{byID: make(map[int64]int)}
}

// add inserts q unless a question with the same id is present.
// It reports whether q was inserted.
func (c *captureSet) add(q models.CapturedQuestion) bool {
	if _, ok := c.byID[q.ID]; ok {
		return false
	}
	c.byID[q.ID] = len(c.items)
	c.items = append(c.items, q)
	return true
}

// hasOrdinal reports whether a captured code ends in "-NN" or "-N" for n.
func (c *captureSet) hasOrdinal(n int) bool {
	padded := "-" + leftPad(n)
	plain := "-" + strconv.Itoa(n)
	for _, q := range c.items {
		if strings.HasSuffix(q.Code, padded) || strings.HasSuffix(q.Code, plain) {
			return true
		}
	}
	return false
}

func (c *captureSet) len() int { return len(c.items) }

// questions returns the captured questions in capture order.
func (c *captureSet) questions() []models.CapturedQuestion {
	return append([]models.CapturedQuestion(nil), c.items...)
}

func leftPad(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
