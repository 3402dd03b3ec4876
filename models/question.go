package models

import "time"

// Credentials are the login inputs. They are never persisted.
type Credentials struct {
	Email    string
	Password string
}

// ExamOption is one selectable exam in the picker widget.
type ExamOption struct {
	// Index is 0-based, in order of appearance in the picker.
	Index int `json:"index"`

	// Label is the visible text, conventionally "N - <name>" with N 1-based.
	Label string `json:"label"`
}

// ExamInfo is the exam-level metadata carried by every captured question.
type ExamInfo struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Institution string `json:"institution"`
	State       string `json:"state"`
	Group       string `json:"group"`
	Year        int    `json:"year"`
}

// Alternative is one answer choice as emitted by the source.
type Alternative struct {
	ID        int64  `json:"id"`
	Letter    string `json:"letter"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Explanation is the grader's note attached to a question.
type Explanation struct {
	Text  string `json:"text"`
	Image string `json:"image,omitempty"`
}

// CapturedQuestion is the unit of extraction, keyed by the source-assigned ID.
type CapturedQuestion struct {
	ID           int64         `json:"id"`
	Code         string        `json:"code"`
	Exam         ExamInfo      `json:"exam"`
	Statement    string        `json:"statement"`
	Image        string        `json:"image,omitempty"`
	Alternatives []Alternative `json:"alternatives"`
	Explanation  *Explanation  `json:"explanation,omitempty"`
	Annulled     bool          `json:"annulled"`
}

// HasExplanation reports whether the question carries a non-empty grader's note.
func (q *CapturedQuestion) HasExplanation() bool {
	return q.Explanation != nil && (q.Explanation.Text != "" || q.Explanation.Image != "")
}

// HasImage reports whether the question references a statement image.
func (q *CapturedQuestion) HasImage() bool {
	return q.Image != ""
}

// ExtractionStats are the summary counts of one exam run.
type ExtractionStats struct {
	TotalExtracted  int `json:"totalExtracted"`
	WithExplanation int `json:"withExplanation"`
	WithImage       int `json:"withImage"`
	Annulled        int `json:"annulled"`
}

// ExtractionResult is the immutable aggregate of one exam's extraction.
type ExtractionResult struct {
	Exam      ExamInfo           `json:"exam"`
	Questions []CapturedQuestion `json:"questions"`
	Stats     ExtractionStats    `json:"stats"`

	// StopReason says why the per-question loop ended.
	StopReason string        `json:"stopReason"`
	Duration   time.Duration `json:"duration"`
}

// TransformedAlternative is an alternative re-keyed for the destination schema.
type TransformedAlternative struct {
	ID     string `json:"id"`
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

// QuestionMetadata preserves provenance of a transformed question.
type QuestionMetadata struct {
	Source          string    `json:"source"`
	SourceID        int64     `json:"sourceId"`
	SourceCode      string    `json:"sourceCode"`
	SourceExamID    int64     `json:"sourceExamId"`
	SourceAltIDs    []int64   `json:"sourceAlternativeIds"`
	ScrapedAt       time.Time `json:"scrapedAt"`
	PipelineVersion string    `json:"pipelineVersion"`
	NeedsReview     bool      `json:"needsReview,omitempty"`
	ReviewReason    string    `json:"reviewReason,omitempty"`
}

// TransformedQuestion is the destination-schema record derived from a
// CapturedQuestion.
type TransformedQuestion struct {
	ID                 string                   `json:"id"`
	Statement          string                   `json:"statement"`
	Alternatives       []TransformedAlternative `json:"alternatives"`
	CorrectAlternative string                   `json:"correctAlternativeId"`
	Explanation        string                   `json:"explanation,omitempty"`
	ExplanationImage   string                   `json:"explanationImage,omitempty"`
	Images             []string                 `json:"images,omitempty"`
	Institution        string                   `json:"institution"`
	Year               int                      `json:"year"`
	ExamCode           string                   `json:"examCode"`
	Tags               []string                 `json:"tags"`
	Annulled           bool                     `json:"annulled"`
	Metadata           QuestionMetadata         `json:"metadata"`
}

// DownloadResult is the outcome of materializing one distinct image URL.
type DownloadResult struct {
	URL       string `json:"url"`
	Success   bool   `json:"success"`
	LocalPath string `json:"localPath,omitempty"`
	Cached    bool   `json:"cached,omitempty"`
	Error     string `json:"error,omitempty"`
}
