package models

import (
	"errors"
	"fmt"
)

// Error codes used to classify pipeline failures by kind.
const (
	// Authentication: fatal, abort the run.
	ErrCodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	ErrCodeUnexpectedRedirect = "AUTH_UNEXPECTED_REDIRECT"

	// Stage-level kinds. See IsStructural for the UI-structure subset.
	ErrCodeNavigation        = "NAVIGATION_FAILED"
	ErrCodeIframeNotFound    = "IFRAME_NOT_FOUND"
	ErrCodeIframeUnavailable = "IFRAME_CONTENT_UNAVAILABLE"
	ErrCodeDropdownNotFound  = "DROPDOWN_NOT_FOUND"
	ErrCodeOptionsNotFound   = "OPTIONS_NOT_FOUND"
	ErrCodeSelectionFailed   = "SELECTION_FAILED"
	ErrCodeOpenExamFailed    = "OPEN_EXAM_FAILED"
	ErrCodeNoExamsFound      = "NO_EXAMS_FOUND"
	ErrCodeNoQuestions       = "NO_QUESTIONS_EXTRACTED"
	ErrCodeInvalidImageData  = "INVALID_IMAGE_DATA"
	ErrCodeDownloadFailed    = "DOWNLOAD_FAILED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBrowserCrash      = "BROWSER_CRASH"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInternal          = "INTERNAL_ERROR"

	// Preview API.
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// structuralCodes are the kinds that signal "the target site changed shape".
var structuralCodes = map[string]struct{}{
	ErrCodeIframeNotFound:    {},
	ErrCodeIframeUnavailable: {},
	ErrCodeDropdownNotFound:  {},
	ErrCodeOptionsNotFound:   {},
	ErrCodeSelectionFailed:   {},
	ErrCodeOpenExamFailed:    {},
	ErrCodeNavigation:        {},
}

// PipelineError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type PipelineError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(code, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost PipelineError in err's chain,
// or "" when there is none.
func CodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// IsStructural reports whether err is a UI-structure failure, for which a
// screenshot and DOM dump should be saved.
func IsStructural(err error) bool {
	_, ok := structuralCodes[CodeOf(err)]
	return ok
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInvalidCredentials, ErrCodeUnexpectedRedirect:
		return true
	}
	return false
}
