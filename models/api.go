package models

import "time"

// ErrorDetail is the error body returned by the preview API.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an ErrorDetail.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Version      string `json:"version"`
	ImagesCached int    `json:"images_cached"`
	Outputs      int    `json:"outputs"`
}

// OutputFile describes one artifact in the output directory.
type OutputFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// OutputListResponse is the response for GET /api/v1/outputs.
type OutputListResponse struct {
	Success bool         `json:"success"`
	Files   []OutputFile `json:"files"`
	Total   int          `json:"total"`
}
