package models

import "time"

// RunStats are the per-run statistics recorded in the run report.
type RunStats struct {
	ExtractionStats
	Transformed      int `json:"transformed"`
	CorrectFallbacks int `json:"correctFallbacks"`
	NearDuplicates   int `json:"nearDuplicates"`
	ImagesTotal      int `json:"imagesTotal"`
	ImagesDownloaded int `json:"imagesDownloaded"`
	ImagesCached     int `json:"imagesCached"`
	ImagesFailed     int `json:"imagesFailed"`
}

// RunReport is the companion JSON written next to the output artifact.
type RunReport struct {
	ExecutionID string    `json:"executionId"`
	Exam        ExamInfo  `json:"exam"`
	ExamLabel   string    `json:"examLabel,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	DurationMs  int64     `json:"durationMs"`
	StopReason  string    `json:"stopReason,omitempty"`
	Stats       RunStats  `json:"stats"`
	OutputFile  string    `json:"outputFile"`
	Error       string    `json:"error,omitempty"`
}
