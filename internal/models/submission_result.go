package models

import "time"

// SubmissionResult stores the judge outcome of one test case for one submission.
// The composite unique index makes re-processing idempotent: a retried job
// upserts into the same row instead of inserting a duplicate.
type SubmissionResult struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;uniqueIndex:idx_submission_test_case" json:"submission_id"`
	TestCaseID   uint      `gorm:"not null;uniqueIndex:idx_submission_test_case" json:"test_case_id"`
	Verdict      string    `gorm:"size:32;not null" json:"verdict"`
	Passed       bool      `gorm:"not null" json:"passed"`
	TimeMs       *int64    `json:"time_ms,omitempty"`
	MemoryKB     *int64    `json:"memory_kb,omitempty"`
	Output       string    `gorm:"type:text" json:"output,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
