package dto

import (
	"time"

	"github.com/noah-isme/gema-judge/internal/models"
)

// SubmissionRequest is the intake payload for a new submission.
type SubmissionRequest struct {
	StudentID  uint   `json:"student_id" validate:"required"`
	QuestionID uint   `json:"question_id" validate:"required"`
	Language   string `json:"language" validate:"required"`
	Source     string `json:"source" validate:"required"`
}

// SubmissionResponse is the compact view returned on intake.
type SubmissionResponse struct {
	ID         uint      `json:"id"`
	StudentID  uint      `json:"student_id"`
	QuestionID uint      `json:"question_id"`
	Language   string    `json:"language"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// TestResultResponse is one per-test-case verdict.
type TestResultResponse struct {
	TestCaseID   uint   `json:"test_case_id"`
	Verdict      string `json:"verdict"`
	Passed       bool   `json:"passed"`
	TimeMs       *int64 `json:"time_ms,omitempty"`
	MemoryKB     *int64 `json:"memory_kb,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SubmissionDetailResponse is the full judged view of a submission.
type SubmissionDetailResponse struct {
	ID              uint                 `json:"id"`
	StudentID       uint                 `json:"student_id"`
	QuestionID      uint                 `json:"question_id"`
	Language        string               `json:"language"`
	Status          string               `json:"status"`
	Score           int                  `json:"score"`
	PassedTests     int                  `json:"passed_tests"`
	TotalTests      int                  `json:"total_tests"`
	Verdict         string               `json:"verdict,omitempty"`
	ExecutionTimeMs *int64               `json:"execution_time_ms,omitempty"`
	MemoryUsedKB    *int64               `json:"memory_used_kb,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	Results         []TestResultResponse `json:"results"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// NewSubmissionResponse maps a submission to its intake view.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:         submission.ID,
		StudentID:  submission.StudentID,
		QuestionID: submission.QuestionID,
		Language:   submission.Language,
		Status:     submission.Status,
		CreatedAt:  submission.CreatedAt,
	}
}

// NewSubmissionDetailResponse maps a submission and its results to the full view.
func NewSubmissionDetailResponse(submission models.Submission) SubmissionDetailResponse {
	results := make([]TestResultResponse, 0, len(submission.Results))
	for _, result := range submission.Results {
		results = append(results, TestResultResponse{
			TestCaseID:   result.TestCaseID,
			Verdict:      result.Verdict,
			Passed:       result.Passed,
			TimeMs:       result.TimeMs,
			MemoryKB:     result.MemoryKB,
			ErrorMessage: result.ErrorMessage,
		})
	}

	return SubmissionDetailResponse{
		ID:              submission.ID,
		StudentID:       submission.StudentID,
		QuestionID:      submission.QuestionID,
		Language:        submission.Language,
		Status:          submission.Status,
		Score:           submission.Score,
		PassedTests:     submission.PassedTests,
		TotalTests:      submission.TotalTests,
		Verdict:         submission.Verdict,
		ExecutionTimeMs: submission.ExecutionTimeMs,
		MemoryUsedKB:    submission.MemoryUsedKB,
		ErrorMessage:    submission.ErrorMessage,
		Results:         results,
		CreatedAt:       submission.CreatedAt,
		UpdatedAt:       submission.UpdatedAt,
	}
}
