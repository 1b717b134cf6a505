package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Submission lifecycle states. A submission only ever moves forward:
// PENDING -> IN_QUEUE -> PROCESSING -> RUNNING -> COMPLETED | ERROR.
const (
	SubmissionStatusPending    = "PENDING"
	SubmissionStatusInQueue    = "IN_QUEUE"
	SubmissionStatusProcessing = "PROCESSING"
	SubmissionStatusRunning    = "RUNNING"
	SubmissionStatusCompleted  = "COMPLETED"
	SubmissionStatusError      = "ERROR"
)

// ErrStateConflict indicates a transition that is illegal from the submission's current state.
var ErrStateConflict = errors.New("illegal submission state transition")

// Submission represents a student's code submission for a question.
type Submission struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StudentID       uint      `gorm:"not null;index" json:"student_id"`
	QuestionID      uint      `gorm:"not null;index" json:"question_id"`
	Source          string    `gorm:"type:text" json:"source"`
	Language        string    `gorm:"size:32;not null" json:"language"`
	Status          string    `gorm:"size:16;not null;default:PENDING" json:"status"`
	Score           int       `gorm:"default:0" json:"score"`
	PassedTests     int       `gorm:"default:0" json:"passed_tests"`
	TotalTests      int       `gorm:"default:0" json:"total_tests"`
	ExecutionTimeMs *int64    `json:"execution_time_ms,omitempty"`
	MemoryUsedKB    *int64    `json:"memory_used_kb,omitempty"`
	Verdict         string    `gorm:"size:32" json:"verdict"`
	ErrorMessage    string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Results []SubmissionResult `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"results,omitempty"`
}

// IsTerminal reports whether the submission reached a final state.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusCompleted || s.Status == SubmissionStatusError
}

// IsWaiting reports whether the submission is still waiting to be processed.
func (s Submission) IsWaiting() bool {
	return s.Status == SubmissionStatusPending || s.Status == SubmissionStatusInQueue
}

// Enqueue moves a pending submission into the queue. Only legal from PENDING.
func (s *Submission) Enqueue() error {
	if s.Status != SubmissionStatusPending {
		return stateConflict(s.Status, SubmissionStatusInQueue)
	}
	s.Status = SubmissionStatusInQueue
	return nil
}

// MarkProcessing claims the submission for a worker. Only legal from a waiting state.
func (s *Submission) MarkProcessing() error {
	if !s.IsWaiting() {
		return stateConflict(s.Status, SubmissionStatusProcessing)
	}
	s.Status = SubmissionStatusProcessing
	return nil
}

// MarkRunning records that the judge batch has been dispatched.
func (s *Submission) MarkRunning() error {
	if s.Status != SubmissionStatusProcessing {
		return stateConflict(s.Status, SubmissionStatusRunning)
	}
	s.Status = SubmissionStatusRunning
	return nil
}

// MarkCompleted finalises the submission with its test counts. The score is the
// rounded percentage of passed tests; zero total yields zero.
func (s *Submission) MarkCompleted(passed, total int) error {
	if s.IsTerminal() {
		return stateConflict(s.Status, SubmissionStatusCompleted)
	}
	if passed < 0 || total < 0 || passed > total {
		return fmt.Errorf("invalid test counts: passed=%d total=%d", passed, total)
	}
	s.Status = SubmissionStatusCompleted
	s.PassedTests = passed
	s.TotalTests = total
	s.Score = RatioScore(passed, total)
	return nil
}

// MarkFailed moves the submission into ERROR with the failure message. Legal
// from any non-terminal state.
func (s *Submission) MarkFailed(message string) error {
	if s.IsTerminal() {
		return stateConflict(s.Status, SubmissionStatusError)
	}
	s.Status = SubmissionStatusError
	s.ErrorMessage = message
	return nil
}

// RatioScore computes round(100 * passed / total), or 0 when total is zero.
func RatioScore(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(passed) / float64(total)))
}

func stateConflict(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrStateConflict, from, to)
}
