package models

import "time"

// Question kinds. Only code questions go through the judging pipeline.
const (
	QuestionKindCode = "code"
	QuestionKindQuiz = "quiz"
)

// Judge backend discriminants.
const (
	JudgeKindSandbox = "sandbox"
	JudgeKindContest = "contest"
)

// Question is the judging view of a question: execution limits, the backend
// that judges it, and its test cases. Authoring lives in the main GEMA API.
type Question struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Title     string `gorm:"size:255" json:"title"`
	Kind      string `gorm:"size:16;not null;default:code" json:"kind"`
	JudgeKind string `gorm:"size:16;not null;default:sandbox" json:"judge_kind"`

	CPUTimeMs int `gorm:"default:2000" json:"cpu_time_ms"`
	MemoryKB  int `gorm:"default:131072" json:"memory_kb"`
	WallTimeS int `gorm:"default:10" json:"wall_time_s"`

	// Contest-backend routing, unused for sandbox questions.
	ContestProblemID string `gorm:"size:64" json:"contest_problem_id,omitempty"`

	TestCases []TestCase `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TestCase is a single input/expected-output pair with its scoring weight.
type TestCase struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	QuestionID     uint      `gorm:"not null;index" json:"question_id"`
	Input          string    `gorm:"type:text" json:"input"`
	ExpectedOutput string    `gorm:"type:text" json:"expected_output"`
	Weight         float64   `gorm:"not null;default:1" json:"weight"`
	IsSample       bool      `gorm:"not null;default:false" json:"is_sample"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
