package dto

import (
	"time"

	"github.com/noah-isme/gema-judge/internal/models"
)

// GradeResponse is a student's grade for one question list.
type GradeResponse struct {
	StudentID      uint      `json:"student_id"`
	QuestionListID uint      `json:"question_list_id"`
	Score          int       `json:"score"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewGradeResponse maps a grade row to its API view.
func NewGradeResponse(grade models.Grade) GradeResponse {
	return GradeResponse{
		StudentID:      grade.StudentID,
		QuestionListID: grade.QuestionListID,
		Score:          grade.Score,
		UpdatedAt:      grade.UpdatedAt,
	}
}
