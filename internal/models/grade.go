package models

import "time"

// Grade is a student's computed score for one question list. There is at most
// one row per (student, list); the aggregator upserts it after each completed
// submission.
type Grade struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	StudentID      uint      `gorm:"not null;uniqueIndex:idx_student_list" json:"student_id"`
	QuestionListID uint      `gorm:"not null;uniqueIndex:idx_student_list" json:"question_list_id"`
	Score          int       `gorm:"not null;default:0" json:"score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
