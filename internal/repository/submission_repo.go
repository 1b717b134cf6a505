package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// SubmissionRepository exposes persistence helpers for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	// BestScoreByQuestion returns the student's highest completed score per
	// question; questions without completed submissions are absent from the map.
	BestScoreByQuestion(ctx context.Context, studentID uint, questionIDs []uint) (map[uint]int, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).
		Preload("Results").
		First(&submission, id).Error
	if err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) BestScoreByQuestion(ctx context.Context, studentID uint, questionIDs []uint) (map[uint]int, error) {
	best := make(map[uint]int, len(questionIDs))
	if len(questionIDs) == 0 {
		return best, nil
	}

	var rows []struct {
		QuestionID uint
		Best       int
	}
	err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Select("question_id, MAX(score) AS best").
		Where("student_id = ? AND status = ? AND question_id IN ?", studentID, models.SubmissionStatusCompleted, questionIDs).
		Group("question_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		best[row.QuestionID] = row.Best
	}
	return best, nil
}
