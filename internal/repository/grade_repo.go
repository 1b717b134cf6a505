package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-judge/internal/models"
)

// GradeRepository persists computed grades, one row per (student, list).
type GradeRepository interface {
	Upsert(ctx context.Context, grade *models.Grade) error
	Get(ctx context.Context, studentID, questionListID uint) (models.Grade, error)
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

type gradeRepository struct {
	db *gorm.DB
}

func (r *gradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "question_list_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
		}).
		Create(grade).Error
}

func (r *gradeRepository) Get(ctx context.Context, studentID, questionListID uint) (models.Grade, error) {
	var grade models.Grade
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND question_list_id = ?", studentID, questionListID).
		First(&grade).Error
	if err != nil {
		return models.Grade{}, err
	}
	return grade, nil
}
