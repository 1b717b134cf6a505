package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// QuestionListRepository exposes the read side of scored lists.
type QuestionListRepository interface {
	GetByID(ctx context.Context, id uint) (models.QuestionList, error)
	// FindByQuestion returns every list whose configuration covers the question.
	FindByQuestion(ctx context.Context, questionID uint) ([]models.QuestionList, error)
}

// NewQuestionListRepository constructs a question list repository.
func NewQuestionListRepository(db *gorm.DB) QuestionListRepository {
	return &questionListRepository{db: db}
}

type questionListRepository struct {
	db *gorm.DB
}

func (r *questionListRepository) GetByID(ctx context.Context, id uint) (models.QuestionList, error) {
	var list models.QuestionList
	err := r.db.WithContext(ctx).
		Preload("Groups").
		First(&list, id).Error
	if err != nil {
		return models.QuestionList{}, err
	}
	return list, nil
}

// Membership is stored in JSON columns whose containment operators differ
// between postgres and sqlite, so filtering happens in memory. Lists are a
// per-class handful, never a hot table.
func (r *questionListRepository) FindByQuestion(ctx context.Context, questionID uint) ([]models.QuestionList, error) {
	var lists []models.QuestionList
	err := r.db.WithContext(ctx).
		Preload("Groups").
		Find(&lists).Error
	if err != nil {
		return nil, err
	}

	var matched []models.QuestionList
	for _, list := range lists {
		if list.ContainsQuestion(questionID) {
			matched = append(matched, list)
		}
	}
	return matched, nil
}
