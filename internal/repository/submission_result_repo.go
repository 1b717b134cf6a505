package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-judge/internal/models"
)

// SubmissionResultRepository persists per-test-case judge outcomes.
type SubmissionResultRepository interface {
	// UpsertBatch writes one row per (submission, test case). Rows from a
	// previous attempt of the same job are overwritten, not duplicated.
	UpsertBatch(ctx context.Context, results []models.SubmissionResult) error
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionResult, error)
}

// NewSubmissionResultRepository constructs a submission result repository.
func NewSubmissionResultRepository(db *gorm.DB) SubmissionResultRepository {
	return &submissionResultRepository{db: db}
}

type submissionResultRepository struct {
	db *gorm.DB
}

func (r *submissionResultRepository) UpsertBatch(ctx context.Context, results []models.SubmissionResult) error {
	if len(results) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}, {Name: "test_case_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"verdict", "passed", "time_ms", "memory_kb", "output", "error_message", "updated_at",
			}),
		}).
		Create(&results).Error
}

func (r *submissionResultRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionResult, error) {
	var results []models.SubmissionResult
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("test_case_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
