package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

// ErrQuestionListNotFound indicates the scored list cannot be located.
var ErrQuestionListNotFound = errors.New("question list not found")

// ErrGradeNotFound indicates no grade row exists for the (student, list) pair.
var ErrGradeNotFound = errors.New("grade not found")

// GradeService computes and stores a student's grade for a question list.
type GradeService interface {
	// Recalculate derives the grade from the student's current best submission
	// scores and upserts the (student, list) row. It is idempotent: unchanged
	// submissions yield an identical grade.
	Recalculate(ctx context.Context, studentID, questionListID uint) (models.Grade, error)
	Get(ctx context.Context, studentID, questionListID uint) (models.Grade, error)
}

type gradeService struct {
	lists       repository.QuestionListRepository
	submissions repository.SubmissionRepository
	grades      repository.GradeRepository
	logger      zerolog.Logger
}

// NewGradeService constructs the grade aggregator.
func NewGradeService(lists repository.QuestionListRepository, submissions repository.SubmissionRepository, grades repository.GradeRepository, logger zerolog.Logger) GradeService {
	return &gradeService{
		lists:       lists,
		submissions: submissions,
		grades:      grades,
		logger:      logger.With().Str("component", "grade_service").Logger(),
	}
}

func (s *gradeService) Recalculate(ctx context.Context, studentID, questionListID uint) (models.Grade, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-judge/internal/service/grade")
	ctx, span := tracer.Start(ctx, "grade.recalculate")
	span.SetAttributes(
		attribute.Int64("grade.student_id", int64(studentID)),
		attribute.Int64("grade.question_list_id", int64(questionListID)),
	)
	defer span.End()

	list, err := s.lists.GetByID(ctx, questionListID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "list_not_found")
			return models.Grade{}, fmt.Errorf("%w: %d", ErrQuestionListNotFound, questionListID)
		}
		return models.Grade{}, fmt.Errorf("load question list %d: %w", questionListID, err)
	}

	questionIDs, err := list.AllQuestionIDs()
	if err != nil {
		return models.Grade{}, err
	}

	best, err := s.submissions.BestScoreByQuestion(ctx, studentID, questionIDs)
	if err != nil {
		return models.Grade{}, fmt.Errorf("load best scores: %w", err)
	}

	maxScore := list.MaxScore
	if maxScore <= 0 {
		maxScore = 100
	}

	var score int
	switch list.ScoringMode {
	case models.ScoringModeGroups:
		score = groupsScore(list, best, maxScore)
	default:
		score = simpleScore(list, questionIDs, best, maxScore)
	}

	grade := models.Grade{
		StudentID:      studentID,
		QuestionListID: questionListID,
		Score:          score,
	}
	if err := s.grades.Upsert(ctx, &grade); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_upsert_failed")
		return models.Grade{}, fmt.Errorf("upsert grade: %w", err)
	}

	s.logger.Info().
		Uint("student_id", studentID).
		Uint("question_list_id", questionListID).
		Int("score", score).
		Msg("grade recalculated")
	return grade, nil
}

func (s *gradeService) Get(ctx context.Context, studentID, questionListID uint) (models.Grade, error) {
	grade, err := s.grades.Get(ctx, studentID, questionListID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Grade{}, ErrGradeNotFound
		}
		return models.Grade{}, err
	}
	return grade, nil
}

// simpleScore averages the K highest per-question best scores, where K is the
// list's minimum-questions setting or the full question count.
func simpleScore(list models.QuestionList, questionIDs []uint, best map[uint]int, maxScore int) int {
	if len(questionIDs) == 0 {
		return 0
	}

	scores := make([]int, 0, len(questionIDs))
	for _, id := range questionIDs {
		scores = append(scores, best[id])
	}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))

	k := len(scores)
	if list.MinQuestionsForMax != nil && *list.MinQuestionsForMax > 0 && *list.MinQuestionsForMax < k {
		k = *list.MinQuestionsForMax
	}

	var sum int
	for _, score := range scores[:k] {
		sum += score
	}
	average := float64(sum) / float64(k)
	return clampScore(math.Round(average/100*float64(maxScore)), maxScore)
}

// groupsScore weight-averages per-group maxima. A weighted group without
// attempted questions contributes zero, it is not excluded.
func groupsScore(list models.QuestionList, best map[uint]int, maxScore int) int {
	var weightSum, weightedScore float64
	for _, group := range list.Groups {
		weight := group.Weight
		if weight < 0 {
			weight = 0
		}
		weightSum += weight

		ids, err := group.DecodeQuestionIDs()
		if err != nil {
			continue
		}
		groupBest := 0
		for _, id := range ids {
			if score := best[id]; score > groupBest {
				groupBest = score
			}
		}
		weightedScore += weight * float64(groupBest)
	}

	if weightSum == 0 {
		return 0
	}
	return clampScore(math.Round(weightedScore/weightSum/100*float64(maxScore)), maxScore)
}

func clampScore(value float64, maxScore int) int {
	score := int(value)
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
