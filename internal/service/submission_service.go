package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

// ErrUnsupportedLanguage indicates the submitted language is not allowed.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Enqueuer appends a durable judging job for a submission. Satisfied by
// queue.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, submissionID uint) error
}

// SubmissionService exposes submission intake and lookup.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionRequest) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id uint) (dto.SubmissionDetailResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	dispatcher  Enqueuer
	validator   *validator.Validate
	logger      zerolog.Logger
	languages   map[string]struct{}
}

// NewSubmissionService constructs the intake service.
func NewSubmissionService(submissions repository.SubmissionRepository, questions repository.QuestionRepository, dispatcher Enqueuer, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		questions:   questions,
		dispatcher:  dispatcher,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		languages: map[string]struct{}{
			"c":          {},
			"cpp":        {},
			"go":         {},
			"java":       {},
			"javascript": {},
			"python":     {},
		},
	}
}

// Submit persists a PENDING submission and hands it to the dispatcher.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if _, ok := s.languages[language]; !ok {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, payload.Language)
	}

	question, err := s.questions.GetByID(ctx, payload.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, fmt.Errorf("%w: %d", ErrQuestionNotFound, payload.QuestionID)
		}
		return dto.SubmissionResponse{}, err
	}
	if question.Kind != models.QuestionKindCode {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: kind %q", ErrQuestionNotJudgeable, question.Kind)
	}

	submission := models.Submission{
		StudentID:  payload.StudentID,
		QuestionID: payload.QuestionID,
		Source:     payload.Source,
		Language:   language,
		Status:     models.SubmissionStatusPending,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("create submission: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, submission.ID); err != nil {
		// The submission exists and stays PENDING; intake still succeeded from
		// the student's perspective, a later sweep can re-enqueue it.
		s.logger.Error().Err(err).Uint("submission_id", submission.ID).Msg("enqueue failed")
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, id uint) (dto.SubmissionDetailResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionDetailResponse{}, fmt.Errorf("%w: %d", ErrSubmissionNotFound, id)
		}
		return dto.SubmissionDetailResponse{}, err
	}
	return dto.NewSubmissionDetailResponse(submission), nil
}
