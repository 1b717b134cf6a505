package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
)

type stubEnqueuer struct {
	ids []uint
	err error
}

func (s *stubEnqueuer) Enqueue(ctx context.Context, submissionID uint) error {
	s.ids = append(s.ids, submissionID)
	return s.err
}

func newTestSubmissionService(submissions *stubSubmissionRepo, questions *stubQuestionRepo, enqueuer *stubEnqueuer) SubmissionService {
	return NewSubmissionService(submissions, questions, enqueuer, validator.New(), zerolog.Nop())
}

func TestSubmitCreatesPendingAndEnqueues(t *testing.T) {
	submissions := newStubSubmissionRepo()
	questions := newStubQuestionRepo(codeQuestion(2, models.TestCase{ID: 10}))
	enqueuer := &stubEnqueuer{}
	service := newTestSubmissionService(submissions, questions, enqueuer)

	resp, err := service.Submit(context.Background(), dto.SubmissionRequest{
		StudentID:  7,
		QuestionID: 2,
		Language:   "Python",
		Source:     "print(1)",
	})
	require.NoError(t, err)
	require.NotZero(t, resp.ID)
	require.Equal(t, models.SubmissionStatusPending, resp.Status)
	// Languages are normalised on intake.
	require.Equal(t, "python", resp.Language)
	require.Equal(t, []uint{resp.ID}, enqueuer.ids)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	service := newTestSubmissionService(newStubSubmissionRepo(), newStubQuestionRepo(), &stubEnqueuer{})

	_, err := service.Submit(context.Background(), dto.SubmissionRequest{StudentID: 7})
	require.Error(t, err)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestSubmitRejectsUnknownLanguage(t *testing.T) {
	service := newTestSubmissionService(newStubSubmissionRepo(), newStubQuestionRepo(), &stubEnqueuer{})

	_, err := service.Submit(context.Background(), dto.SubmissionRequest{
		StudentID:  7,
		QuestionID: 2,
		Language:   "pascal",
		Source:     "begin end.",
	})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestSubmitRejectsUnknownQuestion(t *testing.T) {
	service := newTestSubmissionService(newStubSubmissionRepo(), newStubQuestionRepo(), &stubEnqueuer{})

	_, err := service.Submit(context.Background(), dto.SubmissionRequest{
		StudentID:  7,
		QuestionID: 2,
		Language:   "go",
		Source:     "package main",
	})
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestSubmitRejectsQuizQuestions(t *testing.T) {
	questions := newStubQuestionRepo(models.Question{ID: 2, Kind: models.QuestionKindQuiz})
	service := newTestSubmissionService(newStubSubmissionRepo(), questions, &stubEnqueuer{})

	_, err := service.Submit(context.Background(), dto.SubmissionRequest{
		StudentID:  7,
		QuestionID: 2,
		Language:   "go",
		Source:     "package main",
	})
	require.ErrorIs(t, err, ErrQuestionNotJudgeable)
}

func TestSubmitSucceedsWhenEnqueueFails(t *testing.T) {
	submissions := newStubSubmissionRepo()
	questions := newStubQuestionRepo(codeQuestion(2, models.TestCase{ID: 10}))
	enqueuer := &stubEnqueuer{err: errors.New("queue unavailable")}
	service := newTestSubmissionService(submissions, questions, enqueuer)

	resp, err := service.Submit(context.Background(), dto.SubmissionRequest{
		StudentID:  7,
		QuestionID: 2,
		Language:   "go",
		Source:     "package main",
	})
	require.NoError(t, err)

	// The submission stays PENDING so a sweep can pick it up later.
	require.Equal(t, models.SubmissionStatusPending, submissions.submissions[resp.ID].Status)
}

func TestGetSubmissionDetail(t *testing.T) {
	timeMs := int64(120)
	submissions := newStubSubmissionRepo(models.Submission{
		ID:          1,
		StudentID:   7,
		QuestionID:  2,
		Language:    "go",
		Status:      models.SubmissionStatusCompleted,
		Score:       100,
		PassedTests: 1,
		TotalTests:  1,
		Verdict:     "Accepted",
		Results: []models.SubmissionResult{
			{TestCaseID: 10, Verdict: "Accepted", Passed: true, TimeMs: &timeMs},
		},
	})
	service := newTestSubmissionService(submissions, newStubQuestionRepo(), &stubEnqueuer{})

	detail, err := service.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 100, detail.Score)
	require.Len(t, detail.Results, 1)
	require.Equal(t, uint(10), detail.Results[0].TestCaseID)
	require.True(t, detail.Results[0].Passed)
}

func TestGetSubmissionNotFound(t *testing.T) {
	service := newTestSubmissionService(newStubSubmissionRepo(), newStubQuestionRepo(), &stubEnqueuer{})

	_, err := service.Get(context.Background(), 99)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
