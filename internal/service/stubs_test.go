package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/pkg/judge"
)

type stubSubmissionRepo struct {
	submissions map[uint]models.Submission
	best        map[uint]int
	getErr      error
	updateErr   error
	updates     []models.Submission
}

func newStubSubmissionRepo(submissions ...models.Submission) *stubSubmissionRepo {
	repo := &stubSubmissionRepo{submissions: make(map[uint]models.Submission)}
	for _, submission := range submissions {
		repo.submissions[submission.ID] = submission
	}
	return repo
}

func (s *stubSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == 0 {
		submission.ID = uint(len(s.submissions) + 1)
	}
	s.submissions[submission.ID] = *submission
	return nil
}

func (s *stubSubmissionRepo) Update(ctx context.Context, submission *models.Submission) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, *submission)
	s.submissions[submission.ID] = *submission
	return nil
}

func (s *stubSubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	if s.getErr != nil {
		return models.Submission{}, s.getErr
	}
	submission, ok := s.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (s *stubSubmissionRepo) BestScoreByQuestion(ctx context.Context, studentID uint, questionIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int)
	for _, id := range questionIDs {
		if score, ok := s.best[id]; ok {
			out[id] = score
		}
	}
	return out, nil
}

func (s *stubSubmissionRepo) statuses() []string {
	out := make([]string, 0, len(s.updates))
	for _, submission := range s.updates {
		out = append(out, submission.Status)
	}
	return out
}

type stubQuestionRepo struct {
	questions map[uint]models.Question
}

func newStubQuestionRepo(questions ...models.Question) *stubQuestionRepo {
	repo := &stubQuestionRepo{questions: make(map[uint]models.Question)}
	for _, question := range questions {
		repo.questions[question.ID] = question
	}
	return repo
}

func (s *stubQuestionRepo) GetByID(ctx context.Context, id uint) (models.Question, error) {
	question, ok := s.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return question, nil
}

type stubResultRepo struct {
	upserts   [][]models.SubmissionResult
	upsertErr error
}

func (s *stubResultRepo) UpsertBatch(ctx context.Context, results []models.SubmissionResult) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, results)
	return nil
}

func (s *stubResultRepo) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmissionResult, error) {
	var out []models.SubmissionResult
	for _, batch := range s.upserts {
		for _, result := range batch {
			if result.SubmissionID == submissionID {
				out = append(out, result)
			}
		}
	}
	return out, nil
}

type stubListRepo struct {
	lists map[uint]models.QuestionList
}

func newStubListRepo(lists ...models.QuestionList) *stubListRepo {
	repo := &stubListRepo{lists: make(map[uint]models.QuestionList)}
	for _, list := range lists {
		repo.lists[list.ID] = list
	}
	return repo
}

func (s *stubListRepo) GetByID(ctx context.Context, id uint) (models.QuestionList, error) {
	list, ok := s.lists[id]
	if !ok {
		return models.QuestionList{}, gorm.ErrRecordNotFound
	}
	return list, nil
}

func (s *stubListRepo) FindByQuestion(ctx context.Context, questionID uint) ([]models.QuestionList, error) {
	var out []models.QuestionList
	for _, list := range s.lists {
		if list.ContainsQuestion(questionID) {
			out = append(out, list)
		}
	}
	return out, nil
}

type gradeKey struct {
	studentID      uint
	questionListID uint
}

type stubGradeRepo struct {
	grades    map[gradeKey]models.Grade
	upserts   int
	upsertErr error
}

func newStubGradeRepo() *stubGradeRepo {
	return &stubGradeRepo{grades: make(map[gradeKey]models.Grade)}
}

func (s *stubGradeRepo) Upsert(ctx context.Context, grade *models.Grade) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	s.grades[gradeKey{grade.StudentID, grade.QuestionListID}] = *grade
	return nil
}

func (s *stubGradeRepo) Get(ctx context.Context, studentID, questionListID uint) (models.Grade, error) {
	grade, ok := s.grades[gradeKey{studentID, questionListID}]
	if !ok {
		return models.Grade{}, gorm.ErrRecordNotFound
	}
	return grade, nil
}

type recalcCall struct {
	studentID      uint
	questionListID uint
}

type stubGradeService struct {
	calls []recalcCall
	err   error
}

func (s *stubGradeService) Recalculate(ctx context.Context, studentID, questionListID uint) (models.Grade, error) {
	s.calls = append(s.calls, recalcCall{studentID, questionListID})
	if s.err != nil {
		return models.Grade{}, s.err
	}
	return models.Grade{StudentID: studentID, QuestionListID: questionListID}, nil
}

func (s *stubGradeService) Get(ctx context.Context, studentID, questionListID uint) (models.Grade, error) {
	return models.Grade{}, gorm.ErrRecordNotFound
}

type stubAdapter struct {
	tokens    []string
	statuses  []judge.Status
	submitErr error
	waitErr   error

	submitted   []judge.Item
	limits      judge.Limits
	submitCalls int
	waitCalls   int
}

func (s *stubAdapter) SubmitBatch(ctx context.Context, items []judge.Item, limits judge.Limits) ([]string, error) {
	s.submitCalls++
	s.submitted = items
	s.limits = limits
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	if len(s.tokens) > 0 {
		return s.tokens, nil
	}
	tokens := make([]string, len(items))
	for i := range tokens {
		tokens[i] = "tok"
	}
	return tokens, nil
}

func (s *stubAdapter) GetStatus(ctx context.Context, token string) (judge.Status, error) {
	return judge.Status{}, nil
}

func (s *stubAdapter) WaitForBatch(ctx context.Context, tokens []string, maxAttempts int, interval time.Duration, onProgress judge.ProgressFunc) ([]judge.Status, error) {
	s.waitCalls++
	if s.waitErr != nil {
		return nil, s.waitErr
	}
	if onProgress != nil {
		onProgress(judge.Progress{Completed: len(tokens), Total: len(tokens), Percentage: 100})
	}
	return s.statuses, nil
}
