package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/queue"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/judge"
)

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrQuestionNotFound indicates the submission's question cannot be located.
var ErrQuestionNotFound = errors.New("question not found")

// ErrQuestionNotJudgeable indicates the question kind is not batch judgeable.
var ErrQuestionNotJudgeable = errors.New("question is not batch judgeable")

// ErrNoTestCases indicates the question carries no test cases to judge against.
var ErrNoTestCases = errors.New("question has no test cases")

// ProcessorConfig holds the polling budget for judge batches.
type ProcessorConfig struct {
	PollMaxAttempts int
	PollInterval    time.Duration
}

// Processor runs the end-to-end judging pipeline for one submission per job:
// load, dispatch the batch, poll to completion, persist per-test results and
// the final state, then trigger grading best-effort.
type Processor struct {
	submissions repository.SubmissionRepository
	questions   repository.QuestionRepository
	results     repository.SubmissionResultRepository
	lists       repository.QuestionListRepository
	grades      GradeService
	judges      *judge.Registry
	observer    ProgressObserver
	logger      zerolog.Logger
	cfg         ProcessorConfig
}

// NewProcessor constructs the judging orchestrator.
func NewProcessor(
	submissions repository.SubmissionRepository,
	questions repository.QuestionRepository,
	results repository.SubmissionResultRepository,
	lists repository.QuestionListRepository,
	grades GradeService,
	judges *judge.Registry,
	observer ProgressObserver,
	logger zerolog.Logger,
	cfg ProcessorConfig,
) *Processor {
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if observer == nil {
		observer = NewLogProgressObserver(logger)
	}

	return &Processor{
		submissions: submissions,
		questions:   questions,
		results:     results,
		lists:       lists,
		grades:      grades,
		judges:      judges,
		observer:    observer,
		logger:      logger.With().Str("component", "submission_processor").Logger(),
		cfg:         cfg,
	}
}

// Process judges one submission. It satisfies queue.ProcessFunc: retryable
// failures are returned as-is so the queue redelivers with backoff, while
// validation and not-found failures come back wrapped as permanent. The
// submission is marked ERROR when the failure is permanent or the attempt
// budget is spent, so it can never stay stuck in RUNNING.
func (p *Processor) Process(ctx context.Context, submissionID uint, attempt, maxAttempts int) error {
	tracer := otel.Tracer("github.com/noah-isme/gema-judge/internal/service/processor")
	ctx, span := tracer.Start(ctx, "submission.process")
	span.SetAttributes(
		attribute.Int64("submission.id", int64(submissionID)),
		attribute.Int("submission.attempt", attempt),
	)
	defer span.End()

	logger := p.logger.With().
		Uint("submission_id", submissionID).
		Int("attempt", attempt).
		Logger()

	submission, err := p.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "submission_not_found")
			return queue.Permanent(fmt.Errorf("%w: %d", ErrSubmissionNotFound, submissionID))
		}
		return fmt.Errorf("load submission %d: %w", submissionID, err)
	}

	// At-least-once delivery: a redelivered job for a finished submission is
	// simply done.
	if submission.IsTerminal() {
		logger.Info().Str("status", submission.Status).Msg("submission already terminal, skipping")
		return nil
	}

	if err := p.run(ctx, &submission, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "judging_failed")

		permanent := isPermanentFailure(err)
		if permanent || attempt >= maxAttempts {
			p.fail(ctx, &submission, err, logger)
		} else {
			logger.Warn().Err(err).Msg("judging attempt failed, awaiting redelivery")
		}
		if permanent {
			return queue.Permanent(err)
		}
		return err
	}

	p.triggerGrading(ctx, submission, logger)
	return nil
}

// run executes the pipeline steps against a loaded, non-terminal submission.
// Panics are converted into errors so the caller's failure path always runs.
func (p *Processor) run(ctx context.Context, submission *models.Submission, logger zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected panic while judging: %v", r)
		}
	}()

	question, err := p.questions.GetByID(ctx, submission.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrQuestionNotFound, submission.QuestionID)
		}
		return fmt.Errorf("load question %d: %w", submission.QuestionID, err)
	}

	if question.Kind != models.QuestionKindCode {
		return fmt.Errorf("%w: kind %q", ErrQuestionNotJudgeable, question.Kind)
	}
	if len(question.TestCases) == 0 {
		return fmt.Errorf("%w: question %d", ErrNoTestCases, question.ID)
	}

	adapter, err := p.judges.Lookup(question.JudgeKind)
	if err != nil {
		return err
	}

	// Redelivered jobs may find the submission already PROCESSING or RUNNING
	// from the failed attempt; the pipeline re-enters without a transition.
	if submission.IsWaiting() {
		if err := submission.MarkProcessing(); err != nil {
			return err
		}
		if err := p.submissions.Update(ctx, submission); err != nil {
			return fmt.Errorf("persist PROCESSING: %w", err)
		}
	}

	items := make([]judge.Item, 0, len(question.TestCases))
	for _, testCase := range question.TestCases {
		items = append(items, judge.Item{
			Source:         submission.Source,
			Language:       submission.Language,
			Stdin:          testCase.Input,
			ExpectedOutput: testCase.ExpectedOutput,
		})
	}
	limits := judge.Limits{
		CPUTimeMs: question.CPUTimeMs,
		MemoryKB:  question.MemoryKB,
		WallTimeS: question.WallTimeS,
	}

	tokens, err := adapter.SubmitBatch(ctx, items, limits)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}

	if submission.Status == models.SubmissionStatusProcessing {
		if err := submission.MarkRunning(); err != nil {
			return err
		}
		if err := p.submissions.Update(ctx, submission); err != nil {
			return fmt.Errorf("persist RUNNING: %w", err)
		}
	}

	pollRounds := 0
	statuses, err := adapter.WaitForBatch(ctx, tokens, p.cfg.PollMaxAttempts, p.cfg.PollInterval, func(progress judge.Progress) {
		pollRounds++
		p.observer.Observe(ctx, submission.ID, progress)
	})
	if err != nil {
		return fmt.Errorf("wait for batch: %w", err)
	}
	observability.PollRounds().Observe(float64(pollRounds))

	if len(statuses) != len(question.TestCases) {
		return fmt.Errorf("%w: %d statuses for %d test cases", judge.ErrBackend, len(statuses), len(question.TestCases))
	}

	outcome := aggregateResults(submission.ID, question.TestCases, statuses)

	if err := p.results.UpsertBatch(ctx, outcome.results); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}

	if err := submission.MarkCompleted(outcome.passed, len(question.TestCases)); err != nil {
		return err
	}
	// Test cases carry weights; the weighted percentage replaces the plain
	// passed/total ratio when weights are uneven.
	submission.Score = outcome.score
	submission.Verdict = outcome.verdict
	submission.ErrorMessage = outcome.errorMessage
	submission.ExecutionTimeMs = outcome.totalTimeMs
	submission.MemoryUsedKB = outcome.maxMemoryKB

	if err := p.submissions.Update(ctx, submission); err != nil {
		return fmt.Errorf("persist COMPLETED: %w", err)
	}

	logger.Info().
		Str("verdict", outcome.verdict).
		Int("score", outcome.score).
		Int("passed", outcome.passed).
		Int("total", len(question.TestCases)).
		Msg("submission judged")
	return nil
}

type batchOutcome struct {
	results      []models.SubmissionResult
	passed       int
	score        int
	verdict      string
	errorMessage string
	totalTimeMs  *int64
	maxMemoryKB  *int64
}

// aggregateResults derives per-test-case rows and the submission-level verdict,
// score, timing and memory from the terminal batch statuses. Any compilation
// error short-circuits the whole submission's verdict.
func aggregateResults(submissionID uint, testCases []models.TestCase, statuses []judge.Status) batchOutcome {
	outcome := batchOutcome{
		results: make([]models.SubmissionResult, 0, len(testCases)),
		verdict: judge.VerdictAccepted,
	}

	var (
		weightPassed, weightTotal float64
		totalTime                 int64
		maxMemory                 int64
		haveTime, haveMemory      bool
		firstFailing              string
		compilationError          bool
	)

	for i, testCase := range testCases {
		status := statuses[i]
		passed, verdict := judge.Evaluate(status, testCase.ExpectedOutput)
		if verdict == judge.VerdictCompilationError {
			compilationError = true
		}

		weight := testCase.Weight
		if weight < 0 {
			weight = 0
		}
		weightTotal += weight
		if passed {
			outcome.passed++
			weightPassed += weight
		} else if firstFailing == "" {
			firstFailing = verdict
			outcome.errorMessage = status.ErrorMessage
		}

		outcome.results = append(outcome.results, models.SubmissionResult{
			SubmissionID: submissionID,
			TestCaseID:   testCase.ID,
			Verdict:      verdict,
			Passed:       passed,
			TimeMs:       status.TimeMs,
			MemoryKB:     status.MemoryKB,
			Output:       status.Output,
			ErrorMessage: status.ErrorMessage,
		})

		if status.TimeMs != nil {
			totalTime += *status.TimeMs
			haveTime = true
		}
		if status.MemoryKB != nil {
			if !haveMemory || *status.MemoryKB > maxMemory {
				maxMemory = *status.MemoryKB
			}
			haveMemory = true
		}
	}

	switch {
	case compilationError:
		outcome.verdict = judge.VerdictCompilationError
	case firstFailing != "":
		outcome.verdict = firstFailing
	}

	if weightTotal > 0 {
		outcome.score = int(math.Round(100 * weightPassed / weightTotal))
	}
	if outcome.score < 0 {
		outcome.score = 0
	}
	if outcome.score > 100 {
		outcome.score = 100
	}

	if haveTime {
		outcome.totalTimeMs = &totalTime
	}
	if haveMemory {
		outcome.maxMemoryKB = &maxMemory
	}

	return outcome
}

// triggerGrading recomputes the grade of every list containing the question.
// Grading is best-effort relative to judging: failures are logged, never
// propagated to the finished submission.
func (p *Processor) triggerGrading(ctx context.Context, submission models.Submission, logger zerolog.Logger) {
	lists, err := p.lists.FindByQuestion(ctx, submission.QuestionID)
	if err != nil {
		observability.GradeRecalcs().WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("cannot locate question lists for grading")
		return
	}

	for _, list := range lists {
		if _, err := p.grades.Recalculate(ctx, submission.StudentID, list.ID); err != nil {
			observability.GradeRecalcs().WithLabelValues("error").Inc()
			logger.Error().Err(err).Uint("question_list_id", list.ID).Msg("grade recalculation failed")
			continue
		}
		observability.GradeRecalcs().WithLabelValues("ok").Inc()
	}
}

func (p *Processor) fail(ctx context.Context, submission *models.Submission, cause error, logger zerolog.Logger) {
	if submission.IsTerminal() {
		return
	}
	if err := submission.MarkFailed(cause.Error()); err != nil {
		logger.Error().Err(err).Msg("cannot transition submission to ERROR")
		return
	}
	if err := p.submissions.Update(ctx, submission); err != nil {
		logger.Error().Err(err).Msg("cannot persist ERROR state")
		return
	}
	logger.Error().Err(cause).Msg("submission marked as failed")
}

func isPermanentFailure(err error) bool {
	return errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrQuestionNotJudgeable) ||
		errors.Is(err, ErrNoTestCases) ||
		errors.Is(err, judge.ErrUnknownBackend) ||
		errors.Is(err, judge.ErrUnsupportedLanguage) ||
		errors.Is(err, models.ErrStateConflict)
}
