package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/repository"
)

// ProcessFunc runs the judging pipeline for one submission. The attempt
// counters let the processor decide when a retryable failure becomes final.
type ProcessFunc func(ctx context.Context, submissionID uint, attempt, maxAttempts int) error

// job is the durable queue payload. The message id equals the submission id,
// so the broker deduplicates re-enqueues inside its duplicate window.
type job struct {
	SubmissionID uint      `json:"submission_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Config holds the shared dispatcher/worker queue settings.
type Config struct {
	Stream         string
	Subject        string
	Durable        string
	Concurrency    int64
	RateLimit      int
	RateWindow     time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	AckWait        time.Duration
	DedupWindow    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = "GEMA_JUDGE"
	}
	if c.Subject == "" {
		c.Subject = "judge.submissions"
	}
	if c.Durable == "" {
		c.Durable = "judge-workers"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = time.Minute
	}
	if c.AckWait <= 0 {
		c.AckWait = 5 * time.Minute
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 10 * time.Minute
	}
	return c
}

// EnsureStream creates the work-queue stream when it does not exist yet.
func EnsureStream(js nats.JetStreamContext, cfg Config) error {
	cfg = cfg.withDefaults()

	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Retention:  nats.WorkQueuePolicy,
		Duplicates: cfg.DedupWindow,
	})
	if err != nil {
		return fmt.Errorf("add stream: %w", err)
	}
	return nil
}

// Dispatcher enqueues judging jobs. With JetStream available jobs are durable;
// without it the dispatcher degrades to fire-and-forget goroutines running the
// identical processing function with the identical retry policy.
type Dispatcher struct {
	js          nats.JetStreamContext
	guard       *ActiveGuard
	submissions repository.SubmissionRepository
	process     ProcessFunc
	logger      zerolog.Logger
	cfg         Config

	fallback sync.WaitGroup
}

// NewDispatcher constructs a dispatcher. js may be nil for degraded mode.
func NewDispatcher(js nats.JetStreamContext, guard *ActiveGuard, submissions repository.SubmissionRepository, process ProcessFunc, logger zerolog.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		js:          js,
		guard:       guard,
		submissions: submissions,
		process:     process,
		logger:      logger.With().Str("component", "queue_dispatcher").Logger(),
		cfg:         cfg.withDefaults(),
	}
}

// Enqueue transitions the submission to IN_QUEUE and appends a durable job
// keyed by its id. A submission that already holds the active-job lease is
// skipped: at most one active job per submission.
func (d *Dispatcher) Enqueue(ctx context.Context, submissionID uint) error {
	submission, err := d.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("load submission %d: %w", submissionID, err)
	}

	if err := submission.Enqueue(); err != nil {
		return err
	}
	if err := d.submissions.Update(ctx, &submission); err != nil {
		return fmt.Errorf("persist IN_QUEUE for submission %d: %w", submissionID, err)
	}

	if !d.guard.Acquire(ctx, submissionID) {
		d.logger.Debug().Uint("submission_id", submissionID).Msg("active job exists, skipping enqueue")
		return nil
	}

	payload, err := json.Marshal(job{SubmissionID: submissionID, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		d.guard.Release(ctx, submissionID)
		return fmt.Errorf("encode job: %w", err)
	}

	if d.js != nil {
		_, err := d.js.Publish(d.cfg.Subject, payload, nats.MsgId(fmt.Sprintf("submission-%d", submissionID)))
		if err == nil {
			return nil
		}
		d.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("durable enqueue failed, falling back to direct execution")
	}

	d.spawnDirect(ctx, submissionID)
	return nil
}

// spawnDirect runs the job on an independent execution context so the caller's
// request lifecycle cannot cancel it.
func (d *Dispatcher) spawnDirect(ctx context.Context, submissionID uint) {
	d.fallback.Add(1)
	taskCtx := detachedContext(ctx)

	go func() {
		defer d.fallback.Done()
		d.runWithRetry(taskCtx, submissionID)
	}()
}

// runWithRetry mirrors the durable queue's redelivery policy for the degraded
// path: same attempt budget, same exponential backoff, same failure logging.
func (d *Dispatcher) runWithRetry(ctx context.Context, submissionID uint) {
	defer d.guard.Release(ctx, submissionID)

	logger := d.logger.With().Uint("submission_id", submissionID).Logger()

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		err := d.process(ctx, submissionID, attempt, d.cfg.MaxAttempts)
		if err == nil {
			return
		}
		if IsPermanent(err) {
			logger.Error().Err(err).Int("attempt", attempt).Msg("direct job failed permanently")
			return
		}
		if attempt == d.cfg.MaxAttempts {
			logger.Error().Err(err).Int("attempt", attempt).Msg("direct job exhausted its retry budget")
			return
		}

		delay := backoffDelay(attempt, d.cfg.RetryBaseDelay, d.cfg.RetryMaxDelay)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("direct job failed, retrying")

		select {
		case <-ctx.Done():
			logger.Warn().Msg("direct job canceled during backoff")
			return
		case <-time.After(delay):
		}
	}
}

// Drain waits for in-flight fallback jobs up to the context deadline.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.fallback.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffDelay doubles the base delay per completed attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if max > 0 && delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// failSubmission marks a submission ERROR with the captured message.
// Terminal submissions are left untouched.
func failSubmission(ctx context.Context, submissions repository.SubmissionRepository, logger zerolog.Logger, submissionID uint, message string) {
	submission, err := submissions.GetByID(ctx, submissionID)
	if err != nil {
		logger.Error().Err(err).Uint("submission_id", submissionID).Msg("cannot load submission to record failure")
		return
	}
	if submission.IsTerminal() {
		return
	}
	if err := submission.MarkFailed(message); err != nil {
		logger.Error().Err(err).Uint("submission_id", submissionID).Msg("cannot transition submission to ERROR")
		return
	}
	if err := submissions.Update(ctx, &submission); err != nil {
		logger.Error().Err(err).Uint("submission_id", submissionID).Msg("cannot persist ERROR state")
	}
}

type detachedCtx struct {
	context.Context
	values context.Context
}

func (d detachedCtx) Value(key interface{}) interface{} {
	return d.values.Value(key)
}

// detachedContext keeps the parent's values (correlation id) but drops its
// cancellation, so background jobs outlive the originating request.
func detachedContext(parent context.Context) context.Context {
	return detachedCtx{Context: context.Background(), values: parent}
}
