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
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/repository"
)

const fetchBatchSize = 8

// Worker pulls judging jobs from the durable queue and runs them through the
// processing function. In-flight jobs are bounded by a concurrency semaphore;
// job starts are bounded by a token-bucket rate limit so a burst of
// submissions cannot overload the judge backends.
type Worker struct {
	js          nats.JetStreamContext
	sub         *nats.Subscription
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
	guard       *ActiveGuard
	submissions repository.SubmissionRepository
	process     ProcessFunc
	logger      zerolog.Logger
	cfg         Config

	inFlight sync.WaitGroup
}

// NewWorker constructs a worker bound to the queue settings in cfg.
func NewWorker(js nats.JetStreamContext, guard *ActiveGuard, submissions repository.SubmissionRepository, process ProcessFunc, logger zerolog.Logger, cfg Config) *Worker {
	cfg = cfg.withDefaults()

	return &Worker{
		js:          js,
		sem:         semaphore.NewWeighted(cfg.Concurrency),
		limiter:     rate.NewLimiter(rate.Every(cfg.RateWindow/time.Duration(cfg.RateLimit)), cfg.RateLimit),
		guard:       guard,
		submissions: submissions,
		process:     process,
		logger:      logger.With().Str("component", "queue_worker").Logger(),
		cfg:         cfg,
	}
}

// Start creates the durable pull consumer and begins fetching jobs until ctx
// is canceled.
func (w *Worker) Start(ctx context.Context) error {
	if err := EnsureStream(w.js, w.cfg); err != nil {
		return err
	}

	sub, err := w.js.PullSubscribe(
		w.cfg.Subject,
		w.cfg.Durable,
		nats.AckWait(w.cfg.AckWait),
		nats.MaxDeliver(w.cfg.MaxAttempts),
		nats.BackOff(w.backoffSchedule()),
		nats.ManualAck(),
	)
	if err != nil {
		return fmt.Errorf("create pull consumer: %w", err)
	}
	w.sub = sub

	go w.loop(ctx)
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := w.sub.Fetch(fetchBatchSize, nats.MaxWait(2*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.Canceled) {
				continue
			}
			w.logger.Warn().Err(err).Msg("fetch failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			if err := w.limiter.Wait(ctx); err != nil {
				_ = msg.Nak()
				return
			}
			if err := w.sem.Acquire(ctx, 1); err != nil {
				_ = msg.Nak()
				return
			}

			w.inFlight.Add(1)
			go w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	defer w.inFlight.Done()
	defer w.sem.Release(1)

	var payload job
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		w.logger.Error().Err(err).Msg("discarding undecodable job payload")
		_ = msg.Term()
		return
	}

	attempt := 1
	if meta, err := msg.Metadata(); err == nil {
		attempt = int(meta.NumDelivered)
	}

	logger := w.logger.With().
		Uint("submission_id", payload.SubmissionID).
		Int("attempt", attempt).
		Logger()

	start := time.Now()
	err := w.process(ctx, payload.SubmissionID, attempt, w.cfg.MaxAttempts)
	observability.JobDuration().Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		observability.JobsProcessed().WithLabelValues("completed").Inc()
		_ = msg.Ack()
		w.guard.Release(ctx, payload.SubmissionID)

	case IsPermanent(err):
		observability.JobsProcessed().WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("job failed permanently")
		_ = msg.Term()
		w.guard.Release(ctx, payload.SubmissionID)

	case attempt >= w.cfg.MaxAttempts:
		observability.JobsProcessed().WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("job exhausted its retry budget")
		// Backstop: the processor marks ERROR on its final attempt, but a
		// processing function that crashed before doing so must not leave
		// the submission stuck in a non-terminal state.
		failSubmission(ctx, w.submissions, w.logger, payload.SubmissionID, err.Error())
		_ = msg.Term()
		w.guard.Release(ctx, payload.SubmissionID)

	default:
		observability.JobsProcessed().WithLabelValues("retried").Inc()
		logger.Warn().Err(err).Msg("job failed, queue will redeliver with backoff")
		_ = msg.Nak()
	}
}

// Drain stops fetching and waits for in-flight jobs up to the context
// deadline, after which it returns with the deadline error.
func (w *Worker) Drain(ctx context.Context) error {
	if w.sub != nil {
		if err := w.sub.Drain(); err != nil {
			w.logger.Warn().Err(err).Msg("consumer drain failed")
		}
	}

	done := make(chan struct{})
	go func() {
		w.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffSchedule expands the retry base delay into the per-redelivery delays
// JetStream applies after each Nak.
func (w *Worker) backoffSchedule() []time.Duration {
	steps := w.cfg.MaxAttempts - 1
	if steps < 1 {
		steps = 1
	}
	schedule := make([]time.Duration, steps)
	for i := range schedule {
		schedule[i] = backoffDelay(i+1, w.cfg.RetryBaseDelay, w.cfg.RetryMaxDelay)
	}
	return schedule
}
