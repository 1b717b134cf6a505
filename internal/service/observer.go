package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/pkg/judge"
)

// ProgressObserver receives incremental batch progress while a submission is
// being judged.
type ProgressObserver interface {
	Observe(ctx context.Context, submissionID uint, progress judge.Progress)
}

// NewLogProgressObserver returns an observer that only logs progress.
func NewLogProgressObserver(logger zerolog.Logger) ProgressObserver {
	return &logProgressObserver{
		logger: logger.With().Str("component", "progress_observer").Logger(),
	}
}

type logProgressObserver struct {
	logger zerolog.Logger
}

func (o *logProgressObserver) Observe(ctx context.Context, submissionID uint, progress judge.Progress) {
	o.logger.Debug().
		Uint("submission_id", submissionID).
		Int("completed", progress.Completed).
		Int("pending", progress.Pending).
		Int("total", progress.Total).
		Float64("percentage", progress.Percentage).
		Msg("judging progress")
}

// NewRedisProgressObserver returns an observer that publishes progress to a
// per-submission redis channel (consumed by the main API for live updates) and
// logs it. A nil client falls back to logging only.
func NewRedisProgressObserver(client *redis.Client, logger zerolog.Logger) ProgressObserver {
	if client == nil {
		return NewLogProgressObserver(logger)
	}
	return &redisProgressObserver{
		client: client,
		logger: logger.With().Str("component", "progress_observer").Logger(),
	}
}

type redisProgressObserver struct {
	client *redis.Client
	logger zerolog.Logger
}

type progressEvent struct {
	SubmissionID uint `json:"submission_id"`
	judge.Progress
}

func (o *redisProgressObserver) Observe(ctx context.Context, submissionID uint, progress judge.Progress) {
	payload, err := json.Marshal(progressEvent{SubmissionID: submissionID, Progress: progress})
	if err != nil {
		return
	}

	channel := fmt.Sprintf("gema:judge:progress:%d", submissionID)
	if err := o.client.Publish(ctx, channel, payload).Err(); err != nil {
		o.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("progress publish failed")
	}
}
