package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/pkg/judge"
)

func TestRedisProgressObserverPublishesPerSubmissionChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	observer := NewRedisProgressObserver(client, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "gema:judge:progress:42")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	observer.Observe(ctx, 42, judge.Progress{Completed: 1, Pending: 1, Total: 2, Percentage: 50})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event struct {
		SubmissionID uint `json:"submission_id"`
		judge.Progress
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, uint(42), event.SubmissionID)
	require.Equal(t, 1, event.Completed)
	require.Equal(t, 50.0, event.Percentage)
}

func TestRedisProgressObserverFallsBackWithoutClient(t *testing.T) {
	observer := NewRedisProgressObserver(nil, zerolog.Nop())
	// Logging-only observer; must not panic.
	observer.Observe(context.Background(), 1, judge.Progress{Total: 1})
	require.NotNil(t, observer)
}
