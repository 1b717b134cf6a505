package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueOnlyFromPending(t *testing.T) {
	submission := Submission{Status: SubmissionStatusPending}
	require.NoError(t, submission.Enqueue())
	require.Equal(t, SubmissionStatusInQueue, submission.Status)

	for _, status := range []string{
		SubmissionStatusInQueue,
		SubmissionStatusProcessing,
		SubmissionStatusRunning,
		SubmissionStatusCompleted,
		SubmissionStatusError,
	} {
		submission := Submission{Status: status}
		err := submission.Enqueue()
		require.ErrorIs(t, err, ErrStateConflict, "enqueue from %s", status)
		require.Equal(t, status, submission.Status)
	}
}

func TestMarkProcessingFromWaitingStates(t *testing.T) {
	for _, status := range []string{SubmissionStatusPending, SubmissionStatusInQueue} {
		submission := Submission{Status: status}
		require.NoError(t, submission.MarkProcessing())
		require.Equal(t, SubmissionStatusProcessing, submission.Status)
	}

	for _, status := range []string{
		SubmissionStatusProcessing,
		SubmissionStatusRunning,
		SubmissionStatusCompleted,
		SubmissionStatusError,
	} {
		submission := Submission{Status: status}
		require.ErrorIs(t, submission.MarkProcessing(), ErrStateConflict)
	}
}

func TestMarkRunningRequiresProcessing(t *testing.T) {
	submission := Submission{Status: SubmissionStatusProcessing}
	require.NoError(t, submission.MarkRunning())
	require.Equal(t, SubmissionStatusRunning, submission.Status)

	submission = Submission{Status: SubmissionStatusPending}
	require.ErrorIs(t, submission.MarkRunning(), ErrStateConflict)
}

func TestMarkCompletedComputesScore(t *testing.T) {
	cases := []struct {
		passed, total, score int
	}{
		{0, 0, 0},
		{3, 3, 100},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{0, 5, 0},
	}

	for _, tc := range cases {
		submission := Submission{Status: SubmissionStatusRunning}
		require.NoError(t, submission.MarkCompleted(tc.passed, tc.total))
		require.Equal(t, SubmissionStatusCompleted, submission.Status)
		require.Equal(t, tc.score, submission.Score, "passed=%d total=%d", tc.passed, tc.total)
		require.Equal(t, tc.passed, submission.PassedTests)
		require.Equal(t, tc.total, submission.TotalTests)
	}
}

func TestMarkCompletedRejectsInvalidCounts(t *testing.T) {
	submission := Submission{Status: SubmissionStatusRunning}
	require.Error(t, submission.MarkCompleted(4, 3))
	require.Equal(t, SubmissionStatusRunning, submission.Status)
}

func TestMarkFailedFromAnyNonTerminalState(t *testing.T) {
	for _, status := range []string{
		SubmissionStatusPending,
		SubmissionStatusInQueue,
		SubmissionStatusProcessing,
		SubmissionStatusRunning,
	} {
		submission := Submission{Status: status}
		require.NoError(t, submission.MarkFailed("judge backend unreachable"))
		require.Equal(t, SubmissionStatusError, submission.Status)
		require.Equal(t, "judge backend unreachable", submission.ErrorMessage)
	}
}

func TestTerminalStatesRejectAllTransitions(t *testing.T) {
	for _, status := range []string{SubmissionStatusCompleted, SubmissionStatusError} {
		submission := Submission{Status: status}
		require.ErrorIs(t, submission.MarkCompleted(1, 1), ErrStateConflict)
		require.ErrorIs(t, submission.MarkFailed("late failure"), ErrStateConflict)
		require.ErrorIs(t, submission.MarkProcessing(), ErrStateConflict)
		require.Equal(t, status, submission.Status)
	}
}

func TestRatioScoreBounds(t *testing.T) {
	require.Equal(t, 0, RatioScore(0, 0))
	require.Equal(t, 100, RatioScore(10, 10))
	require.Equal(t, 17, RatioScore(1, 6))
}
