package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func encodeField(value string) *string {
	encoded := base64.StdEncoding.EncodeToString([]byte(value))
	return &encoded
}

func TestSandboxSubmitBatchEncodesPayload(t *testing.T) {
	var captured sandboxBatchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/submissions/batch", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("base64_encoded"))
		require.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		tokens := make([]sandboxToken, len(captured.Submissions))
		for i := range tokens {
			tokens[i] = sandboxToken{Token: "tok-" + string(rune('a'+i))}
		}
		require.NoError(t, json.NewEncoder(w).Encode(tokens))
	}))
	defer server.Close()

	client := NewSandboxClient(SandboxConfig{BaseURL: server.URL, AuthToken: "secret"}, zerolog.Nop())

	items := []Item{
		{Source: "print(input())", Language: "python", Stdin: "1\n", ExpectedOutput: "1\n"},
		{Source: "package main", Language: "go"},
	}
	tokens, err := client.SubmitBatch(context.Background(), items, Limits{CPUTimeMs: 2000, MemoryKB: 128000, WallTimeS: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"tok-a", "tok-b"}, tokens)

	require.Len(t, captured.Submissions, 2)
	first := captured.Submissions[0]
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("print(input())")), first.SourceCode)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("1\n")), first.Stdin)
	require.Equal(t, 71, first.LanguageID)
	require.Equal(t, 2.0, first.CPUTimeLimit)
	require.Equal(t, 128000, first.MemoryLimit)
	require.Equal(t, 10.0, first.WallTimeLimit)
	require.Equal(t, 60, captured.Submissions[1].LanguageID)
}

func TestSandboxSubmitBatchUnsupportedLanguage(t *testing.T) {
	client := NewSandboxClient(SandboxConfig{BaseURL: "http://sandbox.invalid"}, zerolog.Nop())
	_, err := client.SubmitBatch(context.Background(), []Item{{Language: "cobol"}}, Limits{})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestSandboxSubmitBatchTokenCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode([]sandboxToken{{Token: "only-one"}}))
	}))
	defer server.Close()

	client := NewSandboxClient(SandboxConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := client.SubmitBatch(context.Background(), []Item{{Language: "go"}, {Language: "go"}}, Limits{})
	require.ErrorIs(t, err, ErrBackend)
}

func TestSandboxStatusMapping(t *testing.T) {
	cases := []struct {
		statusID int
		verdict  string
		terminal bool
	}{
		{sandboxStatusInQueue, "", false},
		{sandboxStatusProcessing, "", false},
		{sandboxStatusAccepted, VerdictAccepted, true},
		{sandboxStatusWrongAnswer, VerdictWrongAnswer, true},
		{sandboxStatusTimeLimit, VerdictTimeLimitExceeded, true},
		{sandboxStatusCompilationError, VerdictCompilationError, true},
		{sandboxStatusRuntimeSIGKILL, VerdictMemoryLimitExceeded, true},
		{sandboxStatusRuntimeSIGSEGV, VerdictRuntimeError, true},
		{sandboxStatusRuntimeNZEC, VerdictRuntimeError, true},
		{sandboxStatusInternalError, VerdictInternalError, true},
		{99, VerdictJudgeError, true},
	}

	client := NewSandboxClient(SandboxConfig{BaseURL: "http://sandbox.invalid"}, zerolog.Nop())
	for _, tc := range cases {
		var raw sandboxStatus
		raw.Status.ID = tc.statusID
		st := client.mapStatus(raw)
		require.Equal(t, tc.verdict, st.Verdict, "status id %d", tc.statusID)
		require.Equal(t, tc.terminal, st.Terminal, "status id %d", tc.statusID)
	}
}

func TestSandboxStatusDecodesTransportFields(t *testing.T) {
	client := NewSandboxClient(SandboxConfig{BaseURL: "http://sandbox.invalid"}, zerolog.Nop())

	seconds := "0.42"
	memory := 2048.0
	var raw sandboxStatus
	raw.Status.ID = sandboxStatusWrongAnswer
	raw.Stdout = encodeField("41\n")
	raw.Stderr = encodeField("warning: something")
	raw.Time = &seconds
	raw.Memory = &memory

	st := client.mapStatus(raw)
	require.Equal(t, "41\n", st.Output)
	require.Equal(t, "warning: something", st.ErrorMessage)
	require.NotNil(t, st.TimeMs)
	require.Equal(t, int64(420), *st.TimeMs)
	require.NotNil(t, st.MemoryKB)
	require.Equal(t, int64(2048), *st.MemoryKB)
}

func TestSandboxStatusPrefersCompileOutput(t *testing.T) {
	client := NewSandboxClient(SandboxConfig{BaseURL: "http://sandbox.invalid"}, zerolog.Nop())

	var raw sandboxStatus
	raw.Status.ID = sandboxStatusCompilationError
	raw.Stderr = encodeField("ignored")
	raw.CompileOutput = encodeField("main.c:1: error: expected ';'")

	st := client.mapStatus(raw)
	require.Equal(t, VerdictCompilationError, st.Verdict)
	require.Equal(t, "main.c:1: error: expected ';'", st.ErrorMessage)
}

func TestSandboxWaitForBatchPollsUntilTerminal(t *testing.T) {
	rounds := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rounds++
		var batch sandboxBatchStatus
		first := sandboxStatus{Stdout: encodeField("ok")}
		first.Status.ID = sandboxStatusAccepted
		second := sandboxStatus{}
		if rounds < 3 {
			second.Status.ID = sandboxStatusProcessing
		} else {
			second.Status.ID = sandboxStatusWrongAnswer
		}
		batch.Submissions = []sandboxStatus{first, second}
		require.NoError(t, json.NewEncoder(w).Encode(batch))
	}))
	defer server.Close()

	client := NewSandboxClient(SandboxConfig{BaseURL: server.URL}, zerolog.Nop())

	var progress []Progress
	statuses, err := client.WaitForBatch(context.Background(), []string{"a", "b"}, 5, time.Millisecond, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Equal(t, 3, rounds)
	require.Equal(t, VerdictAccepted, statuses[0].Verdict)
	require.Equal(t, VerdictWrongAnswer, statuses[1].Verdict)

	require.Len(t, progress, 3)
	require.Equal(t, Progress{Completed: 1, Pending: 1, Total: 2, Percentage: 50}, progress[0])
	require.Equal(t, Progress{Completed: 2, Pending: 0, Total: 2, Percentage: 100}, progress[2])
}

func TestSandboxWaitForBatchExhaustsAttemptBudget(t *testing.T) {
	rounds := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rounds++
		var batch sandboxBatchStatus
		pending := sandboxStatus{}
		pending.Status.ID = sandboxStatusInQueue
		batch.Submissions = []sandboxStatus{pending}
		require.NoError(t, json.NewEncoder(w).Encode(batch))
	}))
	defer server.Close()

	client := NewSandboxClient(SandboxConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := client.WaitForBatch(context.Background(), []string{"a"}, 4, time.Millisecond, nil)
	require.ErrorIs(t, err, ErrPollTimeout)
	require.Equal(t, 4, rounds)
}

func TestSandboxErrorStatusWrapsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewSandboxClient(SandboxConfig{BaseURL: server.URL}, zerolog.Nop())
	_, err := client.GetStatus(context.Background(), "tok")
	require.ErrorIs(t, err, ErrBackend)
	require.Contains(t, err.Error(), "503")
}
