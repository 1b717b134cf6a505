package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verdict taxonomy shared by every backend.
const (
	VerdictAccepted            = "Accepted"
	VerdictWrongAnswer         = "WrongAnswer"
	VerdictTimeLimitExceeded   = "TimeLimitExceeded"
	VerdictMemoryLimitExceeded = "MemoryLimitExceeded"
	VerdictRuntimeError        = "RuntimeError"
	VerdictCompilationError    = "CompilationError"
	VerdictInternalError       = "InternalError"
	VerdictJudgeError          = "JudgeError"
)

// ErrBackend marks transient judge backend failures (network, malformed
// response). The queue retries these with backoff.
var ErrBackend = errors.New("judge backend error")

// ErrPollTimeout indicates the polling attempt budget was exhausted before
// every token reached a terminal verdict.
var ErrPollTimeout = fmt.Errorf("%w: poll attempts exhausted", ErrBackend)

// ErrUnknownBackend indicates no adapter is registered for a judge kind.
var ErrUnknownBackend = errors.New("unknown judge backend")

// ErrUnsupportedLanguage indicates a backend has no mapping for the language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Item is one unit of judging work: the same source run against one test case.
type Item struct {
	Source         string
	Language       string
	Stdin          string
	ExpectedOutput string
}

// Limits carries the question's execution limits.
type Limits struct {
	CPUTimeMs int
	MemoryKB  int
	WallTimeS int
}

// Status is the backend-independent outcome of one judged item.
type Status struct {
	Verdict      string
	Terminal     bool
	TimeMs       *int64
	MemoryKB     *int64
	Output       string
	ErrorMessage string
}

// Progress describes how far a batch poll has advanced.
type Progress struct {
	Completed  int     `json:"completed"`
	Pending    int     `json:"pending"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ProgressFunc receives incremental batch progress during polling.
type ProgressFunc func(Progress)

// Adapter is the uniform capability set over one judge backend.
type Adapter interface {
	// SubmitBatch dispatches every item in one call and returns one token per item.
	SubmitBatch(ctx context.Context, items []Item, limits Limits) ([]string, error)
	// GetStatus fetches the current status of a single token.
	GetStatus(ctx context.Context, token string) (Status, error)
	// WaitForBatch polls until every token is terminal or the attempt budget is
	// exhausted. It never returns a partial result: on timeout the error is
	// ErrPollTimeout.
	WaitForBatch(ctx context.Context, tokens []string, maxAttempts int, interval time.Duration, onProgress ProgressFunc) ([]Status, error)
}

// Evaluate derives the effective verdict and pass flag for one judged item.
// A result passes only when the backend accepted it and, if an expected output
// was supplied, the trimmed actual output matches the trimmed expectation.
func Evaluate(st Status, expectedOutput string) (bool, string) {
	if st.Verdict != VerdictAccepted {
		return false, st.Verdict
	}
	expected := strings.TrimSpace(expectedOutput)
	if expected != "" && strings.TrimSpace(st.Output) != expected {
		return false, VerdictWrongAnswer
	}
	return true, VerdictAccepted
}

// Registry selects an adapter by the question's judge kind.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a judge kind, replacing any previous binding.
func (r *Registry) Register(kind string, adapter Adapter) {
	r.adapters[kind] = adapter
}

// Lookup returns the adapter for a judge kind.
func (r *Registry) Lookup(kind string) (Adapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
	return adapter, nil
}
