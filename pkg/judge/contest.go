package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContestConfig configures the remote contest-site client.
type ContestConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// ContestClient adapts a remote contest site. The site has no batch endpoint
// and reports free-text verdicts, so the client submits items one by one and
// normalises the verdict strings onto the shared taxonomy.
type ContestClient struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	logger    zerolog.Logger
	languages map[string]string
}

// NewContestClient constructs a contest-site adapter.
func NewContestClient(cfg ContestConfig, logger zerolog.Logger) *ContestClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &ContestClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logger.With().Str("component", "contest_client").Logger(),
		languages: map[string]string{
			"c":          "GNU C11",
			"cpp":        "GNU G++17",
			"go":         "Go",
			"java":       "Java 11",
			"javascript": "Node.js",
			"python":     "Python 3",
		},
	}
}

type contestSubmission struct {
	Source   string `json:"source"`
	Language string `json:"language"`
	Input    string `json:"input,omitempty"`
}

type contestSubmitResponse struct {
	ID string `json:"id"`
}

type contestStatusResponse struct {
	ID       string `json:"id"`
	Verdict  string `json:"verdict"`
	Output   string `json:"output"`
	Error    string `json:"error"`
	TimeMs   *int64 `json:"time_ms"`
	MemoryKB *int64 `json:"memory_kb"`
}

// SubmitBatch submits every item individually and returns the remote
// submission ids as tokens, in item order.
func (c *ContestClient) SubmitBatch(ctx context.Context, items []Item, limits Limits) ([]string, error) {
	tokens := make([]string, 0, len(items))
	for i, item := range items {
		language, ok := c.languages[strings.ToLower(strings.TrimSpace(item.Language))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, item.Language)
		}

		payload := contestSubmission{
			Source:   item.Source,
			Language: language,
			Input:    item.Stdin,
		}

		var resp contestSubmitResponse
		if err := c.do(ctx, http.MethodPost, "/api/submissions", payload, &resp); err != nil {
			return nil, fmt.Errorf("submit item %d: %w", i, err)
		}
		if resp.ID == "" {
			return nil, fmt.Errorf("%w: empty submission id for item %d", ErrBackend, i)
		}
		tokens = append(tokens, resp.ID)
	}
	return tokens, nil
}

// GetStatus fetches and normalises a single remote submission's status.
func (c *ContestClient) GetStatus(ctx context.Context, token string) (Status, error) {
	var resp contestStatusResponse
	path := "/api/submissions/" + url.PathEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return Status{}, err
	}

	verdict, terminal := mapContestVerdict(resp.Verdict)
	return Status{
		Verdict:      verdict,
		Terminal:     terminal,
		TimeMs:       resp.TimeMs,
		MemoryKB:     resp.MemoryKB,
		Output:       resp.Output,
		ErrorMessage: strings.TrimSpace(resp.Error),
	}, nil
}

// WaitForBatch polls every pending token each round until all are terminal.
func (c *ContestClient) WaitForBatch(ctx context.Context, tokens []string, maxAttempts int, interval time.Duration, onProgress ProgressFunc) ([]Status, error) {
	statuses := make([]Status, len(tokens))

	err := poll(ctx, maxAttempts, interval, func(ctx context.Context) (bool, error) {
		completed := 0
		for i, token := range tokens {
			if statuses[i].Terminal {
				completed++
				continue
			}
			st, err := c.GetStatus(ctx, token)
			if err != nil {
				return false, err
			}
			statuses[i] = st
			if st.Terminal {
				completed++
			}
		}
		reportProgress(onProgress, completed, len(tokens))
		return completed == len(tokens), nil
	})
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

// mapContestVerdict normalises the site's free-text verdicts. Queued and
// running states are non-terminal and must be polled past.
func mapContestVerdict(raw string) (string, bool) {
	verdict := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case verdict == "" || verdict == "queued" || verdict == "in queue" ||
		strings.Contains(verdict, "running") || strings.Contains(verdict, "judging") ||
		strings.Contains(verdict, "compiling"):
		return "", false
	case verdict == "accepted" || verdict == "ok":
		return VerdictAccepted, true
	case strings.HasPrefix(verdict, "wrong answer"):
		return VerdictWrongAnswer, true
	case strings.Contains(verdict, "time limit"):
		return VerdictTimeLimitExceeded, true
	case strings.Contains(verdict, "memory limit"):
		return VerdictMemoryLimitExceeded, true
	case strings.Contains(verdict, "runtime error") || strings.Contains(verdict, "non-zero exit"):
		return VerdictRuntimeError, true
	case strings.Contains(verdict, "compilation error") || strings.Contains(verdict, "compile error"):
		return VerdictCompilationError, true
	case strings.Contains(verdict, "internal error"):
		return VerdictInternalError, true
	default:
		return VerdictJudgeError, true
	}
}

func (c *ContestClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrBackend, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("contest request rejected")
		return fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrBackend, err)
		}
	}
	return nil
}
