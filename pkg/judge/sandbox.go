package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sandbox status table. The cluster reports numeric status ids; everything
// below statusAccepted is still in flight.
const (
	sandboxStatusInQueue          = 1
	sandboxStatusProcessing       = 2
	sandboxStatusAccepted         = 3
	sandboxStatusWrongAnswer      = 4
	sandboxStatusTimeLimit        = 5
	sandboxStatusCompilationError = 6
	sandboxStatusRuntimeSIGSEGV   = 7
	sandboxStatusRuntimeSIGXFSZ   = 8
	sandboxStatusRuntimeSIGKILL   = 9
	sandboxStatusRuntimeSIGABRT   = 10
	sandboxStatusRuntimeNZEC      = 11
	sandboxStatusRuntimeOther     = 12
	sandboxStatusInternalError    = 13
	sandboxStatusExecFormatError  = 14
)

// SandboxConfig configures the local sandbox cluster client.
type SandboxConfig struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// SandboxClient talks to the self-hosted sandbox cluster. Payloads travel
// base64-encoded so arbitrary bytes in source and test data survive transport.
type SandboxClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    zerolog.Logger
	languages map[string]int
}

// NewSandboxClient constructs a sandbox adapter.
func NewSandboxClient(cfg SandboxConfig, logger zerolog.Logger) *SandboxClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &SandboxClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		client:    client,
		logger:    logger.With().Str("component", "sandbox_client").Logger(),
		languages: map[string]int{
			"c":          50,
			"cpp":        54,
			"go":         60,
			"java":       62,
			"javascript": 63,
			"python":     71,
		},
	}
}

type sandboxSubmission struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int     `json:"memory_limit,omitempty"`
	WallTimeLimit  float64 `json:"wall_time_limit,omitempty"`
}

type sandboxBatchRequest struct {
	Submissions []sandboxSubmission `json:"submissions"`
}

type sandboxToken struct {
	Token string `json:"token"`
}

type sandboxStatus struct {
	Token  string `json:"token"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout        *string  `json:"stdout"`
	Stderr        *string  `json:"stderr"`
	CompileOutput *string  `json:"compile_output"`
	Message       *string  `json:"message"`
	Time          *string  `json:"time"`
	Memory        *float64 `json:"memory"`
}

type sandboxBatchStatus struct {
	Submissions []sandboxStatus `json:"submissions"`
}

// SubmitBatch sends every item in a single batch call and returns the tokens
// in item order.
func (s *SandboxClient) SubmitBatch(ctx context.Context, items []Item, limits Limits) ([]string, error) {
	payload := sandboxBatchRequest{Submissions: make([]sandboxSubmission, 0, len(items))}
	for _, item := range items {
		languageID, ok := s.languages[strings.ToLower(strings.TrimSpace(item.Language))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, item.Language)
		}

		sub := sandboxSubmission{
			SourceCode:     base64.StdEncoding.EncodeToString([]byte(item.Source)),
			LanguageID:     languageID,
			Stdin:          base64.StdEncoding.EncodeToString([]byte(item.Stdin)),
			ExpectedOutput: base64.StdEncoding.EncodeToString([]byte(item.ExpectedOutput)),
		}
		if limits.CPUTimeMs > 0 {
			sub.CPUTimeLimit = float64(limits.CPUTimeMs) / 1000
		}
		if limits.MemoryKB > 0 {
			sub.MemoryLimit = limits.MemoryKB
		}
		if limits.WallTimeS > 0 {
			sub.WallTimeLimit = float64(limits.WallTimeS)
		}
		payload.Submissions = append(payload.Submissions, sub)
	}

	var tokens []sandboxToken
	if err := s.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", payload, &tokens); err != nil {
		return nil, err
	}
	if len(tokens) != len(items) {
		return nil, fmt.Errorf("%w: expected %d tokens, got %d", ErrBackend, len(items), len(tokens))
	}

	out := make([]string, len(tokens))
	for i, token := range tokens {
		if token.Token == "" {
			return nil, fmt.Errorf("%w: empty token at index %d", ErrBackend, i)
		}
		out[i] = token.Token
	}
	return out, nil
}

// GetStatus fetches a single token's current status.
func (s *SandboxClient) GetStatus(ctx context.Context, token string) (Status, error) {
	var raw sandboxStatus
	path := fmt.Sprintf("/submissions/%s?base64_encoded=true", url.PathEscape(token))
	if err := s.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return Status{}, err
	}
	return s.mapStatus(raw), nil
}

// WaitForBatch polls the whole batch at a fixed interval until every token is
// terminal, reporting progress after each round.
func (s *SandboxClient) WaitForBatch(ctx context.Context, tokens []string, maxAttempts int, interval time.Duration, onProgress ProgressFunc) ([]Status, error) {
	statuses := make([]Status, len(tokens))
	path := fmt.Sprintf("/submissions/batch?tokens=%s&base64_encoded=true", url.QueryEscape(strings.Join(tokens, ",")))

	err := poll(ctx, maxAttempts, interval, func(ctx context.Context) (bool, error) {
		var batch sandboxBatchStatus
		if err := s.do(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return false, err
		}
		if len(batch.Submissions) != len(tokens) {
			return false, fmt.Errorf("%w: expected %d statuses, got %d", ErrBackend, len(tokens), len(batch.Submissions))
		}

		completed := 0
		for i, raw := range batch.Submissions {
			statuses[i] = s.mapStatus(raw)
			if statuses[i].Terminal {
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

func (s *SandboxClient) mapStatus(raw sandboxStatus) Status {
	st := Status{Terminal: true}

	switch raw.Status.ID {
	case sandboxStatusInQueue, sandboxStatusProcessing:
		st.Terminal = false
	case sandboxStatusAccepted:
		st.Verdict = VerdictAccepted
	case sandboxStatusWrongAnswer:
		st.Verdict = VerdictWrongAnswer
	case sandboxStatusTimeLimit:
		st.Verdict = VerdictTimeLimitExceeded
	case sandboxStatusCompilationError:
		st.Verdict = VerdictCompilationError
	case sandboxStatusRuntimeSIGKILL:
		// The sandbox kills over-allocating processes with SIGKILL.
		st.Verdict = VerdictMemoryLimitExceeded
	case sandboxStatusRuntimeSIGSEGV, sandboxStatusRuntimeSIGXFSZ, sandboxStatusRuntimeSIGABRT,
		sandboxStatusRuntimeNZEC, sandboxStatusRuntimeOther:
		st.Verdict = VerdictRuntimeError
	case sandboxStatusInternalError:
		st.Verdict = VerdictInternalError
	default:
		st.Verdict = VerdictJudgeError
	}

	st.Output = decodeBase64Field(raw.Stdout)
	stderr := decodeBase64Field(raw.Stderr)
	compileOutput := decodeBase64Field(raw.CompileOutput)

	switch {
	case compileOutput != "":
		st.ErrorMessage = compileOutput
	case stderr != "":
		st.ErrorMessage = stderr
	case raw.Message != nil:
		st.ErrorMessage = strings.TrimSpace(*raw.Message)
	}

	if raw.Time != nil {
		if seconds, err := strconv.ParseFloat(strings.TrimSpace(*raw.Time), 64); err == nil {
			ms := int64(seconds * 1000)
			st.TimeMs = &ms
		}
	}
	if raw.Memory != nil {
		kb := int64(*raw.Memory)
		st.MemoryKB = &kb
	}

	return st
}

func (s *SandboxClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrBackend, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("X-Auth-Token", s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		s.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("sandbox request rejected")
		return fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrBackend, err)
		}
	}
	return nil
}

// decodeBase64Field decodes a transport-encoded field, falling back to the raw
// value when it is not valid base64.
func decodeBase64Field(value *string) string {
	if value == nil {
		return ""
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return trimmed
	}
	return string(decoded)
}
