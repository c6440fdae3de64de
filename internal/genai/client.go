// internal/genai/client.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/common/metrics"
)

var (
	ErrCompletionTimeout = errors.New("COMPLETION_TIMEOUT")
	ErrCompletionFailed  = errors.New("COMPLETION_FAILED")
)

// Completer is the single-shot prompt-in/text-out contract the pipeline
// depends on. The Completion Service is nondeterministic, rate-limited, and
// can return malformed text; callers must parse defensively.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one completion call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	// Purpose labels the call for metrics ("interpret", "narrate", "recommend").
	Purpose string
}

// Config holds the Completion Service connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Client talks to the hosted completion endpoint over HTTP.
type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		// No client-level timeout; the per-call context bounds each request.
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "genai"}),
	}
}

// Complete sends one prompt and returns the raw completion text. Non-200
// responses are retried with exponential backoff; a context deadline maps to
// ErrCompletionTimeout, everything else to ErrCompletionFailed.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}

	requestBody := map[string]interface{}{
		"model":       c.config.Model,
		"prompt":      req.Prompt,
		"max_tokens":  maxTokens,
		"temperature": temperature,
	}

	body, _ := json.Marshal(requestBody)

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.CompletionCalls.WithLabelValues(req.Purpose, "timeout").Inc()
				return "", ErrCompletionTimeout
			}
		}

		// Fresh request per attempt; the body reader is consumed by each send.
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(httpReq)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			metrics.CompletionCalls.WithLabelValues(req.Purpose, "timeout").Inc()
			return "", ErrCompletionTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.CompletionCalls.WithLabelValues(req.Purpose, "timeout").Inc()
			return "", ErrCompletionTimeout
		}
		metrics.CompletionCalls.WithLabelValues(req.Purpose, "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, lastErr)
	}

	if resp == nil {
		metrics.CompletionCalls.WithLabelValues(req.Purpose, "error").Inc()
		return "", fmt.Errorf("%w: no successful response after retries", ErrCompletionFailed)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		metrics.CompletionCalls.WithLabelValues(req.Purpose, "error").Inc()
		return "", fmt.Errorf("%w: decode error: %v", ErrCompletionFailed, err)
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		metrics.CompletionCalls.WithLabelValues(req.Purpose, "empty").Inc()
		return "", fmt.Errorf("%w: empty completion", ErrCompletionFailed)
	}

	metrics.CompletionCalls.WithLabelValues(req.Purpose, "ok").Inc()

	c.logger.Debug("completion received", map[string]interface{}{
		"purpose": req.Purpose,
		"length":  len(apiResponse.Text),
	})

	return apiResponse.Text, nil
}
