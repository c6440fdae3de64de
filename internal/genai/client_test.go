// internal/genai/client_test.go
package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nycdb-insight/internal/common/logger"
)

func newTestClient(baseURL string, retries int) *Client {
	return NewClient(&Config{
		BaseURL:    baseURL,
		Model:      "test-model",
		MaxTokens:  256,
		Timeout:    2 * time.Second,
		MaxRetries: retries,
	}, logger.NewNoOpLogger())
}

func TestCompleteSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/ai/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	text, err := c.Complete(context.Background(), Request{Prompt: "hi", Purpose: "interpret"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, "hi", gotBody["prompt"])
}

func TestCompleteRetriesOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "recovered"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)

	text, err := c.Complete(context.Background(), Request{Prompt: "hi", Purpose: "narrate"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, calls)
}

func TestCompleteExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)

	_, err := c.Complete(context.Background(), Request{Prompt: "hi", Purpose: "narrate"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"text": "too late"})
	}))
	defer srv.Close()

	c := NewClient(&Config{
		BaseURL:    srv.URL,
		Timeout:    50 * time.Millisecond,
		MaxRetries: 0,
	}, logger.NewNoOpLogger())

	_, err := c.Complete(context.Background(), Request{Prompt: "hi", Purpose: "interpret"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionTimeout)
}

func TestCompleteEmptyTextIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "   "})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)

	_, err := c.Complete(context.Background(), Request{Prompt: "hi", Purpose: "interpret"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestCompleteSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	c := NewClient(&Config{
		BaseURL: srv.URL,
		APIKey:  "secret",
		Timeout: time.Second,
	}, logger.NewNoOpLogger())

	_, err := c.Complete(context.Background(), Request{Prompt: "hi", Purpose: "interpret"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}
