package vlm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

func writePageImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page_001.png")
	// A real decoder never sees this; the client only base64-encodes it.
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0o644))
	return path
}

func chatResponse(content string) Response {
	return Response{
		ID:      "resp-1",
		Choices: []Choice{{Message: ChoiceMessage{Role: "assistant", Content: content}}},
	}
}

func TestExtractPage(t *testing.T) {
	var gotReq Request
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(chatResponse(`[{"stem_text": "题干", "image_description": "none"}]`))
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "sk-test",
		Model:     "google/gemini-2.5-flash",
		MaxTokens: 8192,
	}, zerolog.Nop())

	records, err := client.ExtractPage(context.Background(), writePageImage(t), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "题干", records[0].StemText)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "google/gemini-2.5-flash", gotReq.Model)
	assert.Zero(t, gotReq.Temperature)

	require.Len(t, gotReq.Messages, 1)
	require.Len(t, gotReq.Messages[0].Content, 2)
	assert.Equal(t, "text", gotReq.Messages[0].Content[0].Type)
	assert.NotContains(t, gotReq.Messages[0].Content[0].Text, "CONTINUATION TASK")
	assert.Equal(t, "image_url", gotReq.Messages[0].Content[1].Type)
	assert.Contains(t, gotReq.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,")
}

func TestExtractPageContinuationPrompt(t *testing.T) {
	var gotText string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotText = req.Messages[0].Content[0].Text

		json.NewEncoder(w).Encode(chatResponse(`[{"stem_text": "合并后的题干", "image_description": "none"}]`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "sk-test", Model: "m"}, zerolog.Nop())

	pending := &domain.QuestionRecord{StemText: "被截断的题干，", ImageDescription: domain.NoFigure}
	records, err := client.ExtractPage(context.Background(), writePageImage(t), pending)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Contains(t, gotText, "CONTINUATION TASK")
	assert.Contains(t, gotText, "被截断的题干，")
}

func TestExtractPageRetriesTransientStatus(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatResponse(`[{"stem_text": "题干", "image_description": "none"}]`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "sk-test", Model: "m", MaxRetries: 2}, zerolog.Nop())

	records, err := client.ExtractPage(context.Background(), writePageImage(t), nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, calls)
}

func TestExtractPageNonRetryableStatus(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "bad-key", Model: "m", MaxRetries: 3}, zerolog.Nop())

	_, err := client.ExtractPage(context.Background(), writePageImage(t), nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
	assert.Equal(t, 1, calls, "client errors must not be retried")
}

func TestExtractPageMissingImage(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Model: "m"}, zerolog.Nop())

	_, err := client.ExtractPage(context.Background(), "/nonexistent/page.png", nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
}

func TestExtractPageNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{ID: "resp-1"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k", Model: "m"}, zerolog.Nop())

	_, err := client.ExtractPage(context.Background(), writePageImage(t), nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))
}

func TestShouldRetry(t *testing.T) {
	retryable := []int{429, 500, 502, 503, 504}
	for _, code := range retryable {
		assert.True(t, shouldRetry(code), "status %d", code)
	}

	final := []int{200, 400, 401, 403, 404, 422}
	for _, code := range final {
		assert.False(t, shouldRetry(code), "status %d", code)
	}
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, 1*time.Second, calculateBackoff(0))
	assert.Equal(t, 2*time.Second, calculateBackoff(1))
	assert.Equal(t, 4*time.Second, calculateBackoff(2))
	assert.Equal(t, 30*time.Second, calculateBackoff(10), "backoff is capped")
}
