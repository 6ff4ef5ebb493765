// Package vlm implements the client for the structured-extraction service:
// an OpenAI-compatible vision model that turns one page image into a list
// of candidate question records.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Albertdeng23/GEEQuestionBank/internal/domain"
)

// Config holds extraction client settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
}

// Client handles communication with the extraction service
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage carries the model output
type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates a new extraction client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "vlm").Logger(),
	}
}

// ExtractPage sends one page image to the extraction service and returns
// the candidate question records it found. A non-nil pending fragment
// selects the continuation prompt. Every failure mode (transport, status,
// unparseable response) is reported as a single error so the caller can
// treat the page as empty and continue.
func (c *Client) ExtractPage(ctx context.Context, imagePath string, pending *domain.QuestionRecord) ([]domain.QuestionRecord, error) {
	prompt, err := buildPrompt(pending)
	if err != nil {
		return nil, err
	}

	req, err := c.buildRequest(imagePath, prompt)
	if err != nil {
		return nil, domain.APIError("failed to build request", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.APIError("failed to marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		// Clone the request body for each retry
		reqBody := bytes.NewReader(body)
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(), reqBody)
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		return c.httpClient.Do(httpReq)
	})

	if err != nil {
		return nil, domain.APIError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.APIError("failed to read response body", err)
	}

	var apiResp Response
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, domain.APIError("failed to parse API response", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, domain.ExtractionError("no choices in API response", nil)
	}

	return parseQuestions(apiResp.Choices[0].Message.Content)
}

// buildRequest constructs the API request with the page image
func (c *Client) buildRequest(imagePath, prompt string) (*Request, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	base64Image := base64.StdEncoding.EncodeToString(imageData)
	imageURL := "data:image/png;base64," + base64Image

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{
				Type: "text",
				Text: prompt,
			},
			{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: imageURL,
				},
			},
		},
	}

	return &Request{
		Model:       c.cfg.Model,
		Messages:    []Message{msg},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
	}, nil
}

func (c *Client) endpoint() string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
}
