package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com/v1"

// systemPrompt frames every generation request; tone is injected per call
const systemPrompt = "You are a copywriting assistant. Write the requested text in a %s tone. Respond with the text only."

// OpenAIClient is a chat-completions client for OpenAI-compatible APIs
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Generator = (*OpenAIClient)(nil)

// OpenAIOption configures OpenAIClient
type OpenAIOption func(*OpenAIClient)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIClient) { p.httpClient = c }
}

// WithModel sets the model used for generation
func WithModel(model string) OpenAIOption {
	return func(p *OpenAIClient) { p.model = model }
}

// WithMaxTokens caps the response length
func WithMaxTokens(n int) OpenAIOption {
	return func(p *OpenAIClient) { p.maxTokens = n }
}

// NewOpenAIClient creates a generation client for an OpenAI-compatible API
func NewOpenAIClient(baseURL, apiKey string, logger *zap.Logger, opts ...OpenAIOption) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      "gpt-4o-mini",
		maxTokens:  1024,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Generate performs one synchronous completion call
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	tone := req.Tone
	if tone == "" {
		tone = "neutral"
	}

	body := apiRequest{
		Model: c.model,
		Messages: []apiMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, tone)},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens: c.maxTokens,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("provider: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("provider: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Connection-level failures are indistinguishable from a brief
		// outage; classify as retryable.
		return nil, &Error{StatusCode: 0, Message: err.Error(), Retryable: true}
	}
	defer httpResp.Body.Close()

	if err := classifyHTTPError(httpResp); err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("provider: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{StatusCode: httpResp.StatusCode, Message: "empty choices in response", Retryable: false}
	}

	c.logger.Debug("Generation call succeeded",
		zap.String("model", resp.Model),
		zap.Int64("total_tokens", resp.Usage.TotalTokens))

	return &Response{
		Text:        resp.Choices[0].Message.Content,
		Model:       resp.Model,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

// classifyHTTPError maps a non-2xx response to a classified Error.
// Rate limits and 5xx are retryable; every other 4xx is terminal.
func classifyHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	message := readErrorBody(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &Error{StatusCode: resp.StatusCode, Message: message, Retryable: true}
	}
	return &Error{StatusCode: resp.StatusCode, Message: message, Retryable: false}
}

func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "provider request failed"
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return string(raw)
}
