package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama talks to an Ollama server through /api/chat.
type Ollama struct {
	baseURL string
	retries int
	client  *http.Client
}

// OllamaOption configures an Ollama backend.
type OllamaOption func(*Ollama)

// WithRetries sets how many times a 429 reply is retried.
func WithRetries(n int) OllamaOption {
	return func(o *Ollama) {
		if n > 0 {
			o.retries = n
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		if c != nil {
			o.client = c
		}
	}
}

// NewOllama returns a backend for host. An empty host means DefaultHost.
// Per-call deadlines come from the request context, so the default client
// sets no timeout of its own.
func NewOllama(host string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL: normalizeHost(host),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Ollama) Name() string { return "ollama" }

// BaseURL returns the normalized API root.
func (o *Ollama) BaseURL() string { return o.baseURL }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Chat sends one non-streaming chat request.
func (o *Ollama) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp ChatResponse
	err = retryWithBackoff(ctx, o.retries, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sending request to %s: %w", o.baseURL, errors.Join(ErrUnreachable, err))
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if httpResp.StatusCode == http.StatusTooManyRequests {
			return &rateLimitError{body: string(respBody)}
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			return &StatusError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
		}
		if len(bytes.TrimSpace(respBody)) == 0 {
			return ErrEmptyResponse
		}

		var result chatResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if strings.TrimSpace(result.Message.Content) == "" {
			return ErrEmptyContent
		}

		resp = ChatResponse{
			Content: result.Message.Content,
			Tokens:  result.PromptEvalCount + result.EvalCount,
		}
		return nil
	})
	return resp, err
}

// CheckResult is the outcome of a health check.
type CheckResult struct {
	Reachable    bool
	ModelPresent bool
	ModelNames   []string
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Check GETs /api/tags and reports whether model is pulled. Names without a
// tag match their ":latest" variant.
func (o *Ollama) Check(ctx context.Context, model string) (*CheckResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags: %w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	var body tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("ollama tags: parse response: %w", err)
	}
	res := &CheckResult{Reachable: true, ModelNames: make([]string, 0, len(body.Models))}
	for _, m := range body.Models {
		res.ModelNames = append(res.ModelNames, m.Name)
		if sameModel(m.Name, model) {
			res.ModelPresent = true
		}
	}
	return res, nil
}

func sameModel(pulled, want string) bool {
	if want == "" {
		return false
	}
	if pulled == want {
		return true
	}
	if !strings.Contains(want, ":") {
		return pulled == want+":latest"
	}
	return false
}
