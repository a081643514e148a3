package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllama_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("got %s %s, want POST /api/chat", r.Method, r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "qwen2.5-coder:3b" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.Messages[1].Content != "review me" {
			t.Errorf("user content = %q", req.Messages[1].Content)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"{\"issues\":[]}"},"prompt_eval_count":30,"eval_count":12}`))
	}))
	defer server.Close()

	o := NewOllama(server.URL, WithHTTPClient(server.Client()))
	resp, err := o.Chat(context.Background(), ChatRequest{
		Model:        "qwen2.5-coder:3b",
		SystemPrompt: "sys",
		UserPrompt:   "review me",
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Content != `{"issues":[]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Tokens != 42 {
		t.Errorf("Tokens = %d, want 42", resp.Tokens)
	}
}

func TestOllama_ChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", 404, `{"error":"model not found"}`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode == 404
		}},
		{"server error", 500, "boom", func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode == 500
		}},
		{"empty body", 200, "", func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"whitespace body", 200, "  \n", func(err error) bool { return errors.Is(err, ErrEmptyResponse) }},
		{"empty content", 200, `{"message":{"role":"assistant","content":""}}`, func(err error) bool {
			return errors.Is(err, ErrEmptyContent)
		}},
		{"missing message", 200, `{}`, func(err error) bool { return errors.Is(err, ErrEmptyContent) }},
		{"not json", 200, "<html>", func(err error) bool {
			return err != nil && !errors.Is(err, ErrEmptyResponse) && !errors.Is(err, ErrEmptyContent)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			o := NewOllama(server.URL, WithHTTPClient(server.Client()))
			_, err := o.Chat(context.Background(), ChatRequest{Model: "m"})
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestOllama_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	o := NewOllama(url)
	_, err := o.Chat(context.Background(), ChatRequest{Model: "m"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestOllama_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	o := NewOllama(server.URL, WithHTTPClient(server.Client()))
	_, err := o.Chat(ctx, ChatRequest{Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestOllama_RetryOnRateLimit(t *testing.T) {
	old := backoffBase
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = old })

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer server.Close()

	o := NewOllama(server.URL, WithHTTPClient(server.Client()), WithRetries(3))
	resp, err := o.Chat(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Content != "ok" || attempts != 3 {
		t.Errorf("content=%q attempts=%d", resp.Content, attempts)
	}
}

func TestOllama_NoRetryByDefault(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	o := NewOllama(server.URL, WithHTTPClient(server.Client()))
	_, err := o.Chat(context.Background(), ChatRequest{Model: "m"})
	if !IsRateLimited(err) {
		t.Errorf("err = %v, want rate limit", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestOllama_Check(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"qwen2.5-coder:7b"},{"name":"llama3.2:latest"}]}`))
	}))
	defer server.Close()

	o := NewOllama(server.URL, WithHTTPClient(server.Client()))
	tests := []struct {
		model string
		want  bool
	}{
		{"qwen2.5-coder:7b", true},
		{"llama3.2", true},
		{"qwen2.5-coder:3b", false},
		{"", false},
	}
	for _, tt := range tests {
		res, err := o.Check(context.Background(), tt.model)
		if err != nil {
			t.Fatalf("Check error: %v", err)
		}
		if !res.Reachable || res.ModelPresent != tt.want {
			t.Errorf("Check(%q) = %+v, want present=%v", tt.model, res, tt.want)
		}
		if len(res.ModelNames) != 2 {
			t.Errorf("ModelNames = %v", res.ModelNames)
		}
	}
}

func TestOllama_CheckUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	o := NewOllama(server.URL, WithHTTPClient(server.Client()))
	if _, err := o.Check(context.Background(), "m"); !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "http://localhost:11434"},
		{"http://localhost:11434/", "http://localhost:11434"},
		{"http://localhost:11434/api", "http://localhost:11434"},
		{"http://localhost:11434/api/chat", "http://localhost:11434"},
		{"192.168.1.100:11434", "http://192.168.1.100:11434"},
	}
	for _, tt := range tests {
		if got := normalizeHost(tt.in); got != tt.want {
			t.Errorf("normalizeHost(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHostFromEnv(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	if got := HostFromEnv(); got != DefaultHost {
		t.Errorf("HostFromEnv() = %q", got)
	}
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	if got := HostFromEnv(); got != "http://gpu-box:11434" {
		t.Errorf("HostFromEnv() = %q", got)
	}
}

func TestStatusError_Message(t *testing.T) {
	if got := (&StatusError{StatusCode: 502}).Error(); got != "ollama API error (status 502)" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&StatusError{StatusCode: 404, Body: "nope\n"}).Error(); got != "ollama API error (status 404): nope" {
		t.Errorf("Error() = %q", got)
	}
}
