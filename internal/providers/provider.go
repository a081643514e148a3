package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultHost is the Ollama API root used when OLLAMA_HOST is unset.
const DefaultHost = "http://localhost:11434"

// ChatRequest is one system+user exchange with a model.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
}

// ChatResponse is the assistant reply.
type ChatResponse struct {
	Content string
	// Tokens is prompt plus completion tokens when the server reports them.
	Tokens int
}

// Backend sends chat requests to a model server.
type Backend interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Name() string
}

var (
	// ErrUnreachable indicates the server could not be reached.
	ErrUnreachable = errors.New("ollama server unreachable")
	// ErrEmptyResponse indicates a 2xx reply with no body.
	ErrEmptyResponse = errors.New("empty response from ollama")
	// ErrEmptyContent indicates a reply whose message content is empty.
	ErrEmptyContent = errors.New("no content in ollama response")
)

// StatusError is a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("ollama API error (status %d): %s", e.StatusCode, body)
}

// HostFromEnv returns OLLAMA_HOST or DefaultHost.
func HostFromEnv() string {
	if h := os.Getenv("OLLAMA_HOST"); h != "" {
		return h
	}
	return DefaultHost
}

// normalizeHost strips trailing slashes and endpoint suffixes users sometimes
// paste into OLLAMA_HOST.
func normalizeHost(host string) string {
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	host = strings.TrimRight(host, "/")
	host = strings.TrimSuffix(host, "/api/chat")
	host = strings.TrimSuffix(host, "/api")
	return host
}
