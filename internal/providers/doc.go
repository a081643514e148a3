// Package providers implements the inference backend used for reviews.
//
// The only backend is a local Ollama server reached through its native chat
// endpoint (POST /api/chat, non-streaming). A health check against
// /api/tags reports whether the server is up and which models are pulled.
//
// Transport failures wrap [ErrUnreachable]; non-2xx replies are returned as
// [*StatusError]; empty bodies and empty message content are reported with
// [ErrEmptyResponse] and [ErrEmptyContent] so callers can tell them apart
// from malformed model output. HTTP 429 replies are retried with exponential
// back-off when retries are enabled.
package providers
