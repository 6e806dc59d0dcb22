package notesapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	generatePath = "/generate"
	maxErrorBody = 512
)

// The backend searches, crawls and writes before answering; two minutes is
// typical, so the transport timeout leaves generous headroom.
const defaultHTTPTimeout = 5 * time.Minute

// ErrNoBaseURL is returned when neither the config nor the environment names
// the note service.
var ErrNoBaseURL = errors.New("notesapi: base url not configured")

// Config describes how to build a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client generates study notes for a query.
type Client interface {
	Generate(ctx context.Context, query string) (*Response, error)
	Name() string
}

// Message is one entry of the backend's agent transcript.
type Message struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

// Response is the decoded /generate answer. Raw keeps the full payload so
// callers can run tolerant extraction over fields the struct does not model.
type Response struct {
	HTMLContent string          `json:"html_content"`
	Messages    []Message       `json:"-"`
	Raw         json.RawMessage `json:"-"`
	RequestID   string          `json:"-"`
}

// StatusError reports a non-2xx answer from the note service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP error! status: %d (%s)", e.StatusCode, e.Body)
}

// NewFromEnv builds a client from cfg, falling back to NOTEGEN_API_URL.
func NewFromEnv(cfg Config) (Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = strings.TrimSpace(os.Getenv("NOTEGEN_API_URL"))
	}
	if base == "" {
		return nil, ErrNoBaseURL
	}
	return &httpClient{
		base:   strings.TrimRight(base, "/"),
		client: pickHTTPClient(cfg.HTTPClient),
	}, nil
}

func pickHTTPClient(custom *http.Client) *http.Client {
	if custom != nil {
		return custom
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// clip caps s at limit runes so multi-byte bodies are never split.
func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
