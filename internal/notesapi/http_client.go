package notesapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type httpClient struct {
	base   string
	client *http.Client
}

func (c *httpClient) Name() string {
	return fmt.Sprintf("notes service (%s)", c.base)
}

func (c *httpClient) Generate(ctx context.Context, query string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	buf, err := json.Marshal(map[string]string{"content": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+generatePath, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: clip(string(body), maxErrorBody)}
	}

	parsed, err := decodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decode notes response: %w", err)
	}
	parsed.RequestID = requestID
	return parsed, nil
}

// decodeResponse reads html_content and, when it is well formed, the
// transcript. A malformed transcript never fails the call.
func decodeResponse(body []byte) (*Response, error) {
	var envelope struct {
		HTMLContent json.RawMessage `json:"html_content"`
		Messages    json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	out := &Response{Raw: json.RawMessage(body)}
	if len(envelope.HTMLContent) > 0 {
		var html string
		if err := json.Unmarshal(envelope.HTMLContent, &html); err == nil {
			out.HTMLContent = html
		}
	}
	if len(envelope.Messages) > 0 {
		var messages []Message
		if err := json.Unmarshal(envelope.Messages, &messages); err == nil {
			out.Messages = messages
		}
	}
	return out, nil
}
