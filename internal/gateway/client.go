// Package gateway wraps the messaging transport's REST API. The engine
// only ever needs one primitive: send a text to a sender address.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicflow/booking-engine/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// maxReplyLength caps outbound text the same way inbound text is capped.
const maxReplyLength = 4096

// SendRequest is one outbound message.
type SendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"text"`
}

// Config controls how the gateway client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client sends replies through the messaging gateway.
type Client struct {
	baseURL    string
	apiKey     string
	fromNumber string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gateway: API key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		httpClient: httpClient,
		logger:     logger.WithComponent("gateway"),
	}, nil
}

// SendMessage delivers one reply. Transient gateway failures (5xx, 429)
// are retried once.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) error {
	if strings.TrimSpace(req.To) == "" {
		return errors.New("gateway: recipient is required")
	}
	if req.From == "" {
		req.From = c.fromNumber
	}
	req.Body = scrubReply(req.Body)

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("gateway: marshal send request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lastErr = c.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
		var retryable *retryableError
		if !errors.As(lastErr, &retryable) {
			return lastErr
		}
		c.logger.Warn("gateway send failed, retrying", "error", lastErr, "attempt", attempt+1)
	}
	return lastErr
}

// scrubReply drops control characters other than newline and caps the
// body at the transport's message size limit without splitting a rune.
func scrubReply(body string) string {
	var b strings.Builder
	b.Grow(len(body))
	for _, r := range body {
		if r < 0x20 && r != '\n' {
			continue
		}
		if b.Len()+len(string(r)) > maxReplyLength {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

type retryableError struct {
	status int
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("gateway: send returned status %d", e.status)
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &retryableError{status: resp.StatusCode}
	}
	return fmt.Errorf("gateway: send rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
