package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/pkg/logger"
)

const (
	idempotencyHeader = "Idempotency-Key"
	rateLimitName     = "rate_limit_exceeded"
)

// Message is one outbound email.
type Message struct {
	To             string
	Subject        string
	Body           string
	IdempotencyKey string
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// ProviderError is a structured error reported by the provider, as opposed to
// a transport failure where no response was received.
type ProviderError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider error %d (%s): %s", e.StatusCode, e.Name, e.Message)
}

// IsRateLimit reports whether the provider asked us to slow down.
func (e *ProviderError) IsRateLimit() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.Name == rateLimitName {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// AsProviderError unwraps err into a *ProviderError if it is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type Client struct {
	httpClient  *resty.Client
	fromAddress string
}

// NewClient builds a client for a Resend-compatible HTTP API. Retries are left
// to the caller, which knows which failures are safe to repeat.
func NewClient(cfg environments.EmailConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient:  client,
		fromAddress: cfg.FromAddress,
	}
}

func (c *Client) SendEmail(ctx context.Context, msg Message) (string, error) {
	payload := sendRequest{
		From:    c.fromAddress,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	}

	var result sendResponse
	var providerErr ProviderError

	req := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		SetError(&providerErr)

	if msg.IdempotencyKey != "" {
		req.SetHeader(idempotencyHeader, msg.IdempotencyKey)
	}

	startTime := time.Now()
	resp, err := req.Post("/emails")
	duration := time.Since(startTime)

	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	logger.Debugf("Email request completed in %v (status: %d)", duration, resp.StatusCode())

	if resp.IsError() {
		if providerErr.StatusCode == 0 {
			providerErr.StatusCode = resp.StatusCode()
		}
		if providerErr.Message == "" {
			providerErr.Message = resp.String()
		}
		return "", &providerErr
	}

	if result.ID == "" {
		return "", &ProviderError{
			StatusCode: resp.StatusCode(),
			Name:       "invalid_response",
			Message:    "response did not include a message id",
		}
	}

	return result.ID, nil
}

func (c *Client) FromAddress() string {
	return c.fromAddress
}
