// Package dispatch sends rendered messages through the channel provider with
// idempotency keys and bounded exponential backoff.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/pkg/email"
	"github.com/onurcolak/collections-worker/pkg/logger"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
)

var (
	ErrChannelNotSupported = errors.New("channel not supported")
	ErrNoRecipient         = errors.New("no recipient address")
)

type emailSender interface {
	SendEmail(ctx context.Context, msg email.Message) (string, error)
}

// Metadata ties a send to a logical playbook step.
type Metadata struct {
	CollectionID string
	MessageIndex int
}

type Request struct {
	Channel  domain.Channel
	To       string
	Subject  string
	Body     string
	Metadata *Metadata
}

type Result struct {
	Success   bool
	MessageID string
	Error     error
	Attempts  int
}

type Client struct {
	email          emailSender
	maxAttempts    int
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewClient(sender emailSender) *Client {
	return &Client{
		email:          sender,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		sleep:          sleepContext,
	}
}

// IdempotencyKey is stable for a (collection, step index) pair so provider-side
// retries of the same logical step are deduplicated.
func IdempotencyKey(collectionID string, messageIndex int) string {
	return fmt.Sprintf("%s-%d", collectionID, messageIndex)
}

// RecipientFor picks the contact address for channel. WhatsApp prefers the
// phone number and falls back to email.
func RecipientFor(channel domain.Channel, contact domain.Contact) string {
	if channel == domain.ChannelWhatsApp && contact.Phone != nil && *contact.Phone != "" {
		return *contact.Phone
	}
	return contact.Email
}

// retryState is the attempt counter and the wait that precedes the next attempt.
type retryState struct {
	attempt int
	delay   time.Duration
}

func (s retryState) next() retryState {
	return retryState{attempt: s.attempt + 1, delay: s.delay * 2}
}

// Send delivers req, retrying only rate-limit and transport failures. Callers
// see a single call whose latency is bounded by the attempt cap.
func (c *Client) Send(ctx context.Context, req Request) Result {
	if req.Channel != domain.ChannelEmail {
		return Result{Error: fmt.Errorf("%w: %s", ErrChannelNotSupported, req.Channel)}
	}
	if req.To == "" {
		return Result{Error: ErrNoRecipient}
	}

	msg := email.Message{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
	}
	if req.Metadata != nil && req.Metadata.CollectionID != "" {
		msg.IdempotencyKey = IdempotencyKey(req.Metadata.CollectionID, req.Metadata.MessageIndex)
	}

	state := retryState{attempt: 1, delay: c.initialBackoff}

	for {
		id, err := c.email.SendEmail(ctx, msg)
		if err == nil {
			return Result{Success: true, MessageID: id, Attempts: state.attempt}
		}

		if !isRetryable(ctx, err) || state.attempt >= c.maxAttempts {
			return Result{Error: err, Attempts: state.attempt}
		}

		logger.Warnf("Send attempt %d/%d failed, retrying in %v: %v",
			state.attempt, c.maxAttempts, state.delay, err)

		if sleepErr := c.sleep(ctx, state.delay); sleepErr != nil {
			return Result{Error: err, Attempts: state.attempt}
		}

		state = state.next()
	}
}

// isRetryable is true for provider rate limits and for transport failures
// where the provider never answered, including client timeouts. Nothing is
// retried once the caller's context is done.
func isRetryable(ctx context.Context, err error) bool {
	if pe, ok := email.AsProviderError(err); ok {
		return pe.IsRateLimit()
	}
	return ctx.Err() == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
