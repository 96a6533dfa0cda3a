// Package upstream wraps the external verification API with bounded retry,
// exponential backoff, and transient/terminal failure classification.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cembakir/veriflow/internal/domain"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultMaxAttempts = 3

	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 10 * time.Second
	defaultHTTPTimeout = 10 * time.Second
	jitterFraction     = 0.2
)

// RetryEvent is emitted before each backoff sleep, for observability only.
type RetryEvent struct {
	Item    string
	Attempt int
	Delay   time.Duration
	Err     error
}

// Verifier performs one verification call for a canonical item.
type Verifier interface {
	Verify(ctx context.Context, item string, category domain.Category) (*domain.Outcome, error)
}

type verifyRequest struct {
	Item string `json:"item"`
	Type string `json:"type"`
}

// Client calls the verification API over HTTP. Retry events are sent
// non-blocking on the configured channel; dropping one never affects control
// flow.
type Client struct {
	http        *resty.Client
	endpoint    string
	apiKey      string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryEvents chan<- RetryEvent

	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

func NewClient(endpoint, apiKey string, maxAttempts int) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultHTTPTimeout)
	client.SetRetryCount(0)

	return NewClientWithHTTP(endpoint, apiKey, maxAttempts, client)
}

func NewClientWithHTTP(endpoint, apiKey string, maxAttempts int, httpClient *resty.Client) (*Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("verification endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid verification endpoint: %w", err)
	}
	if httpClient == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}

	if httpClient.GetClient().Timeout == 0 {
		httpClient.SetTimeout(defaultHTTPTimeout)
	}
	httpClient.SetRetryCount(0)

	return &Client{
		http:        httpClient,
		endpoint:    trimmed,
		apiKey:      apiKey,
		maxAttempts: maxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       sleepWithContext,
		randFloat:   rand.Float64,
	}, nil
}

// SetRetryEvents wires the retry observability stream. Must be called before
// the client is shared across goroutines.
func (c *Client) SetRetryEvents(events chan<- RetryEvent) {
	c.retryEvents = events
}

// Verify attempts up to maxAttempts calls. Terminal upstream responses return
// immediately; transient ones back off exponentially with jitter. An exhausted
// item yields an error embedding the attempt count and last failure.
func (c *Client) Verify(ctx context.Context, item string, category domain.Category) (*domain.Outcome, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("upstream client is not initialized")
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt - 1)
			c.emitRetry(RetryEvent{Item: item, Attempt: attempt, Delay: delay, Err: lastErr})
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		outcome, err := c.callOnce(ctx, item, category)
		if err == nil {
			return outcome, nil
		}

		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, &Error{
		Message:   fmt.Sprintf("verification failed after %d attempts", c.maxAttempts),
		Transient: false,
		Attempts:  c.maxAttempts,
		Cause:     lastErr,
	}
}

func (c *Client) callOnce(ctx context.Context, item string, category domain.Category) (*domain.Outcome, error) {
	reqBody := verifyRequest{
		Item: item,
		Type: category.String(),
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&domain.Outcome{})
	if c.apiKey != "" {
		req.SetHeader("X-Api-Key", c.apiKey)
	}

	response, err := req.Post(c.endpoint)
	if err != nil {
		return nil, &Error{
			Message:   "verification request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &Error{Message: "verification returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		outcome, ok := response.Result().(*domain.Outcome)
		if !ok || outcome == nil {
			return nil, &Error{Message: "verification returned unparseable payload", Transient: false}
		}
		return outcome, nil
	}

	message := fmt.Sprintf("verification returned status %d", statusCode)
	if body := strings.TrimSpace(response.String()); body != "" {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return nil, &Error{
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

// backoffDelay computes min(maxDelay, base*2^(n-1)) with up to 20% jitter in
// either direction.
func (c *Client) backoffDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}

	delay := c.baseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			delay = c.maxDelay
			break
		}
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}

	jitter := 1 + jitterFraction*(c.randFloat()-0.5)*2
	return time.Duration(float64(delay) * jitter)
}

func (c *Client) emitRetry(ev RetryEvent) {
	if c.retryEvents == nil {
		return
	}
	select {
	case c.retryEvents <- ev:
	default:
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
