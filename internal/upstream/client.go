package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
)

// HTTPClient talks to an OpenAI-compatible chat completions endpoint. Calls
// are bounded by a per-attempt timeout, retried with exponential backoff on
// transient failures, and guarded by a circuit breaker so a dead provider
// fails fast instead of tying up the pipeline.
type HTTPClient struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	attempts uint
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewHTTPClient creates a client for the provider at baseURL. timeout bounds
// each attempt; zero means 60 seconds.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream-provider",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &HTTPClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		timeout:  timeout,
		attempts: 3,
		http:     &http.Client{},
		cb:       cb,
	}
}

// Complete forwards the request and returns the provider's completion.
// Provider 4xx responses (other than 429) are not retried.
func (c *HTTPClient) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	res, err := c.cb.Execute(func() (interface{}, error) {
		var completion *Completion
		var lastErr error

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(c.attempts),
		)

		retryErr := r.Do(func() error {
			got, callErr := c.doOnce(ctx, req)
			if callErr != nil {
				lastErr = callErr
				var pe *ProviderError
				if errors.As(callErr, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 && pe.StatusCode != http.StatusTooManyRequests {
					// Client errors will not improve on retry.
					return nil
				}
				return callErr
			}
			completion = got
			lastErr = nil
			return nil
		})
		if retryErr != nil && lastErr == nil {
			lastErr = retryErr
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return completion, nil
	})
	if err != nil {
		return nil, classifyError(err)
	}
	return res.(*Completion), nil
}

func (c *HTTPClient) doOnce(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(tctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	var completion Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	return &completion, nil
}

// classifyError maps transport and breaker failures onto the client's error
// taxonomy. Provider errors pass through unchanged.
func classifyError(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
