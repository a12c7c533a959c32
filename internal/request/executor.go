package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenSource supplies the bearer credential for outbound calls. Refresh must
// be safe under concurrent callers: simultaneous refreshes have to share a
// single in-flight exchange rather than firing in parallel.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Error is a non-success HTTP response from the payments backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// RetryPolicy controls backoff for transient failures. The zero value is not
// usable; start from DefaultRetryPolicy.
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	RetryableStatuses []int
}

// DefaultRetryPolicy retries gateway timeouts twice with 2s/4s backoff. The
// backend cold-starts after idle periods and the first call routinely 504s,
// so this is tuned to absorb exactly that.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         2 * time.Second,
		RetryableStatuses: []int{http.StatusGatewayTimeout},
	}
}

func (p RetryPolicy) retryable(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Spec describes one outbound request. Body is marshaled to JSON when non-nil.
type Spec struct {
	Method  string
	Body    interface{}
	Headers map[string]string
}

// SleepFunc waits for the given duration or until the context is done.
// Injected so tests can assert the backoff schedule without real timers.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor sends authenticated JSON requests to the payments backend with
// 401 refresh-and-resend and exponential backoff on transient failures.
type Executor struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	sleep   SleepFunc
	policy  RetryPolicy
	log     *zap.Logger
}

type Option func(*Executor)

func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) { e.client = client }
}

func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) { e.sleep = sleep }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithRetryPolicy replaces the policy used when a call passes none, letting
// deployments tune the retry knobs through configuration.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(e *Executor) { e.policy = policy }
}

func NewExecutor(baseURL string, tokens TokenSource, opts ...Option) *Executor {
	e := &Executor{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		tokens:  tokens,
		sleep:   defaultSleep,
		policy:  DefaultRetryPolicy(),
		log:     zap.L(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = NewHTTPClient(30*time.Second, e.log)
	}
	return e
}

// Execute sends the request and returns the raw response body. Transient
// failures (retryable statuses and transport errors) are retried with
// exponential backoff; a 401 triggers exactly one token refresh and resend of
// the same request. Everything else fails immediately with *Error.
func (e *Executor) Execute(ctx context.Context, path string, spec Spec, policy *RetryPolicy) ([]byte, error) {
	pol := e.policy
	if policy != nil {
		pol = *policy
	}

	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}

	var payload []byte
	if spec.Body != nil {
		var err error
		payload, err = json.Marshal(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	// One logical request keeps one request id across all of its resends
	reqID := uuid.New().String()
	refreshed := false

	for attempt := 0; ; attempt++ {
		token, err := e.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		status, body, err := e.send(ctx, method, path, payload, spec.Headers, token, reqID)
		if err != nil {
			// Transport-level failure, same schedule as retryable statuses
			if attempt < pol.MaxRetries {
				delay := pol.BaseDelay << attempt
				e.log.Warn("request failed, retrying",
					zap.String("path", path),
					zap.String("request_id", reqID),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
				if serr := e.sleep(ctx, delay); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, err
		}

		if status == http.StatusUnauthorized && !refreshed {
			refreshed = true
			e.log.Info("unauthorized, refreshing credential",
				zap.String("path", path),
				zap.String("request_id", reqID),
			)
			if _, rerr := e.tokens.Refresh(ctx); rerr != nil {
				return nil, rerr
			}
			// The refreshed resend does not consume a backoff retry
			attempt--
			continue
		}

		if status >= 200 && status < 300 {
			return body, nil
		}

		if pol.retryable(status) && attempt < pol.MaxRetries {
			delay := pol.BaseDelay << attempt
			e.log.Warn("retryable status, backing off",
				zap.String("path", path),
				zap.String("request_id", reqID),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			if serr := e.sleep(ctx, delay); serr != nil {
				return nil, serr
			}
			continue
		}

		return nil, &Error{Status: status, Message: errorMessage(status, body)}
	}
}

// PostJSON executes a POST and decodes the response body into out.
func (e *Executor) PostJSON(ctx context.Context, path string, in, out interface{}, policy *RetryPolicy) error {
	data, err := e.Execute(ctx, path, Spec{Method: http.MethodPost, Body: in}, policy)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (e *Executor) send(ctx context.Context, method, path string, payload []byte, headers map[string]string, token, reqID string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

// errorMessage pulls the server-provided message out of an error body,
// falling back to a generic status line
func errorMessage(status int, body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Err     string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			return parsed.Message
		case parsed.Err != "":
			return parsed.Err
		case parsed.Detail != "":
			return parsed.Detail
		}
	}
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}
