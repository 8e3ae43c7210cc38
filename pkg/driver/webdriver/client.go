// Package webdriver implements core.Transport over the W3C WebDriver HTTP protocol.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devicelab-dev/browser-runner/pkg/core"
)

// Options configures a Client.
type Options struct {
	// RequestTimeout bounds each HTTP request. 0 means 60s.
	RequestTimeout time.Duration
	// RateLimit caps requests per second. 0 disables limiting.
	RateLimit float64
	// ConnectRetry is how long session creation keeps retrying while the
	// server is unreachable. 0 means a single attempt.
	ConnectRetry time.Duration
	Logger       *zap.Logger
	HTTPClient   *http.Client
}

// Client handles HTTP communication with a WebDriver server.
type Client struct {
	serverURL    string
	client       *http.Client
	limiter      *rate.Limiter
	connectRetry time.Duration
	logger       *zap.Logger

	mu        sync.RWMutex
	sessionID string
}

// NewClient creates a new WebDriver client.
func NewClient(serverURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		serverURL:    strings.TrimSuffix(serverURL, "/"),
		client:       httpClient,
		limiter:      limiter,
		connectRetry: opts.ConnectRetry,
		logger:       logger,
	}
}

// Connect creates a new session with the given capabilities.
// Unreachable servers are retried with exponential backoff for ConnectRetry;
// a W3C error response is not retried.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	var resp gjson.Result
	operation := func() error {
		r, err := c.post(ctx, "/session", body)
		if err != nil {
			var protoErr *ProtocolError
			if errors.As(err, &protoErr) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Debug("session creation failed, retrying", zap.Error(err))
			return err
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = c.connectRetry
	var policy backoff.BackOff = b
	if c.connectRetry <= 0 {
		policy = &backoff.StopBackOff{}
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return core.ErrSessionNotCreated.WithCause(err)
	}

	id := resp.Get("value.sessionId").String()
	if id == "" {
		// JSON Wire Protocol servers put the id at the top level
		id = resp.Get("sessionId").String()
	}
	if id == "" {
		return core.ErrSessionNotCreated.WithMessage("no session ID in response")
	}

	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
	c.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("browser", resp.Get("value.capabilities.browserName").String()),
	)
	return nil
}

// Disconnect deletes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := c.delete(ctx, "/session/"+id)
	return err
}

// SessionID returns the current session id, or "" when not connected.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) sessionPath() string {
	return "/session/" + c.SessionID()
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(ctx context.Context, path string) (gjson.Result, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (gjson.Result, error) {
	if body == nil {
		// W3C requires a JSON object body on every POST
		body = map[string]interface{}{}
	}
	return c.request(ctx, http.MethodPost, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (gjson.Result, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}) (gjson.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, core.ErrInvalidArgument.WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, bodyReader)
	if err != nil {
		return gjson.Result{}, core.ErrTransport.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		return gjson.Result{}, core.ErrTransport.WithMessagef("%s %s failed", method, path).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, core.ErrTransport.WithMessagef("%s %s: reading response", method, path).WithCause(err)
	}
	c.logger.Debug("webdriver request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, core.ErrTransport.WithMessagef("%s %s: invalid JSON response (HTTP %d)", method, path, resp.StatusCode)
	}
	result := gjson.ParseBytes(respBody)
	if code := result.Get("value.error"); code.Exists() && code.String() != "" {
		return gjson.Result{}, newProtocolError(resp.StatusCode, result.Get("value"))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return gjson.Result{}, &ProtocolError{Status: resp.StatusCode, Code: "unknown error", Message: string(respBody)}
	}
	return result, nil
}

// ProtocolError is a W3C WebDriver error response.
type ProtocolError struct {
	Status  int
	Code    string // W3C error code, e.g. "no such element"
	Message string
}

func newProtocolError(status int, value gjson.Result) *ProtocolError {
	return &ProtocolError{
		Status:  status,
		Code:    value.Get("error").String(),
		Message: value.Get("message").String(),
	}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("webdriver %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// asExecutionError wraps protocol and HTTP failures in core.ErrTransport.
// Context errors pass through unchanged.
func asExecutionError(action core.Action, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	details := map[string]interface{}{"action": string(action)}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		details["w3c_error"] = protoErr.Code
		if protoErr.Code == "invalid selector" || protoErr.Code == "invalid argument" {
			return core.ErrInvalidArgument.WithMessage(protoErr.Message).WithDetails(details).WithCause(err)
		}
	}
	return core.ErrTransport.WithMessagef("%s failed", action).WithDetails(details).WithCause(err)
}
