package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	xmladapter "github.com/ochairo/kdibridge/internal/external-adapters/xml"
)

const (
	// Max attempts for retried requests (uploads)
	maxAttempts = 3
	// Initial backoff duration
	initialBackoff = 1 * time.Second
	// Max backoff duration
	maxBackoff = 32 * time.Second
	// Timeout of a single vendor request
	requestTimeout = 2 * time.Minute

	userAgent = "kdibridge/1.0"
)

// NewHTTPClient returns the client shared by the vendor gateways
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// ConsoleURL builds a base URL from a console host (scheme optional, https
// by default), an optional port and a path prefix
func ConsoleURL(console string, port int, prefix string) string {
	base := strings.TrimRight(console, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if port > 0 {
		base += ":" + strconv.Itoa(port)
	}
	if prefix != "" {
		base += "/" + strings.Trim(prefix, "/")
	}
	return base
}

// sleepFunc waits for d or until ctx is done
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableError checks if an HTTP status code is retryable
func isRetryableError(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}

// calculateBackoff returns initial * 2^attempt, capped at limit
func calculateBackoff(initial, limit time.Duration, attempt int) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	if backoff > float64(limit) {
		backoff = float64(limit)
	}
	return time.Duration(backoff)
}

// statusError is a non-2xx vendor response
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// checkStatus classifies a response: 401/403 are authentication failures,
// any other non-2xx status is a fetch failure
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	se := &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s: %w", entities.ErrAuthFailure, op, se)
	}
	return fmt.Errorf("%w: %s: %w", entities.ErrFetchFailure, op, se)
}

// isTransient reports whether a failed request may succeed when repeated
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, entities.ErrAuthFailure) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return isRetryableError(se.StatusCode)
	}

	var ne net.Error
	return errors.As(err, &ne)
}

// apiClient issues authenticated requests against one vendor base URL
type apiClient struct {
	client  *http.Client
	baseURL string
	auth    gateways.TokenProvider
	headers map[string]string
	sleep   sleepFunc
}

func newAPIClient(baseURL string, auth gateways.TokenProvider, client *http.Client) *apiClient {
	if client == nil {
		client = NewHTTPClient()
	}
	return &apiClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		headers: map[string]string{},
		sleep:   sleepContext,
	}
}

// newRequest builds a request for path relative to the base URL and
// attaches the Authorization header
func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	if c.auth != nil {
		header, err := c.auth.AuthHeader(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", header)
	}

	return req, nil
}

// do sends req once. The caller closes the body of a returned response.
func (c *apiClient) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", entities.ErrFetchFailure, op, err)
	}

	if err := checkStatus(resp, op); err != nil {
		//nolint:errcheck,gosec // G104: Best effort close on error status
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// doWithRetry sends req up to attempts times with exponential backoff while
// failures are transient
func (c *apiClient) doWithRetry(req *http.Request, op string, attempts int) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(req.Context(), calculateBackoff(initialBackoff, maxBackoff, attempt-1)); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("%s: failed to rewind body: %w", op, err)
				}
				req.Body = body
			}
		}

		resp, err := c.do(req, op)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isTransient(req.Context(), err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// getJSON issues a GET and decodes the JSON response
func (c *apiClient) getJSON(ctx context.Context, path, op string) (*entities.RawDocument, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	return decodeJSONDocument(resp.Body, op)
}

// postJSON marshals payload, issues a POST and decodes the JSON response
func (c *apiClient) postJSON(ctx context.Context, path string, payload any, op string) (*entities.RawDocument, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	return decodeJSONDocument(resp.Body, op)
}

// getXML issues a GET and returns the raw XML body
func (c *apiClient) getXML(ctx context.Context, path, op string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read body: %w", entities.ErrFetchFailure, op, err)
	}
	return data, nil
}

// getXMLDocument issues a GET and decodes the XML response
func (c *apiClient) getXMLDocument(ctx context.Context, path, op string) (*entities.RawDocument, error) {
	data, err := c.getXML(ctx, path, op)
	if err != nil {
		return nil, err
	}

	doc, err := xmladapter.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc, nil
}

// decodeJSONDocument decodes a JSON body, keeping numbers as json.Number so
// identifiers survive unchanged
func decodeJSONDocument(r io.Reader, op string) (*entities.RawDocument, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid JSON: %v", entities.ErrParseFailure, op, err)
	}
	return entities.NewJSONDocument(root), nil
}
