// Package submit sends finished statements to the external strategy
// persistence service.
//
// The service stores the document, assigns an id and answers with the
// timeframes the strategy needs market data for:
//
//	client := submit.NewClient("http://localhost:8000", nil)
//	res, err := client.CreateStatement(ctx, "account-42", stmt)
//	res, err = client.EditStatement(ctx, res.ID, stmt)
//
// Transient failures (transport errors and 5xx) are retried with
// exponential backoff. The client never modifies the statement it sends.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cast"

	"github.com/algomatic/statement-builder/pkg/statement"
)

// DefaultTimeout is the per-request timeout applied to API calls.
const DefaultTimeout = 30 * time.Second

// MaxRetries is the number of retry attempts for transient errors.
const MaxRetries = 3

var (
	// ErrNotFound is returned when the service has no such statement.
	ErrNotFound = errors.New("statement not found")
	// ErrRejected is returned when the service refuses the document.
	ErrRejected = errors.New("statement rejected")
)

// Config holds optional configuration for the submission client.
type Config struct {
	// Timeout per HTTP request. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxRetries for transient errors. Zero means the package default.
	MaxRetries int

	// Backoff is the delay before the first retry; it doubles on each
	// attempt. Zero means 500ms.
	Backoff time.Duration

	// Logger for debug/info output. Nil uses slog.Default().
	Logger *slog.Logger
}

// Client talks to the strategy persistence service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a submission client. baseURL includes scheme and host.
func NewClient(baseURL string, cfg *Config) *Client {
	timeout := DefaultTimeout
	retries := MaxRetries
	backoff := 500 * time.Millisecond
	logger := slog.Default()

	if cfg != nil {
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			retries = cfg.MaxRetries
		}
		if cfg.Backoff > 0 {
			backoff = cfg.Backoff
		}
		if cfg.Logger != nil {
			logger = cfg.Logger
		}
	}

	logger.Info("Submission client initialised",
		"base_url", baseURL,
		"timeout", timeout,
		"max_retries", retries,
	)

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		backoff:    backoff,
		logger:     logger,
	}
}

// ---------------------------------------------------------------------------
// JSON shapes
// ---------------------------------------------------------------------------

// Result is the service's answer to a create or edit.
type Result struct {
	ID                 string   `json:"id"`
	TimeframesRequired []string `json:"timeframes_required"`
}

type resultPayload struct {
	ID                 any      `json:"id"`
	TimeframesRequired []string `json:"timeframes_required"`
}

// Summary is one entry of a statement listing.
type Summary struct {
	ID         string
	Account    string
	Name       string
	Label      string
	Side       statement.Side
	Instrument string
}

type summaryPayload struct {
	ID         any    `json:"id"`
	Account    any    `json:"account"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	Side       string `json:"side"`
	Instrument string `json:"instrument"`
}

type apiError struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func (e apiError) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}

// ---------------------------------------------------------------------------
// Public Methods
// ---------------------------------------------------------------------------

// CreateStatement submits s as a new strategy owned by account.
func (c *Client) CreateStatement(ctx context.Context, account string, s *statement.Statement) (*Result, error) {
	body, err := document(s, map[string]any{"account": account})
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: %w", err)
	}

	c.logger.Debug("Submitting statement", "account", account, "label", s.Label)

	resp, err := c.do(ctx, http.MethodPost, "/api/strategies/", body)
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: %w", err)
	}
	res, err := decodeResult(resp)
	if err != nil {
		return nil, fmt.Errorf("CreateStatement: %w", err)
	}

	c.logger.Info("Statement submitted",
		"id", res.ID, "label", s.Label, "timeframes", res.TimeframesRequired,
	)
	return res, nil
}

// EditStatement replaces the document of an already submitted strategy.
func (c *Client) EditStatement(ctx context.Context, id string, s *statement.Statement) (*Result, error) {
	body, err := document(s, nil)
	if err != nil {
		return nil, fmt.Errorf("EditStatement: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/api/strategies/"+url.PathEscape(id)+"/edit/", body)
	if err != nil {
		return nil, fmt.Errorf("EditStatement: %w", err)
	}
	res, err := decodeResult(resp)
	if err != nil {
		return nil, fmt.Errorf("EditStatement: %w", err)
	}
	if res.ID == "" {
		res.ID = id
	}

	c.logger.Info("Statement updated", "id", id, "timeframes", res.TimeframesRequired)
	return res, nil
}

// GetStatement fetches a submitted strategy and hydrates it for editing.
func (c *Client) GetStatement(ctx context.Context, id string) (*statement.Statement, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/strategies/"+url.PathEscape(id)+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %w", err)
	}
	s, err := statement.Decode(resp)
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %w", err)
	}
	return s, nil
}

// ListStatements returns the strategies owned by account.
func (c *Client) ListStatements(ctx context.Context, account string) ([]Summary, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/strategies/", nil)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: %w", err)
	}

	var rows []summaryPayload
	if err := json.Unmarshal(resp, &rows); err != nil {
		return nil, fmt.Errorf("ListStatements: decoding response: %w", err)
	}

	// The service lists every account; ownership is filtered here.
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		if cast.ToString(r.Account) != account {
			continue
		}
		out = append(out, Summary{
			ID:         cast.ToString(r.ID),
			Account:    account,
			Name:       r.Name,
			Label:      r.Label,
			Side:       statement.Side(r.Side),
			Instrument: r.Instrument,
		})
	}
	return out, nil
}

// DeleteStatement removes a submitted strategy.
func (c *Client) DeleteStatement(ctx context.Context, id string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/api/strategies/"+url.PathEscape(id)+"/delete/", nil); err != nil {
		return fmt.Errorf("DeleteStatement: %w", err)
	}
	c.logger.Info("Statement deleted", "id", id)
	return nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// document encodes s in the backend shape plus extra top-level fields. The
// instrument falls back to the default and Equity is always present.
func document(s *statement.Statement, extra map[string]any) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil statement")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding statement: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encoding statement: %w", err)
	}
	if _, ok := doc["instrument"]; !ok {
		doc["instrument"], _ = json.Marshal(statement.DefaultInstrument)
	}
	if _, ok := doc["Equity"]; !ok {
		doc["Equity"] = json.RawMessage("[]")
	}
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", k, err)
		}
		doc[k] = b
	}
	return json.Marshal(doc)
}

func decodeResult(body []byte) (*Result, error) {
	var p resultPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &Result{ID: cast.ToString(p.ID), TimeframesRequired: p.TimeframesRequired}, nil
}

// do executes a request with retries and exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	u := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * c.backoff
			c.logger.Debug("Retrying request",
				"attempt", attempt, "backoff", backoff, "method", method, "url", u,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Warn("HTTP request failed", "url", u, "attempt", attempt, "err", err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, nil
		case resp.StatusCode == http.StatusNotFound:
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.message() != "" {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, apiErr.message())
			}
			return nil, ErrNotFound
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.message() != "" {
				return nil, fmt.Errorf("%w: %s", ErrRejected, apiErr.message())
			}
			return nil, fmt.Errorf("%w (status %d)", ErrRejected, resp.StatusCode)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (status %d)", resp.StatusCode)
			c.logger.Warn("Server error, will retry",
				"status", resp.StatusCode, "attempt", attempt,
			)
			continue
		default:
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("all %d retries exhausted: %w", c.maxRetries, lastErr)
}
