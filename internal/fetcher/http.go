package fetcher

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

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"wallet-score/internal/domain"
	"wallet-score/internal/metrics"
	"wallet-score/internal/version"
)

const defaultTimeout = 10 * time.Second

// httpOptions configures the shared JSON transport of one provider.
type httpOptions struct {
	Provider      string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	Headers       map[string]string
}

// httpDoer issues JSON requests for one provider with retries and metrics.
type httpDoer struct {
	opts   httpOptions
	client *http.Client
	logger zerolog.Logger
}

func newHTTPDoer(opts httpOptions, logger zerolog.Logger) *httpDoer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &httpDoer{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

func (d *httpDoer) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	return d.do(ctx, operation, http.MethodGet, endpoint, nil, out)
}

func (d *httpDoer) postJSON(ctx context.Context, operation, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return d.do(ctx, operation, http.MethodPost, endpoint, payload, out)
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// graphql posts a query and decodes the data member into out.
func (d *httpDoer) graphql(ctx context.Context, operation, endpoint, query string, variables map[string]any, out any) error {
	var resp graphqlResponse
	if err := d.postJSON(ctx, operation, endpoint, graphqlRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return domain.Upstream(d.opts.Provider, fmt.Errorf("graphql: %s", strings.Join(msgs, "; ")))
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return domain.NewError(domain.CodeNoData, d.opts.Provider+" returned no data", nil)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return domain.Upstream(d.opts.Provider, fmt.Errorf("decode %s: %w", operation, err))
	}
	return nil
}

func (d *httpDoer) do(ctx context.Context, operation, method, endpoint string, body []byte, out any) error {
	started := time.Now()
	err := retry.Do(
		func() error {
			return d.once(ctx, method, endpoint, body, out)
		},
		retry.Context(ctx),
		retry.Attempts(d.opts.RetryAttempts),
		retry.Delay(d.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Debug().Err(err).Uint("attempt", n+1).Str("operation", operation).Msg("retrying provider request")
		}),
	)

	outcome := metrics.Success
	switch {
	case errors.Is(err, domain.ErrNoData):
		outcome = metrics.NoData
	case err != nil:
		outcome = metrics.Error
	}
	metrics.RecordUpstream(time.Since(started), d.opts.Provider, operation, outcome)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.Upstream(d.opts.Provider, fmt.Errorf("%s: %w", operation, err))
}

func (d *httpDoer) once(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range d.opts.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		return retry.Unrecoverable(domain.NewError(domain.CodeNoData, d.opts.Provider+" has no record", nil))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, err: parseHTTPError(d.opts.Provider, resp.StatusCode, payload)}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return retry.Unrecoverable(domain.Upstream(d.opts.Provider, fmt.Errorf("malformed response: %w", err)))
	}
	return nil
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }

func retryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return true
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("%s api error (%d): %s", provider, status, apiErr.Error)
		}
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		if len(text) > 200 {
			text = text[:200]
		}
		return fmt.Errorf("%s api error (%d): %s", provider, status, text)
	}
	return fmt.Errorf("%s api error (%d)", provider, status)
}

func sleep(ctx context.Context, d time.Duration) error {
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
