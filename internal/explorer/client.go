// Package explorer is a client for Etherscan-compatible account APIs.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"wallet-score/internal/domain"
	"wallet-score/internal/metrics"
	"wallet-score/internal/version"
)

const (
	DefaultPageSize = 10000
	endBlock        = "999999999"
)

var noDataMessages = []string{"no transactions found", "no records found", "no token transfers found"}

// Options parameterise an explorer client.
type Options struct {
	Name          string
	BaseURL       string
	APIKey        string
	PageSize      int
	PageDelay     time.Duration
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

// Client talks to one explorer. It is safe for concurrent use and meant to be long-lived.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an explorer client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	if opts.Name == "" {
		opts.Name = "explorer"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "explorer").Str("provider", opts.Name).Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// PageSize is the number of items requested per page.
func (c *Client) PageSize() int { return c.opts.PageSize }

// GetBalance returns the native balance in minor units.
func (c *Client) GetBalance(ctx context.Context, address string) (string, error) {
	params := url.Values{}
	params.Set("action", string(actionBalance))
	params.Set("address", address)
	params.Set("tag", "latest")

	raw, err := c.call(ctx, actionBalance, params)
	if err != nil {
		return "", err
	}
	return decodeAmount(raw)
}

// GetTokenBalance returns the ERC-20 balance of contract held by address in minor units.
func (c *Client) GetTokenBalance(ctx context.Context, address, contract string) (string, error) {
	params := url.Values{}
	params.Set("action", string(actionTokenBalance))
	params.Set("contractaddress", contract)
	params.Set("address", address)
	params.Set("tag", "latest")

	raw, err := c.call(ctx, actionTokenBalance, params)
	if err != nil {
		return "", err
	}
	return decodeAmount(raw)
}

// FetchAll pages through a list action using the last seen block number as cursor.
// When a later page fails the items gathered so far are returned.
func FetchAll[T Item](ctx context.Context, c *Client, address string, action Action) ([]T, error) {
	if err := action.validate(); err != nil {
		return nil, err
	}

	cursor := "0"
	var (
		all   []T
		pages int
	)
	for {
		page, err := fetchPage[T](ctx, c, address, action, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if pages > 0 {
				c.logger.Warn().Err(err).
					Str("action", string(action)).
					Int("pages", pages).
					Int("items", len(all)).
					Msg("page fetch failed; returning partial result")
				return all, nil
			}
			return nil, err
		}
		pages++
		all = append(all, page...)

		if len(page) < c.opts.PageSize {
			return all, nil
		}

		next := page[len(page)-1].Block()
		if next == "" || next == cursor {
			c.logger.Warn().Str("action", string(action)).Str("block", next).
				Msg("page cursor did not advance; stopping pagination")
			return all, nil
		}
		cursor = next

		if err := sleep(ctx, c.opts.PageDelay); err != nil {
			return nil, err
		}
	}
}

func fetchPage[T Item](ctx context.Context, c *Client, address string, action Action, startBlock string) ([]T, error) {
	params := url.Values{}
	params.Set("action", string(action))
	params.Set("address", address)
	params.Set("startblock", startBlock)
	params.Set("endblock", endBlock)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(c.opts.PageSize))
	params.Set("sort", "asc")

	raw, err := c.call(ctx, action, params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, domain.Upstream(c.opts.Name, fmt.Errorf("decode %s page: %w", action, err))
	}
	return items, nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("explorer responded %d", e.status)
	}
	return fmt.Sprintf("explorer responded %d: %s", e.status, e.body)
}

var errRateLimited = errors.New("explorer rate limit reached")

// call performs one request with retries. A nil result means the documented "no data" answer.
func (c *Client) call(ctx context.Context, action Action, params url.Values) (json.RawMessage, error) {
	params.Set("module", "account")
	if c.opts.APIKey != "" {
		params.Set("apikey", c.opts.APIKey)
	}
	endpoint := c.baseURL + "?" + params.Encode()

	started := time.Now()
	result, err := retry.DoWithData(
		func() (json.RawMessage, error) {
			return c.do(ctx, endpoint)
		},
		retry.Context(ctx),
		retry.Attempts(c.opts.RetryAttempts),
		retry.Delay(c.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug().Err(err).Uint("attempt", n+1).Str("action", string(action)).Msg("retrying explorer request")
		}),
	)

	outcome := metrics.Success
	switch {
	case err != nil:
		outcome = metrics.Error
	case result == nil:
		outcome = metrics.NoData
	}
	metrics.RecordUpstream(time.Since(started), c.opts.Name, string(action), outcome)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, err
		}
		return nil, domain.Upstream(c.opts.Name, fmt.Errorf("%s: %w", action, err))
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: truncate(strings.TrimSpace(string(body)), 200)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, retry.Unrecoverable(domain.Upstream(c.opts.Name, fmt.Errorf("malformed response: %w", err)))
	}

	if env.Status == "1" {
		return env.Result, nil
	}

	message := strings.ToLower(env.Message)
	for _, m := range noDataMessages {
		if strings.Contains(message, m) {
			return nil, nil
		}
	}

	var detail string
	_ = json.Unmarshal(env.Result, &detail)
	if strings.Contains(strings.ToLower(detail), "rate limit") {
		return nil, fmt.Errorf("%w: %s", errRateLimited, detail)
	}
	if detail == "" {
		detail = env.Message
	}
	return nil, retry.Unrecoverable(domain.Upstream(c.opts.Name, fmt.Errorf("status %s: %s", env.Status, detail)))
}

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

func decodeAmount(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "0", nil
	}
	var amount string
	if err := json.Unmarshal(raw, &amount); err != nil {
		return "", domain.Upstream("explorer", fmt.Errorf("decode amount: %w", err))
	}
	if !isDigits(amount) {
		return "", domain.Upstream("explorer", fmt.Errorf("amount %q is not an integer", amount))
	}
	return amount, nil
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return v[:n]
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
