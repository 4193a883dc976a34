// Package xapi is the network client that performs the actual post.
//
// The rest of the system consumes it through a one-method Publish contract;
// everything here (auth, rate limiting, bounded retry, error summarization)
// is invisible to the runner. Retries stay inside the client and only cover
// plainly transient statuses; the cross-pass retry policy belongs to the
// runner and its journal.
package xapi

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

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	logx "xqueue/pkg/logx"
)

const (
	defaultEndpoint   = "https://api.x.com/2/tweets"
	defaultTimeout    = 30 * time.Second
	defaultRetryMax   = 2
	defaultRatePerMin = 10
)

// Config tunes the client. Zero values take the defaults above.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	RetryMax   int
	RatePerMin int
}

// Result identifies a delivered post.
type Result struct {
	ID  string
	URL string
}

type Client struct {
	httpc    *http.Client
	endpoint string
	retryMax int
	limiter  *rate.Limiter
	log      logx.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config, creds Credentials, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}
	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = defaultRatePerMin
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	httpc := oauth2.NewClient(context.Background(), ts)
	httpc.Timeout = timeout

	return &Client{
		httpc:    httpc,
		endpoint: endpoint,
		retryMax: retryMax,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		log:      log,
		sleep:    sleepCtx,
	}
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Publish posts text and returns the remote id and canonical URL.
// Transient failures (429, 5xx) are retried with exponential backoff up to
// the configured cap; all other failures return immediately.
func (c *Client) Publish(ctx context.Context, text string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return Result{}, err
	}

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= c.retryMax; attempt++ {
		res, err := c.post(ctx, payload)
		if err == nil {
			return res, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !retryable(apiErr.StatusCode) || attempt == c.retryMax {
			break
		}
		c.log.Debug("transient api error; retrying",
			logx.Int("status", apiErr.StatusCode),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", backoff),
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return Result{}, err
		}
		backoff *= 2
	}
	return Result{}, lastErr
}

func (c *Client) post(ctx context.Context, payload []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}

	if resp.StatusCode/100 != 2 {
		return Result{}, &APIError{StatusCode: resp.StatusCode, Detail: summarizeError(body)}
	}

	var tr tweetResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Result{}, fmt.Errorf("xapi: bad response: %w", err)
	}
	if tr.Data.ID == "" {
		return Result{}, &APIError{StatusCode: resp.StatusCode, Detail: "response missing tweet id"}
	}
	return Result{ID: tr.Data.ID, URL: TweetURL(tr.Data.ID)}, nil
}

// TweetURL returns the canonical web URL for a tweet id.
func TweetURL(id string) string {
	return "https://x.com/i/web/status/" + id
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
