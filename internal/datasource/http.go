package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"simtrader/internal/util"
)

// HTTPOptions configures the transport shared by HTTP providers.
type HTTPOptions struct {
	Timeout     time.Duration
	Proxy       string
	MaxAttempts int
	RetryDelay  time.Duration
	Limiter     *util.RateLimiter
}

type httpGetter struct {
	client   *http.Client
	attempts int
	delay    time.Duration
	limiter  *util.RateLimiter
}

func newHTTPGetter(opts HTTPOptions) *httpGetter {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := max(opts.MaxAttempts, 1)
	return &httpGetter{
		client:   &http.Client{Timeout: timeout, Transport: transport},
		attempts: attempts,
		delay:    opts.RetryDelay,
		limiter:  opts.Limiter,
	}
}

// get fetches rawURL, retrying transport errors, 429 and 5xx responses.
// Errors never include the URL, which may carry an API key.
func (g *httpGetter) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := util.Retry(ctx, g.attempts, g.delay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return util.Permanent(redact(err))
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := g.client.Do(req)
		if err != nil {
			return redact(err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			body = b
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			return util.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
	})
	return body, err
}

func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
