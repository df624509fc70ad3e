package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// maxBodyBytes caps how much of a page body is read into memory
const maxBodyBytes = 10 << 20

// RetryPolicy controls FetchWithRetry's backoff
type RetryPolicy struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
}

// RetryPolicyFrom extracts the retry settings from the application config
func RetryPolicyFrom(cfg *config.AppConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        cfg.MaxRetries,
		InitialRetryDelay: cfg.InitialRetryDelay,
		MaxRetryDelay:     cfg.MaxRetryDelay,
	}
}

// Document is a fetched page body and the URL it was finally served from
type Document struct {
	URL         *url.URL
	Body        []byte
	ContentType string
}

// Fetcher makes HTTP requests with retries and per-host politeness
type Fetcher struct {
	client  *http.Client
	policy  RetryPolicy
	hosts   *HostGates // optional
	limiter *RateLimiter       // optional
	log     *logrus.Entry
}

// NewFetcher creates a Fetcher. hosts and limiter may be nil.
func NewFetcher(client *http.Client, policy RetryPolicy, hosts *HostGates, limiter *RateLimiter, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		policy:  policy,
		hosts:   hosts,
		limiter: limiter,
		log:     log,
	}
}

// FetchPage GETs rawURL with the given user agent and reads the body.
// Per-host concurrency and delay are applied around the whole retry sequence.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL, userAgent string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request for '%s': %v", utils.ErrParsing, rawURL, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	host := req.URL.Hostname()

	if f.hosts != nil {
		leave, err := f.hosts.Enter(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("waiting for host slot on %s: %w", host, err)
		}
		defer leave()
	}
	if f.limiter != nil {
		if err := f.limiter.ApplyDelay(ctx, host, 0); err != nil {
			return nil, err
		}
	}

	resp, err := f.FetchWithRetry(ctx, req)
	if f.limiter != nil {
		f.limiter.UpdateLastRequestTime(host)
	}
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body of '%s': %w", rawURL, err)
	}
	return &Document{URL: resp.Request.URL, Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// FetchWithRetry performs req under ctx, retrying network errors, 5xx and 429 with
// exponential backoff and jitter. Non-retryable 4xx and other statuses return the
// response together with an error; the caller must close its body.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())
	maxRetries := f.policy.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")
			if err := utils.SleepContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: during retry delay after error: %v", err, lastErr)
			}
		} else if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			if resp != nil {
				drain(resp)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", err)
			lastErr = err
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil
		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
			drain(resp)
		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
			drain(resp)
		case statusCode >= 400:
			resLog.Warn("Client error (4xx), not retrying")
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff returns initial * 2^(attempt-1) capped at MaxRetryDelay, with +/- 10% jitter.
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.policy.InitialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || (f.policy.MaxRetryDelay > 0 && delay > f.policy.MaxRetryDelay) {
		delay = f.policy.MaxRetryDelay
	}
	if jitterRange := int64(delay) / 5; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange)) - delay/10
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
