package telegram

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/exchangebot/core/logger"
	"github.com/m3rciful/exchangebot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultClientTimeout     = 75 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 2
	defaultRetryBackoff      = time.Second
	defaultMaxFloodWait      = 5 * time.Second
)

// BuildHTTPClient returns the client used for Bot API calls. Transport
// errors and short flood waits are retried; other API errors are returned
// to the caller as is.
// The client timeout stays above the long-poll timeout.
func BuildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: defaultClientTimeout,
		Transport: &retryTransport{
			base:         transport,
			maxRetries:   defaultRetryAttempts,
			backoff:      defaultRetryBackoff,
			maxFloodWait: defaultMaxFloodWait,
		},
	}
}

// retryTransport waits out 429 replies up to maxFloodWait. Longer waits
// reach the caller as a flood error.
type retryTransport struct {
	base         http.RoundTripper
	maxRetries   int
	backoff      time.Duration
	maxFloodWait time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		current := req
		if attempt > 1 {
			var err error
			if current, err = rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := base.RoundTrip(current)
		var delay time.Duration
		status := "retry"
		switch {
		case err == nil && resp.StatusCode == http.StatusTooManyRequests:
			wait := netutil.ResponseRetryAfter(resp)
			if wait <= 0 || wait > t.maxFloodWait || attempt == attempts || !rewindable(req) {
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("bot api: too many requests, retry after %s", wait)
			delay, status = wait, "flood_wait"
		case err == nil:
			return resp, nil
		default:
			lastErr = err
			if !netutil.ShouldRetry(err) || attempt == attempts || !rewindable(req) {
				return nil, lastErr
			}
			delay = max(t.backoff*time.Duration(attempt), netutil.RetryAfter(err))
		}

		logger.TG.Debug("bot api retry",
			slog.String("event", "http.retry"),
			slog.String("status", status),
			slog.Int("attempts", attempt),
			slog.Duration("backoff", delay),
			slog.String("err", logger.SanitizeLimit(lastErr.Error(), 256)),
		)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// rewindable reports whether req can be sent again.
func rewindable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		next.Body = body
	}
	return next, nil
}
