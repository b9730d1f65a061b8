// Package fetcher performs single-shot byte fetches against the declaration CDN.
//
// The contract is deliberately lossy: one request per call, no retries, and
// every failure mode (network error, non-2xx status, unreadable body) maps to
// "absent". Callers treat an absent file as not existing, never as an error.
package fetcher

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/typewell/typewell/internal/httpclient"
)

// ByteFetcher performs a network request for a URL and returns text or absent.
type ByteFetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// CDNFetcher fetches declaration files over HTTP with outbound rate limiting
type CDNFetcher struct {
	client  *httpclient.SaferClient
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewCDNFetcher creates a fetcher over the given client.
// requestsPerSecond <= 0 disables rate limiting.
func NewCDNFetcher(client *httpclient.SaferClient, requestsPerSecond float64, burst int, logger *zap.SugaredLogger) *CDNFetcher {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}

	return &CDNFetcher{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Fetch performs one GET request. Any failure maps to absent.
func (f *CDNFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.logger.Debugw("fetch request construction failed",
			"url", url,
			"error", err)
		return "", false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debugw("fetch failed",
			"url", url,
			"error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Debugw("fetch returned non-success status",
			"url", url,
			"status", resp.StatusCode)
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Debugw("fetch body read failed",
			"url", url,
			"error", err)
		return "", false
	}

	return string(body), true
}
