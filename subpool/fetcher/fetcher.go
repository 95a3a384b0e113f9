// Package fetcher retrieves subscription bodies over HTTP with bounded
// concurrency. One attempt per URL per run: the reputation engine is the
// retry mechanism, across runs.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"subpool/internal/shared/logger"
	"subpool/internal/shared/types"
	"subpool/subpool/model"
)

// InsecureTLS disables certificate verification on subscription fetches.
// Many subscription hosts run on self-signed or expired certificates; an
// operator with trusted sources can tighten this at build time.
const InsecureTLS = true

// userAgent matches what desktop clients send; some hosts reject the Go
// default.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// maxBodySize caps a single subscription body at 16 MiB.
const maxBodySize = 16 << 20

type Fetcher struct {
	client      *http.Client
	concurrency int
}

func New(cfg types.FetcherConf) *Fetcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: InsecureTLS},
		Proxy:           http.ProxyFromEnvironment,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutS) * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{client: client, concurrency: concurrency}
}

// FetchAll retrieves every URL and returns results in input order. Individual
// failures are soft: they land in the result's Err field.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []*model.FetchResult {
	l := logger.WithComponent("Fetcher")
	l.Info().Int("count", len(urls)).Int("concurrency", f.concurrency).Msg("Fetching subscriptions...")

	results := make([]*model.FetchResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = f.fetchOne(gctx, u)
			return nil
		})
	}
	g.Wait()

	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	l.Info().Int("ok", ok).Int("failed", len(urls)-ok).Msg("Fetch finished.")
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) *model.FetchResult {
	l := logger.WithComponent("Fetcher")
	start := time.Now()
	result := &model.FetchResult{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(start)
		l.Warn().Err(err).Str("url", url).Msg("Fetch failed.")
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		result.Elapsed = time.Since(start)
		l.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("Fetch failed.")
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	result.Elapsed = time.Since(start)
	if err != nil {
		result.Err = err
		return result
	}
	result.Body = body
	l.Debug().Str("url", url).Int("bytes", len(body)).Int64("elapsed_ms", result.Elapsed.Milliseconds()).Msg("Fetched.")
	return result
}
