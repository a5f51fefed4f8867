package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

type StaticListing struct {
	BaseURL   string
	Client    *http.Client
	Retries   uint64
	DebugFile string
	Logger    *zap.Logger
}

func NewStaticListing(baseURL string, timeout time.Duration, logger *zap.Logger) *StaticListing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticListing{
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: timeout},
		Retries:   2,
		DebugFile: DefaultDebugFile,
		Logger:    logger,
	}
}

func (l *StaticListing) FetchListing(ctx context.Context, scope Scope) ([]Row, error) {
	endpoint, err := SearchURL(l.BaseURL, scope)
	if err != nil {
		return nil, err
	}
	l.Logger.Info("fetching errata listing", zap.String("url", endpoint))

	var (
		body string
		loc  *url.URL
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := l.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(b)
		loc = resp.Request.URL
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("http %d", resp.StatusCode)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: http %d", ErrAccessDenied, resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("http %d", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	err = backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, l.Retries), ctx), func(err error, wait time.Duration) {
		l.Logger.Warn("listing fetch failed, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		if body != "" {
			dumpPage(l.DebugFile, body, l.Logger)
		}
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	return rowsFromHTML(body, loc, l.DebugFile, l.Logger)
}
