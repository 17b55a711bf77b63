package scraper

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/osmkhan/lda-scraper/pkg/lda/internalerr"
)

// Client fetches pages and PDFs from the authority's site. Every request
// is preceded by the politeness delay; failures are retried with
// exponential backoff.
type Client struct {
	http       *http.Client
	userAgent  string
	maxRetries int
	delay      time.Duration

	// backoffBase scales the retry waits; tests shrink it.
	backoffBase time.Duration

	logger *slog.Logger
}

// NewClient builds a Client. maxRetries counts total attempts and is
// clamped to at least 1.
func NewClient(userAgent string, timeout, delay time.Duration, maxRetries int, logger *slog.Logger) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		userAgent:   userAgent,
		maxRetries:  maxRetries,
		delay:       delay,
		backoffBase: time.Second,
		logger:      logger,
	}
}

// Get fetches rawURL, retrying transport errors and HTTP statuses >= 400.
// After a failed attempt n it waits backoffBase << n before the next one.
// The caller closes the response body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.wait(ctx, c.delay); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidInput, err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 400 {
			resp.Body.Close()
			lastErr = fmt.Errorf("http status %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		c.logger.Warn("request failed", "url", rawURL, "attempt", attempt+1, "error", lastErr)
		if attempt < c.maxRetries-1 {
			if err := c.wait(ctx, c.backoffBase<<attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: get %s after %d attempts: %v", internalerr.ErrDownload, rawURL, c.maxRetries, lastErr)
}

// Download fetches the PDF at rawURL into destDir and returns the local
// path. A file that already exists is kept as-is and not re-fetched.
func (c *Client) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	dest := filepath.Join(destDir, FileName(rawURL))
	if _, err := os.Stat(dest); err == nil {
		c.logger.Debug("already downloaded", "url", rawURL, "path", dest)
		return dest, nil
	}

	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("%w: write %s: %v", internalerr.ErrDownload, dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", err
	}
	c.logger.Info("downloaded", "url", rawURL, "path", dest)
	return dest, nil
}

// FileName derives a stable local filename for a document URL: the URL's
// basename when it already names a PDF, otherwise a short hash of the
// full URL.
func FileName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if strings.HasSuffix(strings.ToLower(base), ".pdf") {
			return base
		}
	}
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:8] + ".pdf"
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
