package news

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/portal/internal/security"
)

// FeedFetcher はRSS/Atomフィードを取得してパースする。
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error)
}

// HTTPFeedFetcher はSSRF対策済みクライアントでフィードを取得する。
// URLがHTMLページを指す場合は、headのlink rel="alternate"からフィードを1回だけ辿る。
type HTTPFeedFetcher struct {
	guard       security.FetchGuard
	timeout     time.Duration
	maxBodySize int64
}

// NewHTTPFeedFetcher はHTTPFeedFetcherを生成する。
func NewHTTPFeedFetcher(guard security.FetchGuard, timeout time.Duration, maxBodySize int64) *HTTPFeedFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBodySize <= 0 {
		maxBodySize = 5 << 20
	}
	return &HTTPFeedFetcher{guard: guard, timeout: timeout, maxBodySize: maxBodySize}
}

// Fetch はURLを検証してからフィードを取得し、gofeedでパースする。
// 200以外のステータスはエラーとする。
func (f *HTTPFeedFetcher) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, contentType, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	if !isDirectFeed(contentType, body) && isHTML(contentType) {
		link := selectFeedLink(feedLinksFromHTML(body, feedURL), feedURL)
		if link == nil {
			return nil, fmt.Errorf("no feed link found in page %s", feedURL)
		}
		body, _, err = f.get(ctx, link.URL)
		if err != nil {
			return nil, err
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return parsed, nil
}

// get はURLを検証してGETし、上限までのボディとContent-Typeを返す。
func (f *HTTPFeedFetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, "", fmt.Errorf("feed URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "JSPortal/1.0 News Reader")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.8, */*;q=0.5")

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read feed body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// compile-time interface check
var _ FeedFetcher = (*HTTPFeedFetcher)(nil)
