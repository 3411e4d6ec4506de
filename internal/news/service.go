// Package news はポータルのニュースカードを提供する。
// 社内ニュースのRSS/Atomフィードが設定されていればそれを取り込み、
// 未設定または取得失敗時は既定のニュースを返す。
package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/portal/internal/model"
	"github.com/hitoshi/portal/internal/security"
)

const (
	titleMaxRunes   = 140
	summaryMaxRunes = 280
	displayDate     = "Jan 2, 2006"
)

// Config はニュース取得の設定。
type Config struct {
	FeedURL  string
	Limit    int
	CacheTTL time.Duration
}

// Service はニュースカードの一覧を返す。結果はCacheTTLの間メモリに保持する。
type Service struct {
	fetcher   FeedFetcher
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	config    Config
	now       func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	cached    []model.Bulletin
	expiresAt time.Time
}

// NewService はServiceを生成する。Limitが0以下なら6件、CacheTTLが0以下なら10分。
func NewService(fetcher FeedFetcher, sanitizer security.TextSanitizer, logger *slog.Logger, config Config) *Service {
	if config.Limit <= 0 {
		config.Limit = 6
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 10 * time.Minute
	}
	return &Service{
		fetcher:   fetcher,
		sanitizer: sanitizer,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// List はニュースカードを返す。エラーは返さない。
func (s *Service) List(ctx context.Context) []model.Bulletin {
	if s.config.FeedURL == "" {
		return capBulletins(SeededBulletins(), s.config.Limit)
	}

	s.mu.Lock()
	if s.cached != nil && s.now().Before(s.expiresAt) {
		out := cloneBulletins(s.cached)
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	// 同時に期限切れを検知したリクエストの取得は1回にまとめる。
	// 呼び出し元のキャンセルは引き継がない。
	v, _, _ := s.group.Do(s.config.FeedURL, func() (any, error) {
		bulletins := s.refresh(context.WithoutCancel(ctx))
		s.mu.Lock()
		s.cached = bulletins
		s.expiresAt = s.now().Add(s.config.CacheTTL)
		s.mu.Unlock()
		return bulletins, nil
	})
	return cloneBulletins(v.([]model.Bulletin))
}

// refresh はフィードを取得して変換する。失敗時は既定のニュースを返す。
func (s *Service) refresh(ctx context.Context) []model.Bulletin {
	feed, err := s.fetcher.Fetch(ctx, s.config.FeedURL)
	if err != nil {
		s.logger.Warn("ニュースフィードの取得に失敗しました。既定のニュースを表示します",
			slog.String("feed_url", s.config.FeedURL),
			slog.String("error", err.Error()),
		)
		return capBulletins(SeededBulletins(), s.config.Limit)
	}

	bulletins := s.convert(feed.Items)
	if len(bulletins) == 0 {
		s.logger.Warn("ニュースフィードに表示できる記事がありません。既定のニュースを表示します",
			slog.String("feed_url", s.config.FeedURL),
			slog.Int("items", len(feed.Items)),
		)
		return capBulletins(SeededBulletins(), s.config.Limit)
	}

	s.logger.Info("ニュースフィードを取得しました",
		slog.String("feed_url", s.config.FeedURL),
		slog.Int("items", len(feed.Items)),
		slog.Int("bulletins", len(bulletins)),
	)
	return bulletins
}

// convert はフィード記事をニュースカードに変換し、重複を除いてLimit件までにする。
// 重複判定はリンク、リンクがなければタイトル・日付・要約のハッシュで行う。
func (s *Service) convert(items []*gofeed.Item) []model.Bulletin {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.Bulletin, 0, min(len(items), s.config.Limit))

	for _, item := range items {
		if len(out) == s.config.Limit {
			break
		}
		if item == nil {
			continue
		}

		title := s.sanitizer.PlainText(item.Title, titleMaxRunes)
		if title == "" {
			continue
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		summary = s.sanitizer.PlainText(summary, summaryMaxRunes)

		b := model.Bulletin{
			Title:    title,
			Summary:  summary,
			Link:     itemLink(item),
			Date:     itemDate(item),
			ImageURL: s.sanitizer.ImageURL(itemImage(item)),
		}

		key := b.Link
		if key == "" {
			key = contentHash(b.Title, b.Date, b.Summary)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		b.ID = bulletinID(key)
		out = append(out, b)
	}
	return out
}

func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://") {
		return item.GUID
	}
	return ""
}

func itemDate(item *gofeed.Item) string {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.Format(displayDate)
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.Format(displayDate)
	default:
		return item.Published
	}
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func contentHash(title, date, summary string) string {
	sum := sha256.Sum256([]byte(title + "\x00" + date + "\x00" + summary))
	return hex.EncodeToString(sum[:])
}

func capBulletins(b []model.Bulletin, limit int) []model.Bulletin {
	if len(b) > limit {
		return b[:limit]
	}
	return b
}

func cloneBulletins(b []model.Bulletin) []model.Bulletin {
	out := make([]model.Bulletin, len(b))
	copy(out, b)
	return out
}
