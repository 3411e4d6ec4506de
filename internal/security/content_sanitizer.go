package security

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部フィードのタイトルや要約を、ニュースカードに表示できる平文に変換する。
type TextSanitizer interface {
	// PlainText は全てのタグを除去し、エンティティを戻して空白を詰めた文字列を返す。
	// maxRunes が正の場合はその文字数で切り詰め、末尾に "…" を付ける。
	PlainText(raw string, maxRunes int) string
	// ImageURL はhttpsの絶対URLだけを返す。それ以外は空文字。
	ImageURL(raw string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はbluemondayのStrictPolicyでTextSanitizerを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText はHTML断片を平文にする。同じ入力には常に同じ出力を返す。
func (s *contentSanitizer) PlainText(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes])) + "…"
	}
	return text
}

// ImageURL はカード画像として使えるURLかを判定する。
func (s *contentSanitizer) ImageURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ""
	}
	return u.String()
}

// compile-time interface check
var _ TextSanitizer = (*contentSanitizer)(nil)
