package news

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink はHTMLのheadから検出したフィードへのリンク。
type feedLink struct {
	URL  string
	Atom bool
}

var feedMediaTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
}

var xmlMediaTypes = map[string]bool{
	"text/xml":        true,
	"application/xml": true,
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// isDirectFeed はContent-Typeとボディの先頭からRSS/Atomかを判定する。
func isDirectFeed(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)
	if feedMediaTypes[mediaType] {
		return true
	}
	if !xmlMediaTypes[mediaType] || len(body) == 0 {
		return false
	}

	// 先頭4KBにルート要素が含まれる前提
	prefix := strings.ToLower(string(body[:min(len(body), 4096)]))
	switch {
	case strings.Contains(prefix, "<rss"), strings.Contains(prefix, "<rdf:rdf"):
		return true
	case strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"):
		return true
	default:
		return false
	}
}

func isHTML(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

// feedLinksFromHTML はheadのlink rel="alternate"からRSS/Atomのリンクを集める。
// 相対URLはbaseURLで解決する。
func feedLinksFromHTML(body []byte, baseURL string) []feedLink {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inHead := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return links
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}
			if rel != "alternate" || href == "" || !feedMediaTypes[linkType] {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				URL:  base.ResolveReference(ref).String(),
				Atom: linkType == "application/atom+xml",
			})
		}
	}
}

// selectFeedLink は同一ホスト、Atom、出現順の優先度で1件選ぶ。
func selectFeedLink(links []feedLink, pageURL string) *feedLink {
	if len(links) == 0 {
		return nil
	}
	pageHost := hostOf(pageURL)

	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return &links[best]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
