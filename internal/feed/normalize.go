package feed

import (
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/hitoshi/portal/internal/model"
)

// 欠損値のプレースホルダー
const (
	PlaceholderSubject = "(No Subject)"
	PlaceholderSender  = "Unknown"
	PlaceholderTitle   = "(No Title)"
)

// displayTimeLayout はメール受信時刻の表示形式（時:分）。
const displayTimeLayout = "15:04"

// NormalizeSignature は重複判定用に文字列を正規化する。
// 小文字化し、[a-z0-9] 以外の文字をすべて取り除く。
func NormalizeSignature(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeSender はFromヘッダーから表示名を取り出す。
// 表示名がなければアドレスを返す。RFC 2047でエンコードされた表示名はデコードする。
// 解析できない値は "<...>" 部分と引用符を取り除いて返す。
func NormalizeSender(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}

	if addr, err := mail.ParseAddress(from); err == nil {
		if name := trimQuotes(addr.Name); name != "" {
			return name
		}
		return addr.Address
	}

	s := from
	if i := strings.Index(s, "<"); i >= 0 {
		s = s[:i]
	}
	return trimQuotes(strings.ReplaceAll(s, `"`, ""))
}

// trimQuotes は前後の空白と引用符（" と '）を取り除く。語中のアポストロフィは残す。
func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

// ToMessageItem はRawMessageを表示用に変換する。
// 欠損したSubjectとFromはプレースホルダーで埋め、Dateはlocの時:分に整形する。
func ToMessageItem(raw RawMessage, loc *time.Location) model.MessageItem {
	h := mail.HeaderFromMap(map[string][]string{
		"Subject": {raw.Subject},
		"Date":    {raw.Date},
	})

	subject, err := h.Subject()
	if err != nil {
		subject = raw.Subject
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = PlaceholderSubject
	}

	sender := NormalizeSender(raw.From)
	if sender == "" {
		sender = PlaceholderSender
	}

	var display string
	if strings.TrimSpace(raw.Date) != "" {
		if t, err := h.Date(); err == nil {
			if loc != nil {
				t = t.In(loc)
			}
			display = t.Format(displayTimeLayout)
		}
	}

	return model.MessageItem{
		ID:          raw.ID,
		Subject:     subject,
		Sender:      sender,
		Snippet:     raw.Snippet,
		DisplayTime: display,
	}
}

// ToCalendarItem はRawEventを表示用に変換する。
// Dateは終日予定ならstart.date、時刻指定ならstart.dateTimeのオフセットでの日付。
func ToCalendarItem(raw RawEvent) model.CalendarItem {
	title := strings.TrimSpace(raw.Summary)
	if title == "" {
		title = PlaceholderTitle
	}

	item := model.CalendarItem{
		ID:       raw.ID,
		Title:    title,
		Location: raw.Location,
		Status:   raw.Status,
		HTMLLink: raw.HTMLLink,
	}

	switch {
	case raw.StartDate != "":
		item.IsAllDay = true
		item.StartTime = raw.StartDate
		item.Date = raw.StartDate
	case raw.StartDateTime != "":
		item.StartTime = raw.StartDateTime
		item.Date = calendarDate(raw.StartDateTime)
	}
	return item
}

// calendarDate はRFC 3339の日時から、そのオフセットでの日付（YYYY-MM-DD）を返す。
func calendarDate(dateTime string) string {
	if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
		return t.Format(time.DateOnly)
	}
	if len(dateTime) >= len(time.DateOnly) {
		return dateTime[:len(time.DateOnly)]
	}
	return dateTime
}

// ToTaskItem はRawTaskを表示用に変換する。
func ToTaskItem(raw RawTask) model.TaskItem {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = PlaceholderTitle
	}
	return model.TaskItem{ID: raw.ID, Title: title, Due: raw.Due, Status: raw.Status}
}

// messageSignature はメールの重複判定キーを返す。strictの場合は表示時刻も含める。
// 件名と送信者がどちらも空に正規化される場合は空文字を返す。
func messageSignature(m model.MessageItem, strict bool) string {
	subject := NormalizeSignature(m.Subject)
	sender := NormalizeSignature(m.Sender)
	if subject == "" && sender == "" {
		return ""
	}
	sig := subject + "|" + sender
	if strict {
		sig += "|" + NormalizeSignature(m.DisplayTime)
	}
	return sig
}

// eventSignature は予定の重複判定キー（タイトル|日付）を返す。
func eventSignature(e model.CalendarItem) string {
	title := NormalizeSignature(e.Title)
	if title == "" && e.Date == "" {
		return ""
	}
	return title + "|" + e.Date
}

// dedup は署名が最初に現れた項目だけを順序を保って残し、最大n件に切り詰める。
// 署名が空の項目は除外する。
func dedup[T any](items []T, n int, signature func(T) string) []T {
	out := make([]T, 0, min(len(items), max(n, 0)))
	if n <= 0 {
		return out
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		sig := signature(item)
		if sig == "" {
			continue
		}
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, item)
		if len(out) == n {
			break
		}
	}
	return out
}

// DedupMessages は件名と送信者が同じメールを1件にまとめ、最大n件を返す。
func DedupMessages(items []model.MessageItem, n int, strict bool) []model.MessageItem {
	return dedup(items, n, func(m model.MessageItem) string { return messageSignature(m, strict) })
}

// DedupEvents はタイトルと日付が同じ予定を1件にまとめ、最大n件を返す。
func DedupEvents(items []model.CalendarItem, n int) []model.CalendarItem {
	return dedup(items, n, eventSignature)
}

// PartitionEvents は予定を終日予定と時刻指定の予定に分ける。順序は保つ。
func PartitionEvents(items []model.CalendarItem) (allDay, timed []model.CalendarItem) {
	allDay = make([]model.CalendarItem, 0, len(items))
	timed = make([]model.CalendarItem, 0, len(items))
	for _, e := range items {
		if e.IsAllDay {
			allDay = append(allDay, e)
		} else {
			timed = append(timed, e)
		}
	}
	return allDay, timed
}
