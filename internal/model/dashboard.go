package model

import "time"

// MessageItem はダッシュボードに表示する重要メール1件。
type MessageItem struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Sender      string `json:"sender"`
	Snippet     string `json:"snippet"`
	DisplayTime string `json:"displayTime"`
}

// CalendarItem はダッシュボードに表示する予定1件。
// Dateは重複判定に使うカレンダー上の日付（YYYY-MM-DD）。
type CalendarItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	IsAllDay  bool   `json:"isAllDay"`
	StartTime string `json:"startTime"`
	Date      string `json:"date"`
	Location  string `json:"location,omitempty"`
	Status    string `json:"status,omitempty"`
	HTMLLink  string `json:"htmlLink,omitempty"`
}

// TaskItem はダッシュボードに表示するタスク1件。
type TaskItem struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Due    string `json:"due,omitempty"`
	Status string `json:"status"`
}

// SourceError は集計時に失敗した取得元を表す。
type SourceError struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Dashboard は1回の集計結果。永続化しない。
type Dashboard struct {
	Messages     []MessageItem  `json:"messages"`
	Events       []CalendarItem `json:"events"`
	AllDayEvents []CalendarItem `json:"allDayEvents"`
	TimedEvents  []CalendarItem `json:"timedEvents"`
	Tasks        []TaskItem     `json:"tasks"`
	Errors       []SourceError  `json:"errors"`
	FetchedAt    time.Time      `json:"fetchedAt"`
}

// Failed は指定した取得元が失敗したかを返す。
func (d *Dashboard) Failed(source string) bool {
	for _, e := range d.Errors {
		if e.Source == source {
			return true
		}
	}
	return false
}
