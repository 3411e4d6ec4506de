// Package feed はGmail・Googleカレンダー・Google Tasksからダッシュボード用の
// 項目を取得し、正規化・重複除去して返す集計処理を提供する。
package feed

import (
	"context"
	"time"
)

// 取得元の名前。SourceError.Sourceやメトリクスのラベルに使う。
const (
	SourceMessages = "messages"
	SourceEvents   = "events"
	SourceTasks    = "tasks"
)

// RawMessage はメール取得APIから得たメタデータ。ヘッダー値は未加工のまま保持する。
type RawMessage struct {
	ID      string
	Subject string
	From    string
	Date    string
	Snippet string
}

// RawEvent はカレンダーAPIから得た予定。
// 終日予定はStartDate、時刻指定の予定はStartDateTime（RFC 3339）が設定される。
type RawEvent struct {
	ID            string
	Summary       string
	StartDate     string
	StartDateTime string
	Location      string
	Status        string
	HTMLLink      string
}

// RawTask はタスクAPIから得たタスク。
type RawTask struct {
	ID     string
	Title  string
	Due    string
	Status string
}

// MessageSource は重要メールの取得元。
type MessageSource interface {
	// ListMessageIDs は重要メールのIDを新しい順に最大max件返す。
	ListMessageIDs(ctx context.Context, bearerToken string, max int) ([]string, error)
	// GetMessage は1件分のメタデータ（Subject, From, Date, snippet）を返す。
	GetMessage(ctx context.Context, bearerToken, id string) (*RawMessage, error)
}

// CalendarSource は予定の取得元。
type CalendarSource interface {
	// ListEvents はfrom以降の予定を開始時刻順に最大max件返す。
	ListEvents(ctx context.Context, bearerToken string, from time.Time, max int) ([]RawEvent, error)
}

// TaskSource はタスクの取得元。
type TaskSource interface {
	// ListTasks は既定リストのタスクを最大max件返す。
	ListTasks(ctx context.Context, bearerToken string, max int) ([]RawTask, error)
}
