package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"
)

const (
	importantQuery  = "label:IMPORTANT"
	primaryCalendar = "primary"
	defaultTaskList = "@default"
)

// GoogleSourceConfig はGoogle APIクライアントの設定。
type GoogleSourceConfig struct {
	// Endpoint が空でない場合、全APIのベースURLを置き換える（テスト用）。
	Endpoint string
	// HTTPClient はベアラートークン付与前のベースクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// GoogleSource はGmail・Calendar・TasksのREST APIを呼び出す取得元。
// 呼び出しごとに利用者のベアラートークンでクライアントを組み立てる。
type GoogleSource struct {
	config GoogleSourceConfig
}

// NewGoogleSource はGoogleSourceを生成する。
func NewGoogleSource(config GoogleSourceConfig) *GoogleSource {
	return &GoogleSource{config: config}
}

// clientOptions はトークン付きHTTPクライアントとエンドポイントのオプションを返す。
func (s *GoogleSource) clientOptions(ctx context.Context, bearerToken string) []option.ClientOption {
	if s.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.config.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearerToken, TokenType: "Bearer"})

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if s.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.config.Endpoint))
	}
	return opts
}

// ListMessageIDs はIMPORTANTラベルのメールIDを返す。
func (s *GoogleSource) ListMessageIDs(ctx context.Context, bearerToken string, max int) ([]string, error) {
	svc, err := gmail.NewService(ctx, s.clientOptions(ctx, bearerToken)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}

	resp, err := svc.Users.Messages.List("me").
		Q(importantQuery).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m == nil || m.Id == "" {
			continue
		}
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage はメールのメタデータを取得する。本文は取得しない。
func (s *GoogleSource) GetMessage(ctx context.Context, bearerToken, id string) (*RawMessage, error) {
	svc, err := gmail.NewService(ctx, s.clientOptions(ctx, bearerToken)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}

	msg, err := svc.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("Subject", "From", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	raw := &RawMessage{ID: msg.Id, Snippet: msg.Snippet}
	if raw.ID == "" {
		raw.ID = id
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				raw.Subject = h.Value
			case "From":
				raw.From = h.Value
			case "Date":
				raw.Date = h.Value
			}
		}
	}
	return raw, nil
}

// ListEvents は主カレンダーのfrom以降の予定を返す。繰り返し予定は展開する。
func (s *GoogleSource) ListEvents(ctx context.Context, bearerToken string, from time.Time, max int) ([]RawEvent, error) {
	svc, err := calendar.NewService(ctx, s.clientOptions(ctx, bearerToken)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	resp, err := svc.Events.List(primaryCalendar).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(int64(max)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]RawEvent, 0, len(resp.Items))
	for _, e := range resp.Items {
		if e == nil {
			continue
		}
		raw := RawEvent{
			ID:       e.Id,
			Summary:  e.Summary,
			Location: e.Location,
			Status:   e.Status,
			HTMLLink: e.HtmlLink,
		}
		if e.Start != nil {
			raw.StartDate = e.Start.Date
			raw.StartDateTime = e.Start.DateTime
		}
		events = append(events, raw)
	}
	return events, nil
}

// ListTasks は既定タスクリストのタスクを返す。
func (s *GoogleSource) ListTasks(ctx context.Context, bearerToken string, max int) ([]RawTask, error) {
	svc, err := tasks.NewService(ctx, s.clientOptions(ctx, bearerToken)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks client: %w", err)
	}

	resp, err := svc.Tasks.List(defaultTaskList).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	out := make([]RawTask, 0, len(resp.Items))
	for _, t := range resp.Items {
		if t == nil {
			continue
		}
		out = append(out, RawTask{ID: t.Id, Title: t.Title, Due: t.Due, Status: t.Status})
	}
	return out, nil
}

// compile-time interface check
var (
	_ MessageSource  = (*GoogleSource)(nil)
	_ CalendarSource = (*GoogleSource)(nil)
	_ TaskSource     = (*GoogleSource)(nil)
)
