// Package audit はサインイン・サインアウト・アクセス許可の監査イベント送信を提供する。
// KAFKA_BROKERSが設定されている場合はKafkaへ非同期送信し、
// 未設定の場合は構造化ログへの出力のみを行う。
// 監査イベントの送信失敗はリクエスト処理を失敗させない。
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// イベント種別
const (
	EventLogin          = "login"
	EventLoginRejected  = "login_rejected"
	EventLogout         = "logout"
	EventGrantRequested = "grant_requested"
	EventGrantSucceeded = "grant_succeeded"
	EventGrantFailed    = "grant_failed"
)

// Event は1件の監査イベント。
// セッションIDそのものは含めず、SessionRefで参照する。
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	SessionRef string            `json:"sessionRef"`
	Email      string            `json:"email,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// NewEvent はIDと発生時刻を埋めたイベントを生成する。
func NewEvent(eventType, sessionID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		SessionRef: SessionRef(sessionID),
		OccurredAt: time.Now().UTC(),
	}
}

// SessionRef はセッションIDをログや監査に出せる短い参照値に変換する。
// セッションIDはCookieの値そのものなので平文では出力しない。
func SessionRef(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:8])
}

// Publisher は監査イベントの送信先。
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close() error
}

// LogPublisher は監査イベントを構造化ログに出力するだけのPublisher。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher はLogPublisherを生成する。
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish はイベントをINFOで出力する。
func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	p.logger.InfoContext(ctx, "audit event",
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
		slog.String("session_ref", event.SessionRef),
		slog.String("email", event.Email),
		slog.Any("attrs", event.Attrs),
	)
}

// Close は何もしない。
func (p *LogPublisher) Close() error { return nil }

// messageWriter はkafka.Writerのうち使用するメソッドの部分集合。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher は監査イベントをKafkaトピックへ送信するPublisher。
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
	topic  string
}

// NewKafkaPublisher はKafkaPublisherを生成する。
// Writerは非同期モードで動作し、送信エラーはErrorLoggerに出力される。
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	l := logger.WithGroup("kafka").With(slog.String("topic", topic))

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		Async:                  true,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { l.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { l.Error(fmt.Sprintf(msg, args...)) }),
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{writer: w, logger: l, topic: topic}
}

// Publish はイベントをJSONにしてKafkaへ書き込む。
// キーにはSessionRefを使い、同一セッションのイベント順序を保つ。
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	b, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("監査イベントのシリアライズに失敗しました",
			slog.String("error", err.Error()),
			slog.String("event_type", event.Type),
		)
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionRef),
		Value: b,
		Time:  event.OccurredAt,
	})
	if err != nil {
		p.logger.Warn("監査イベントの送信に失敗しました",
			slog.String("error", err.Error()),
			slog.String("event_type", event.Type),
		)
	}
}

// Close はWriterをフラッシュして閉じる。
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// New は設定に応じたPublisherを返す。brokersが空ならLogPublisher。
func New(brokers []string, topic string, logger *slog.Logger) Publisher {
	if len(brokers) == 0 {
		return NewLogPublisher(logger)
	}
	return NewKafkaPublisher(brokers, topic, logger)
}

// compile-time interface check
var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
)
