package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/portal/internal/metrics"
	"github.com/hitoshi/portal/internal/model"
)

// 集計結果のラベル
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

// AggregatorConfig は集計の設定。
type AggregatorConfig struct {
	Limit              int            // 各リストの最大件数 N
	Candidates         int            // 重複除去前に取得する候補数 M
	TaskLimit          int            // タスクの取得件数
	MaxConcurrent      int            // メール詳細取得の最大並列数
	Timeout            time.Duration  // 集計1回の上限時間
	StrictMessageDedup bool           // メールの重複判定に表示時刻を含める
	Location           *time.Location // メール受信時刻の表示タイムゾーン
}

// Aggregator は3つの取得元から並行して項目を集め、ダッシュボードを組み立てる。
// 取得元ごとの失敗は互いに影響せず、失敗した取得元は空リストとSourceErrorになる。
type Aggregator struct {
	messages MessageSource
	events   CalendarSource
	tasks    TaskSource
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   AggregatorConfig
	now      func() time.Time
}

// NewAggregator はAggregatorを生成する。
// 設定値が0以下の場合は既定値（N=5, M=12, タスク4件, 並列6, 15秒）を使う。
func NewAggregator(
	messages MessageSource,
	events CalendarSource,
	tasks TaskSource,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	config AggregatorConfig,
) *Aggregator {
	if config.Limit <= 0 {
		config.Limit = 5
	}
	if config.Candidates < config.Limit {
		config.Candidates = max(12, config.Limit)
	}
	if config.TaskLimit <= 0 {
		config.TaskLimit = 4
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 6
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Aggregator{
		messages: messages,
		events:   events,
		tasks:    tasks,
		metrics:  collector,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Aggregate はベアラートークンで3つの取得元を呼び出し、正規化・重複除去した結果を返す。
// エラーは返さず、失敗はDashboard.Errorsに記録する。
// 全体の処理時間はTimeoutで打ち切る。
func (a *Aggregator) Aggregate(ctx context.Context, bearerToken string) *model.Dashboard {
	start := a.now()
	runID := uuid.NewString()
	logger := a.logger.With(slog.String("run_id", runID))

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	dash := &model.Dashboard{
		Messages:     []model.MessageItem{},
		Events:       []model.CalendarItem{},
		AllDayEvents: []model.CalendarItem{},
		TimedEvents:  []model.CalendarItem{},
		Tasks:        []model.TaskItem{},
		Errors:       []model.SourceError{},
	}

	// 取得元ごとの失敗。順序を固定するためスロットに格納する。
	var failures [3]*model.SourceError

	var g errgroup.Group
	g.Go(func() error {
		items, serr := a.collectMessages(ctx, logger, bearerToken)
		dash.Messages, failures[0] = items, serr
		return nil
	})
	g.Go(func() error {
		items, serr := a.collectEvents(ctx, logger, bearerToken, start)
		if serr == nil {
			dash.Events = items
			dash.AllDayEvents, dash.TimedEvents = PartitionEvents(items)
		}
		failures[1] = serr
		return nil
	})
	g.Go(func() error {
		items, serr := a.collectTasks(ctx, logger, bearerToken)
		dash.Tasks, failures[2] = items, serr
		return nil
	})
	_ = g.Wait()

	for _, f := range failures {
		if f != nil {
			dash.Errors = append(dash.Errors, *f)
		}
	}
	dash.FetchedAt = a.now().UTC()

	result := ResultSuccess
	switch {
	case len(dash.Errors) == len(failures):
		result = ResultFailed
	case len(dash.Errors) > 0:
		result = ResultPartial
	}

	elapsed := a.now().Sub(start)
	if a.metrics != nil {
		a.metrics.RecordAggregate(result)
		a.metrics.RecordAggregateLatency(elapsed)
		a.metrics.RecordItemsReturned(SourceMessages, len(dash.Messages))
		a.metrics.RecordItemsReturned(SourceEvents, len(dash.Events))
		a.metrics.RecordItemsReturned(SourceTasks, len(dash.Tasks))
	}

	logger.Info("ダッシュボードを集計しました",
		slog.String("result", result),
		slog.Int("messages", len(dash.Messages)),
		slog.Int("events", len(dash.Events)),
		slog.Int("tasks", len(dash.Tasks)),
		slog.Int("failed_sources", len(dash.Errors)),
		slog.Float64("duration_ms", float64(elapsed.Milliseconds())),
	)

	return dash
}

// collectMessages は候補IDを取得し、詳細を並列に取得して重複除去する。
// 個別の詳細取得の失敗はその1件を除外するだけで、全件失敗した場合のみ取得元の失敗とする。
func (a *Aggregator) collectMessages(ctx context.Context, logger *slog.Logger, bearerToken string) ([]model.MessageItem, *model.SourceError) {
	empty := []model.MessageItem{}

	ids, err := a.messages.ListMessageIDs(ctx, bearerToken, a.config.Candidates)
	if err != nil {
		return empty, a.sourceFailure(logger, SourceMessages, err)
	}
	if len(ids) == 0 {
		return empty, nil
	}

	raws := make([]*RawMessage, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(a.config.MaxConcurrent)
	for i, id := range ids {
		g.Go(func() error {
			raw, err := a.messages.GetMessage(ctx, bearerToken, id)
			if err != nil {
				errs[i] = err
				return nil
			}
			raws[i] = raw
			return nil
		})
	}
	_ = g.Wait()

	items := make([]model.MessageItem, 0, len(ids))
	var firstErr error
	for i, raw := range raws {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			if a.metrics != nil {
				a.metrics.RecordEnrichFailure()
			}
			logger.Warn("メール詳細の取得に失敗しました",
				slog.String("source", SourceMessages),
				slog.String("message_id", ids[i]),
				slog.String("reason", ClassifyError(errs[i])),
				slog.String("error", errs[i].Error()),
			)
			continue
		}
		if raw == nil {
			continue
		}
		items = append(items, ToMessageItem(*raw, a.config.Location))
	}

	if len(items) == 0 && firstErr != nil {
		return empty, a.sourceFailure(logger, SourceMessages, firstErr)
	}

	out := DedupMessages(items, a.config.Limit, a.config.StrictMessageDedup)
	a.recordDropped(SourceMessages, len(items), len(out))
	return out, nil
}

// collectEvents は予定を取得して重複除去する。
func (a *Aggregator) collectEvents(ctx context.Context, logger *slog.Logger, bearerToken string, from time.Time) ([]model.CalendarItem, *model.SourceError) {
	raws, err := a.events.ListEvents(ctx, bearerToken, from, a.config.Candidates)
	if err != nil {
		return []model.CalendarItem{}, a.sourceFailure(logger, SourceEvents, err)
	}

	items := make([]model.CalendarItem, 0, len(raws))
	for _, raw := range raws {
		items = append(items, ToCalendarItem(raw))
	}

	out := DedupEvents(items, a.config.Limit)
	a.recordDropped(SourceEvents, len(items), len(out))
	return out, nil
}

// collectTasks はタスクを取得し、最大N件に切り詰める。
func (a *Aggregator) collectTasks(ctx context.Context, logger *slog.Logger, bearerToken string) ([]model.TaskItem, *model.SourceError) {
	raws, err := a.tasks.ListTasks(ctx, bearerToken, a.config.TaskLimit)
	if err != nil {
		return []model.TaskItem{}, a.sourceFailure(logger, SourceTasks, err)
	}

	out := make([]model.TaskItem, 0, min(len(raws), a.config.Limit))
	for _, raw := range raws {
		if len(out) == a.config.Limit {
			break
		}
		out = append(out, ToTaskItem(raw))
	}
	return out, nil
}

// sourceFailure は取得元の失敗をログとメトリクスに記録し、SourceErrorを返す。
func (a *Aggregator) sourceFailure(logger *slog.Logger, source string, err error) *model.SourceError {
	reason := ClassifyError(err)
	if a.metrics != nil {
		a.metrics.RecordSourceFailure(source, reason)
	}
	logger.Error("外部データの取得に失敗しました",
		slog.String("source", source),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	return &model.SourceError{
		Source: source,
		Code:   model.ErrCodeFeedFetchFailed,
		Reason: reason,
	}
}

func (a *Aggregator) recordDropped(kind string, before, after int) {
	if a.metrics == nil || before <= after {
		return
	}
	a.metrics.RecordDedupDropped(kind, before-after)
}
