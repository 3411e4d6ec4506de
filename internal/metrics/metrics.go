// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 集計サービスや認証サービス、ニュース取得から利用する。
type MetricsCollector interface {
	RecordAggregate(result string)
	RecordSourceFailure(source, reason string)
	RecordEnrichFailure()
	RecordAggregateLatency(duration time.Duration)
	RecordItemsReturned(kind string, count int)
	RecordDedupDropped(kind string, count int)
	RecordAuthEvent(event string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	aggregateTotal   *prometheus.CounterVec
	sourceFail       *prometheus.CounterVec
	enrichFail       prometheus.Counter
	aggregateLatency prometheus.Histogram
	itemsReturned    *prometheus.CounterVec
	dedupDropped     *prometheus.CounterVec
	authEvents       *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		aggregateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_aggregate_total",
			Help: "ダッシュボード集計の実行回数（結果別）",
		}, []string{"result"}),
		sourceFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_source_fetch_fail_total",
			Help: "外部ソース取得失敗の合計数",
		}, []string{"source", "reason"}),
		enrichFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_enrich_fail_total",
			Help: "メール詳細取得失敗の合計数",
		}),
		aggregateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_aggregate_latency_seconds",
			Help:    "ダッシュボード集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsReturned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_items_returned_total",
			Help: "ダッシュボードに返した項目数",
		}, []string{"kind"}),
		dedupDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_dedup_dropped_total",
			Help: "重複除去と件数上限で除外した項目数",
		}, []string{"kind"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_events_total",
			Help: "サインイン・アクセス許可イベントの合計数",
		}, []string{"event"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.aggregateTotal,
		c.sourceFail,
		c.enrichFail,
		c.aggregateLatency,
		c.itemsReturned,
		c.dedupDropped,
		c.authEvents,
		c.httpStatus,
	)

	return c
}

// RecordAggregate は集計1回分の結果（success, partial, failed）を記録する。
func (c *Collector) RecordAggregate(result string) {
	c.aggregateTotal.WithLabelValues(result).Inc()
}

// RecordSourceFailure はソース単位の取得失敗を記録する。
func (c *Collector) RecordSourceFailure(source, reason string) {
	c.sourceFail.WithLabelValues(source, reason).Inc()
}

// RecordEnrichFailure はメール詳細取得の失敗を記録する。
func (c *Collector) RecordEnrichFailure() {
	c.enrichFail.Inc()
}

// RecordAggregateLatency は集計のレイテンシを記録する。
func (c *Collector) RecordAggregateLatency(duration time.Duration) {
	c.aggregateLatency.Observe(duration.Seconds())
}

// RecordItemsReturned は返却した項目数を記録する。
func (c *Collector) RecordItemsReturned(kind string, count int) {
	c.itemsReturned.WithLabelValues(kind).Add(float64(count))
}

// RecordDedupDropped は重複除外した項目数を記録する。
func (c *Collector) RecordDedupDropped(kind string, count int) {
	c.dedupDropped.WithLabelValues(kind).Add(float64(count))
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// Acceptヘッダーで要求された場合はOpenMetrics形式で応答する。
// 一部のメトリクスの収集に失敗しても、取得できた分は返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
