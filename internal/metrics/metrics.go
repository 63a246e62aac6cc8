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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	// RecordAuthEvent は認証操作の結果を記録する（operation: register/login/google/change_password）。
	RecordAuthEvent(operation, outcome string)
	// RecordReconciliation はIdPとローカルユーザー表の不整合を補正した経路を記録する。
	RecordReconciliation(operation, path string)
	// RecordStatsDegradation は集計の一部が失敗しnullに縮退したことを記録する。
	RecordStatsDegradation()
	// RecordHTTPRequest はHTTPリクエストのステータスとレイテンシを記録する。
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authEvents      *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	degradations    prometheus.Counter
	httpStatus      *prometheus.CounterVec
	httpLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "laptrack_auth_events_total",
			Help: "認証操作の結果別の合計数",
		}, []string{"operation", "outcome"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "laptrack_identity_reconciliations_total",
			Help: "IdPとローカルユーザーの不整合を補正した回数",
		}, []string{"operation", "path"}),
		degradations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "laptrack_stats_degradations_total",
			Help: "チーム統計の部分的な縮退の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "laptrack_http_requests_total",
			Help: "HTTPメソッドとステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "laptrack_http_request_duration_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.reconciliations,
		c.degradations,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordAuthEvent は認証操作の結果を記録する。
func (c *Collector) RecordAuthEvent(operation, outcome string) {
	c.authEvents.WithLabelValues(operation, outcome).Inc()
}

// RecordReconciliation は補正経路を記録する。
func (c *Collector) RecordReconciliation(operation, path string) {
	c.reconciliations.WithLabelValues(operation, path).Inc()
}

// RecordStatsDegradation は統計の縮退を記録する。
func (c *Collector) RecordStatsDegradation() {
	c.degradations.Inc()
}

// RecordHTTPRequest はHTTPリクエストを記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpStatus.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordAuthEvent(string, string)               {}
func (NopCollector) RecordReconciliation(string, string)          {}
func (NopCollector) RecordStatsDegradation()                      {}
func (NopCollector) RecordHTTPRequest(string, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
